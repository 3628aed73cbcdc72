// Package inference runs the compact networks used to classify pages and
// score visual similarity.
//
// Two backends implement Model: a local Network whose weights are loaded
// from a JSON file, and a Remote client that posts tensors to an inference
// server. Neither is required; Open returns a nil Model when nothing is
// configured and callers treat that as "no model available".
//
// Usage:
//
//	m, err := inference.Open(inference.Config{WeightsPath: "classifier.json"})
//	logits, err := m.Predict(ctx, t)
//	probs := inference.Softmax(logits)
package inference

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

// ErrNoModel is returned by helpers that need a model when none is set.
var ErrNoModel = errors.New("inference: no model configured")

// Model maps an input tensor to raw output values (logits).
type Model interface {
	Predict(ctx context.Context, in Tensor) ([]float32, error)
}

// Config selects and tunes a backend. WeightsPath wins over Endpoint.
type Config struct {
	// WeightsPath is a JSON network file for local inference.
	WeightsPath string `json:"weights_path" yaml:"weights_path"`

	// Endpoint is the base URL of a remote inference server.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Model is the model name sent to the remote server.
	Model string `json:"model" yaml:"model"`

	// Timeout per remote request. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries for failed remote calls. Default: 1; negative disables.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Backoff before the first retry, doubled each attempt. Default: 200ms.
	Backoff time.Duration `json:"backoff" yaml:"backoff"`

	// BreakerThreshold is the consecutive failure count that opens the
	// circuit. Default: 5.
	BreakerThreshold int `json:"breaker_threshold" yaml:"breaker_threshold"`

	// BreakerReset is how long the circuit stays open. Default: 30s.
	BreakerReset time.Duration `json:"breaker_reset" yaml:"breaker_reset"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 1
	}
	if c.Backoff <= 0 {
		c.Backoff = 200 * time.Millisecond
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Enabled reports whether the config names a backend.
func (c Config) Enabled() bool {
	return c.WeightsPath != "" || c.Endpoint != ""
}

// Open builds the configured Model, or returns nil when none is configured.
func Open(cfg Config) (Model, error) {
	cfg.defaults()
	switch {
	case cfg.WeightsPath != "":
		n, err := LoadNetwork(cfg.WeightsPath)
		if err != nil {
			return nil, err
		}
		return n, nil
	case cfg.Endpoint != "":
		return NewRemote(cfg), nil
	}
	return nil, nil
}

// Softmax converts logits to probabilities.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxv := float64(logits[0])
	for _, v := range logits[1:] {
		maxv = math.Max(maxv, float64(v))
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Sigmoid is the logistic function.
func Sigmoid(x float32) float64 {
	return 1 / (1 + math.Exp(-float64(x)))
}
