package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Remote implements Model against an inference server exposing
// POST /v1/predict. Calls are retried with exponential backoff and guarded
// by a circuit breaker so a dead server fails fast.
type Remote struct {
	endpoint string
	model    string
	client   *http.Client
	cfg      Config
	breaker  *breaker
}

// NewRemote creates a client for cfg.Endpoint.
func NewRemote(cfg Config) *Remote {
	cfg.defaults()
	return &Remote{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		breaker:  newBreaker(cfg.BreakerThreshold, cfg.BreakerReset),
	}
}

// predictRequest is the JSON body sent to /v1/predict.
type predictRequest struct {
	Model string    `json:"model,omitempty"`
	Shape [3]int    `json:"shape"`
	Data  []float32 `json:"data"`
}

// predictResponse is the JSON body returned by /v1/predict.
type predictResponse struct {
	Outputs []float32 `json:"outputs"`
	Model   string    `json:"model"`
}

// Predict sends the tensor and returns the server's outputs.
func (r *Remote) Predict(ctx context.Context, in Tensor) ([]float32, error) {
	if !r.breaker.Allow() {
		return nil, &ErrCircuitOpen{Endpoint: r.endpoint}
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		out, err := r.call(ctx, in)
		if err == nil {
			r.breaker.RecordSuccess()
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < r.cfg.MaxRetries {
			wait := r.cfg.Backoff * (1 << uint(attempt))
			r.cfg.Logger.WarnContext(ctx, "inference: retrying predict",
				"endpoint", r.endpoint,
				"attempt", attempt+1,
				"max_retries", r.cfg.MaxRetries,
				"backoff_ms", wait.Milliseconds(),
				"error", err)
			select {
			case <-ctx.Done():
				r.breaker.RecordFailure()
				return nil, errors.Join(lastErr, ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	r.breaker.RecordFailure()
	return nil, lastErr
}

// State exposes the breaker state.
func (r *Remote) State() BreakerState { return r.breaker.State() }

func (r *Remote) call(ctx context.Context, in Tensor) ([]float32, error) {
	body, err := json.Marshal(predictRequest{Model: r.model, Shape: in.Shape(), Data: in.Data})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := r.endpoint + "/v1/predict"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, string(respBody))
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Outputs) == 0 {
		return nil, fmt.Errorf("no outputs returned from %s", url)
	}
	return result.Outputs, nil
}
