// CLAUDE:SUMMARY Text-vs-image document classifier: text-density heuristic on sampled pages, learned page classifier as fallback, Image on any failure.
// CLAUDE:DEPENDS document, raster, inference
// CLAUDE:EXPORTS Classifier, Verdict, Kind, Stage, Config, New, WithModel, WithRasterizer
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/docdiff/document"
	"github.com/hazyhaar/docdiff/inference"
	"github.com/hazyhaar/docdiff/raster"
)

// Kind is the document type driving pipeline selection.
type Kind string

const (
	Text  Kind = "text"
	Image Kind = "image"
)

// Stage records which step produced a verdict.
type Stage string

const (
	StageHeuristic Stage = "heuristic"
	StageModel     Stage = "model"
	StageDefault   Stage = "default"
)

// Verdict is the outcome of classifying one document.
type Verdict struct {
	Kind Kind `json:"kind"`

	// Confidence is the model's image probability. It is nil unless the
	// learned fallback decided.
	Confidence *float64 `json:"confidence,omitempty"`

	Stage     Stage   `json:"stage"`
	TextRatio float64 `json:"text_ratio"`
}

// Config tunes the classifier.
type Config struct {
	// SamplePages is how many leading pages the heuristic inspects (default: 5).
	SamplePages int `json:"sample_pages" yaml:"sample_pages"`

	// MinChars is the trimmed character count a page must exceed to count
	// as a text page (default: 100).
	MinChars int `json:"min_chars" yaml:"min_chars"`

	// Threshold is the text-page ratio at or above which a document is text
	// (default: 0.6).
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// DPI for the fallback rasterization of page 1 (default: 200).
	DPI int `json:"dpi" yaml:"dpi"`

	// InputSize is the square side fed to the model (default: 224).
	InputSize int `json:"input_size" yaml:"input_size"`

	// ImageCutoff is the image probability above which the model says
	// Image (default: 0.5).
	ImageCutoff float64 `json:"image_cutoff" yaml:"image_cutoff"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.SamplePages <= 0 {
		c.SamplePages = 5
	}
	if c.MinChars <= 0 {
		c.MinChars = 100
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.6
	}
	if c.DPI <= 0 {
		c.DPI = 200
	}
	if c.InputSize <= 0 {
		c.InputSize = 224
	}
	if c.ImageCutoff <= 0 {
		c.ImageCutoff = 0.5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithModel sets the two-class page model used as fallback.
func WithModel(m inference.Model) Option {
	return func(c *Classifier) { c.model = m }
}

// WithRasterizer sets the renderer used to feed the model.
func WithRasterizer(r raster.Rasterizer) Option {
	return func(c *Classifier) { c.raster = r }
}

// Classifier decides whether a document is text-based or image-based.
type Classifier struct {
	cfg    Config
	model  inference.Model
	raster raster.Rasterizer
}

// New creates a Classifier. Without a model or rasterizer the fallback
// always answers Image.
func New(cfg Config, opts ...Option) *Classifier {
	cfg.defaults()
	c := &Classifier{cfg: cfg}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify never fails: anything that goes wrong after the heuristic
// degrades to Image.
func (c *Classifier) Classify(ctx context.Context, doc *document.Document) Verdict {
	ratio := c.TextRatio(doc)
	if ratio >= c.cfg.Threshold {
		return Verdict{Kind: Text, Stage: StageHeuristic, TextRatio: ratio}
	}

	p, err := c.imageProbability(ctx, doc)
	if err != nil {
		c.cfg.Logger.WarnContext(ctx, "classify: fallback failed, assuming image",
			"doc", doc.Name, "text_ratio", ratio, "error", err)
		return Verdict{Kind: Image, Stage: StageDefault, TextRatio: ratio}
	}
	kind := Text
	if p > c.cfg.ImageCutoff {
		kind = Image
	}
	c.cfg.Logger.DebugContext(ctx, "classify: model verdict",
		"doc", doc.Name, "image_prob", p, "kind", kind)
	return Verdict{Kind: kind, Confidence: &p, Stage: StageModel, TextRatio: ratio}
}

// TextRatio is the fraction of sampled pages whose trimmed text exceeds
// MinChars. A document with no pages has ratio 0. Pages that fail to
// extract count as non-text.
func (c *Classifier) TextRatio(doc *document.Document) float64 {
	pages := doc.Pages()
	n := min(len(pages), c.cfg.SamplePages)
	if n == 0 {
		return 0
	}
	textPages := 0
	for _, p := range pages[:n] {
		t, err := p.Text()
		if err != nil {
			c.cfg.Logger.Warn("classify: page extraction failed",
				"doc", doc.Name, "page", p.Index, "error", err)
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(t)) > c.cfg.MinChars {
			textPages++
		}
	}
	return float64(textPages) / float64(n)
}

func (c *Classifier) imageProbability(ctx context.Context, doc *document.Document) (float64, error) {
	if c.model == nil {
		return 0, inference.ErrNoModel
	}
	if c.raster == nil {
		return 0, fmt.Errorf("classify: no rasterizer")
	}
	if doc.Path == "" {
		return 0, fmt.Errorf("classify: %s has no file to render", doc.Name)
	}
	img, err := c.raster.Rasterize(ctx, doc.Path, 0, c.cfg.DPI)
	if err != nil {
		return 0, err
	}
	in, err := raster.ClassifierInput(img, c.cfg.InputSize)
	if err != nil {
		return 0, err
	}
	logits, err := c.model.Predict(ctx, in)
	if err != nil {
		return 0, err
	}
	if len(logits) != 2 {
		return 0, fmt.Errorf("classify: model returned %d logits, want 2", len(logits))
	}
	return inference.Softmax(logits)[1], nil
}
