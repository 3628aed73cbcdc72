package compare

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/docdiff/annotate"
	"github.com/hazyhaar/docdiff/classify"
	"github.com/hazyhaar/docdiff/document"
	"github.com/hazyhaar/docdiff/imagecmp"
	"github.com/hazyhaar/docdiff/inference"
	"github.com/hazyhaar/docdiff/raster"
)

// Config holds the full docdiff configuration.
type Config struct {
	// Workers is the size of the shared worker pool (default: 2).
	Workers int `yaml:"workers"`

	// ScratchDir is the root of per-request workspaces. Empty selects a
	// directory under the system temp dir.
	ScratchDir string `yaml:"scratch_dir"`

	// MaxUploadBytes caps each uploaded document (default: 100 MiB).
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	Classifier classify.Config `yaml:"classifier"`
	Text       document.Config `yaml:"text"`
	Image      imagecmp.Config `yaml:"image"`
	Annotate   annotate.Config `yaml:"annotate"`
	Raster     raster.Config   `yaml:"raster"`
	Inference  InferenceConfig `yaml:"inference"`

	Logger *slog.Logger `yaml:"-"`
}

// InferenceConfig selects the optional learned models.
type InferenceConfig struct {
	// Classifier is the two-class text/image page model.
	Classifier inference.Config `yaml:"classifier"`

	// Similarity is the single-output visual similarity head.
	Similarity inference.Config `yaml:"similarity"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:        2,
		MaxUploadBytes: 100 << 20,
		Classifier: classify.Config{
			SamplePages: 5,
			MinChars:    100,
			Threshold:   0.6,
			DPI:         200,
			InputSize:   224,
			ImageCutoff: 0.5,
		},
		Text: document.Config{XTolerance: 1, YTolerance: 1},
		Image: imagecmp.Config{
			DPI:             200,
			WindowSize:      7,
			MinWindow:       7,
			RegionThreshold: 32,
			MinRegionArea:   16,
			SimilaritySize:  224,
		},
		Annotate: annotate.Config{
			Color:          [3]float64{1, 1, 0},
			Opacity:        0.4,
			OverlayOpacity: 0.5,
		},
		Raster: raster.Config{Binary: "pdftoppm", Timeout: 60 * time.Second},
	}
}

// LoadConfigFile reads a YAML config file and merges it over DefaultConfig.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("workers must be in [1, 64], got %d", c.Workers)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be > 0")
	}
	if c.Classifier.SamplePages < 0 {
		return fmt.Errorf("classifier.sample_pages must be >= 0")
	}
	if t := c.Classifier.Threshold; t < 0 || t > 1 {
		return fmt.Errorf("classifier.threshold must be in [0, 1], got %g", t)
	}
	if p := c.Classifier.ImageCutoff; p < 0 || p >= 1 {
		return fmt.Errorf("classifier.image_cutoff must be in [0, 1), got %g", p)
	}
	if d := c.Image.DPI; d != 0 && (d < 36 || d > 1200) {
		return fmt.Errorf("image.dpi must be in [36, 1200], got %d", d)
	}
	if w := c.Image.WindowSize; w != 0 && (w < 3 || w%2 == 0) {
		return fmt.Errorf("image.window_size must be odd and >= 3, got %d", w)
	}
	if o := c.Annotate.Opacity; o < 0 || o > 1 {
		return fmt.Errorf("annotate.opacity must be in [0, 1], got %g", o)
	}
	if o := c.Annotate.OverlayOpacity; o < 0 || o > 1 {
		return fmt.Errorf("annotate.overlay_opacity must be in [0, 1], got %g", o)
	}
	for name, ic := range map[string]inference.Config{
		"classifier": c.Inference.Classifier,
		"similarity": c.Inference.Similarity,
	} {
		if ic.WeightsPath != "" && ic.Endpoint != "" {
			return fmt.Errorf("inference.%s: set weights_path or endpoint, not both", name)
		}
	}
	return nil
}

// withLogger propagates the top-level logger into every section that has
// none of its own.
func (c *Config) withLogger() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	for _, l := range []**slog.Logger{
		&c.Classifier.Logger, &c.Text.Logger, &c.Image.Logger,
		&c.Annotate.Logger, &c.Raster.Logger,
		&c.Inference.Classifier.Logger, &c.Inference.Similarity.Logger,
	} {
		if *l == nil {
			*l = c.Logger
		}
	}
}
