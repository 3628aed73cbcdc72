// CLAUDE:SUMMARY Image comparison pipeline: rasterize page 1 of both documents, SSIM dissimilarity map, optional learned similarity score, mask PNG and stamped overlay.
// CLAUDE:DEPENDS raster, ssim, inference, annotate, workpool, faults, document
// CLAUDE:EXPORTS Pipeline, Outcome, Region, Config, New, WithSimilarityModel, Regions, Overlay
package imagecmp

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/docdiff/annotate"
	"github.com/hazyhaar/docdiff/document"
	"github.com/hazyhaar/docdiff/faults"
	"github.com/hazyhaar/docdiff/inference"
	"github.com/hazyhaar/docdiff/raster"
	"github.com/hazyhaar/docdiff/ssim"
	"github.com/hazyhaar/docdiff/workpool"
)

// File names written into the request workspace.
const (
	MaskFile      = "diff_mask.png"
	AnnotatedFile = "annotated.pdf"
)

// Config for the image pipeline.
type Config struct {
	// DPI for page rasterization (default: 200).
	DPI int `json:"dpi" yaml:"dpi"`

	// Color compares RGB channels separately instead of luma.
	Color bool `json:"color" yaml:"color"`

	// WindowSize and MinWindow are the SSIM window and its floor (default: 7).
	WindowSize int `json:"window_size" yaml:"window_size"`
	MinWindow  int `json:"min_window" yaml:"min_window"`

	// RegionThreshold is the mask value above which a pixel is part of a
	// changed region (default: 32).
	RegionThreshold uint8 `json:"region_threshold" yaml:"region_threshold"`

	// MinRegionArea drops regions with fewer pixels (default: 16).
	MinRegionArea int `json:"min_region_area" yaml:"min_region_area"`

	// SimilaritySize is the square input side of the similarity head
	// (default: 224).
	SimilaritySize int `json:"similarity_size" yaml:"similarity_size"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.DPI <= 0 {
		c.DPI = 200
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 7
	}
	if c.MinWindow <= 0 {
		c.MinWindow = 7
	}
	if c.RegionThreshold == 0 {
		c.RegionThreshold = 32
	}
	if c.MinRegionArea <= 0 {
		c.MinRegionArea = 16
	}
	if c.SimilaritySize <= 0 {
		c.SimilaritySize = 224
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Region is one connected area of change, in raster pixels and in PDF
// points (origin bottom-left).
type Region struct {
	Pixels image.Rectangle `json:"pixels"`
	Points document.Box    `json:"points"`
	Area   int             `json:"area"`
}

// Outcome is the result of one image comparison.
type Outcome struct {
	Original *image.RGBA `json:"-"`
	Modified *image.RGBA `json:"-"`
	Mask     *image.Gray `json:"-"`

	Score  float64 `json:"score"`
	Window int     `json:"window"`

	// Similarity is the learned score in [0,1], nil when no model is
	// configured or it failed.
	Similarity *float64 `json:"similarity,omitempty"`

	Regions []Region `json:"regions"`

	MaskPath          string `json:"mask_path,omitempty"`
	Annotated         string `json:"annotated,omitempty"`
	AnnotationWarning string `json:"annotation_warning,omitempty"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSimilarityModel enables the learned similarity score.
func WithSimilarityModel(m inference.Model) Option {
	return func(p *Pipeline) { p.model = m }
}

// Pipeline runs image comparisons. It is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	pool     *workpool.Pool
	raster   raster.Rasterizer
	renderer *annotate.Renderer
	model    inference.Model
}

// New creates a Pipeline.
func New(cfg Config, pool *workpool.Pool, r raster.Rasterizer, renderer *annotate.Renderer, opts ...Option) *Pipeline {
	cfg.defaults()
	p := &Pipeline{cfg: cfg, pool: pool, raster: r, renderer: renderer}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Compare rasterizes page 1 of both documents and measures their
// structural difference. The mask and the annotated copy of modified go
// into workdir (skipped when workdir is empty).
//
// Rasterization failures are extraction faults; rasters too small for the
// SSIM window are comparison faults. Annotation problems only set
// Outcome.AnnotationWarning.
func (p *Pipeline) Compare(ctx context.Context, original, modified *document.Document, workdir string) (*Outcome, error) {
	log := p.cfg.Logger
	start := time.Now()

	f1 := workpool.Submit(ctx, p.pool, "rasterize original", p.render(original))
	f2 := workpool.Submit(ctx, p.pool, "rasterize modified", p.render(modified))
	img1, err := f1.Await(ctx)
	if err != nil {
		return nil, stepError(faults.Extraction, "rasterize "+original.Name, err)
	}
	img2, err := f2.Await(ctx)
	if err != nil {
		return nil, stepError(faults.Extraction, "rasterize "+modified.Name, err)
	}
	log.DebugContext(ctx, "imagecmp: rasterized",
		"original", img1.Bounds().Size(), "modified", img2.Bounds().Size(),
		"elapsed_ms", time.Since(start).Milliseconds())

	opts := ssim.Options{
		WindowSize: p.cfg.WindowSize,
		MinWindow:  p.cfg.MinWindow,
		Color:      p.cfg.Color,
	}
	for _, img := range []*image.RGBA{img1, img2} {
		sz := img.Bounds().Size()
		if err := ssim.CheckSize(sz.X, sz.Y, opts); err != nil {
			return nil, faults.Wrap(faults.Comparison, "ssim", err)
		}
	}

	b := img1.Bounds()
	if img2.Bounds().Size() != b.Size() {
		log.InfoContext(ctx, "imagecmp: resizing modified raster",
			"from", img2.Bounds().Size(), "to", b.Size())
		img2 = raster.Resize(img2, b.Dx(), b.Dy())
	}

	fs := workpool.Submit(ctx, p.pool, "ssim", func(context.Context) (*ssim.Result, error) {
		return ssim.Compare(img1, img2, opts)
	})
	var fsim *workpool.Future[float64]
	if p.model != nil {
		fsim = workpool.Submit(ctx, p.pool, "similarity", func(ctx context.Context) (float64, error) {
			return p.similarity(ctx, img1, img2)
		})
	}

	sr, err := fs.Await(ctx)
	if err != nil {
		return nil, stepError(faults.Comparison, "ssim", err)
	}
	res := &Outcome{
		Original: img1,
		Modified: img2,
		Mask:     sr.Map,
		Score:    sr.Score,
		Window:   sr.Window,
		Regions:  p.regions(sr.Map),
	}

	if fsim != nil {
		s, err := fsim.Await(ctx)
		switch {
		case faults.CauseOf(err) == faults.Canceled:
			return nil, faults.Wrap(faults.Canceled, "similarity", err)
		case err != nil:
			log.WarnContext(ctx, "imagecmp: similarity score unavailable", "error", err)
		default:
			res.Similarity = &s
		}
	}

	if workdir == "" {
		return res, nil
	}
	if err := p.annotate(ctx, res, modified, workdir); err != nil {
		if faults.CauseOf(err) == faults.Canceled {
			return nil, faults.Wrap(faults.Canceled, "annotate image", err)
		}
		log.WarnContext(ctx, "imagecmp: annotation failed", "doc", modified.Name, "error", err)
		res.AnnotationWarning = err.Error()
	}
	return res, nil
}

func (p *Pipeline) render(doc *document.Document) func(context.Context) (*image.RGBA, error) {
	return func(ctx context.Context) (*image.RGBA, error) {
		if p.raster == nil {
			return nil, errors.New("no rasterizer configured")
		}
		if doc.Path == "" {
			return nil, fmt.Errorf("%s has no file to render", doc.Name)
		}
		return p.raster.Rasterize(ctx, doc.Path, 0, p.cfg.DPI)
	}
}

// similarity runs the learned head on |t1-t2| and squashes its output.
func (p *Pipeline) similarity(ctx context.Context, a, b image.Image) (float64, error) {
	ta := raster.SimilarityInput(a, p.cfg.SimilaritySize)
	tb := raster.SimilarityInput(b, p.cfg.SimilaritySize)
	d, err := inference.AbsDiff(ta, tb)
	if err != nil {
		return 0, err
	}
	out, err := p.model.Predict(ctx, d)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, errors.New("similarity model returned no output")
	}
	return inference.Sigmoid(out[0]), nil
}

func (p *Pipeline) regions(mask *image.Gray) []Region {
	rects := Regions(mask, p.cfg.RegionThreshold, p.cfg.MinRegionArea)
	scale := 72 / float64(p.cfg.DPI)
	h := float64(mask.Bounds().Dy())
	out := make([]Region, len(rects))
	for i, r := range rects {
		out[i] = Region{
			Pixels: r.Rect,
			Area:   r.Area,
			Points: document.Box{
				X0: float64(r.Rect.Min.X) * scale,
				Y0: (h - float64(r.Rect.Max.Y)) * scale,
				X1: float64(r.Rect.Max.X) * scale,
				Y1: (h - float64(r.Rect.Min.Y)) * scale,
			},
		}
	}
	return out
}

// annotate writes the mask PNG and the overlaid copy of modified.
func (p *Pipeline) annotate(ctx context.Context, res *Outcome, modified *document.Document, workdir string) error {
	maskPath := filepath.Join(workdir, MaskFile)
	if err := writePNG(maskPath, res.Mask); err != nil {
		return faults.Wrap(faults.Annotation, "write mask", err)
	}
	res.MaskPath = maskPath

	if p.renderer == nil {
		return nil
	}
	out := filepath.Join(workdir, AnnotatedFile)
	overlay := Overlay(res.Mask)
	fa := workpool.Submit(ctx, p.pool, "annotate image", func(context.Context) (struct{}, error) {
		return struct{}{}, p.renderer.AnnotateImage(modified.Bytes(), overlay, out)
	})
	if _, err := fa.Await(ctx); err != nil {
		return err
	}
	res.Annotated = out
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// stepError tags err with cause unless it is a cancellation.
func stepError(cause faults.Cause, op string, err error) error {
	if c := faults.CauseOf(err); c == faults.Canceled {
		cause = c
	}
	return faults.Wrap(cause, op, err)
}
