// CLAUDE:SUMMARY Draws diff results onto a copy of a PDF: highlight annotations for text boxes, a full-page stamped overlay for raster masks.
// CLAUDE:DEPENDS document, faults, internal/pdfconf
// CLAUDE:EXPORTS Renderer, Mark, Config, New
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/hazyhaar/docdiff/document"
	"github.com/hazyhaar/docdiff/faults"
	"github.com/hazyhaar/docdiff/internal/pdfconf"
)

// annotPrint is the /F print flag.
const annotPrint = 4

// Mark is one box to highlight on a zero-based page.
type Mark struct {
	Page int
	Box  document.Box
}

// Config tunes the marker appearance.
type Config struct {
	// Color is the highlight RGB in [0,1] (default: yellow).
	Color [3]float64 `json:"color" yaml:"color"`

	// Opacity of highlight annotations (default: 0.4).
	Opacity float64 `json:"opacity" yaml:"opacity"`

	// OverlayOpacity of the stamped image overlay (default: 0.5).
	OverlayOpacity float64 `json:"overlay_opacity" yaml:"overlay_opacity"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Color == ([3]float64{}) {
		c.Color = [3]float64{1, 1, 0}
	}
	if c.Opacity <= 0 || c.Opacity > 1 {
		c.Opacity = 0.4
	}
	if c.OverlayOpacity <= 0 || c.OverlayOpacity > 1 {
		c.OverlayOpacity = 0.5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer writes annotated copies of documents. The source bytes are never
// modified.
type Renderer struct {
	cfg Config
}

// New creates a Renderer.
func New(cfg Config) *Renderer {
	cfg.defaults()
	return &Renderer{cfg: cfg}
}

// AnnotateText adds one highlight annotation per mark to a copy of src and
// writes it to out.
func (r *Renderer) AnnotateText(src []byte, marks []Mark, out string) error {
	const op = "annotate text"
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(src), pdfconf.New())
	if err != nil {
		return faults.Wrap(faults.Annotation, op, fmt.Errorf("read: %w", err))
	}
	for _, m := range marks {
		if err := r.highlight(ctx, m); err != nil {
			return faults.Wrap(faults.Annotation, op, err)
		}
	}
	if err := writeAtomic(out, func(f *os.File) error { return api.WriteContext(ctx, f) }); err != nil {
		return faults.Wrap(faults.Annotation, op, err)
	}
	r.cfg.Logger.Debug("annotate: highlights written", "marks", len(marks), "out", out)
	return nil
}

func (r *Renderer) highlight(ctx *model.Context, m Mark) error {
	pageNr := m.Page + 1
	if m.Page < 0 || pageNr > ctx.PageCount {
		return fmt.Errorf("page %d out of range (document has %d)", m.Page, ctx.PageCount)
	}
	page, _, _, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return fmt.Errorf("page %d: %w", m.Page, err)
	}
	if page == nil {
		return fmt.Errorf("page %d: no page dictionary", m.Page)
	}

	b := m.Box
	annot := types.Dict{
		"Type":    types.Name("Annot"),
		"Subtype": types.Name("Highlight"),
		"Rect":    types.NewNumberArray(b.X0, b.Y0, b.X1, b.Y1),
		// Upper-left, upper-right, lower-left, lower-right.
		"QuadPoints": types.NewNumberArray(b.X0, b.Y1, b.X1, b.Y1, b.X0, b.Y0, b.X1, b.Y0),
		"C":          types.NewNumberArray(r.cfg.Color[0], r.cfg.Color[1], r.cfg.Color[2]),
		"CA":         types.Float(r.cfg.Opacity),
		"F":          types.Integer(annotPrint),
	}
	ir, err := ctx.IndRefForNewObject(annot)
	if err != nil {
		return fmt.Errorf("page %d: new annotation: %w", m.Page, err)
	}

	existing, found := page.Find("Annots")
	if !found || existing == nil {
		page["Annots"] = types.Array{*ir}
		return nil
	}
	annots, err := ctx.DereferenceArray(existing)
	if err != nil {
		return fmt.Errorf("page %d: annots: %w", m.Page, err)
	}
	page["Annots"] = append(annots, *ir)
	return nil
}

// AnnotateImage stamps overlay on top of page 1 of a copy of src, scaled to
// the full page, and writes it to out.
func (r *Renderer) AnnotateImage(src []byte, overlay image.Image, out string) error {
	const op = "annotate image"
	var buf bytes.Buffer
	if err := png.Encode(&buf, overlay); err != nil {
		return faults.Wrap(faults.Annotation, op, fmt.Errorf("encode overlay: %w", err))
	}
	desc := fmt.Sprintf("position:c, scalefactor:1 rel, rotation:0, opacity:%.2f", r.cfg.OverlayOpacity)
	wm, err := api.ImageWatermarkForReader(&buf, desc, true, false, types.POINTS)
	if err != nil {
		return faults.Wrap(faults.Annotation, op, fmt.Errorf("watermark: %w", err))
	}
	err = writeAtomic(out, func(f *os.File) error {
		return api.AddWatermarks(bytes.NewReader(src), f, []string{"1"}, wm, pdfconf.New())
	})
	if err != nil {
		return faults.Wrap(faults.Annotation, op, err)
	}
	r.cfg.Logger.Debug("annotate: overlay written", "out", out)
	return nil
}

// writeAtomic runs write against a temp file next to out, then renames it.
func writeAtomic(out string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(out), ".annotated-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
