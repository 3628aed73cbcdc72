// CLAUDE:SUMMARY Page rasterization via poppler's pdftoppm plus the resize/crop/tensor helpers used before inference.
// Package raster renders document pages to RGB images and prepares them for
// the networks in package inference.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/image/draw"
)

// ErrNoPages is returned when the requested page does not exist.
var ErrNoPages = errors.New("raster: page not found")

// Rasterizer renders one zero-based page of the PDF file at path.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, page, dpi int) (*image.RGBA, error)
}

// Config configures the poppler rasterizer.
type Config struct {
	// Binary is the pdftoppm executable (default: "pdftoppm" from PATH).
	Binary string `json:"binary" yaml:"binary"`

	// Timeout bounds a single page render (default: 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Binary == "" {
		c.Binary = "pdftoppm"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Poppler shells out to pdftoppm.
type Poppler struct {
	cfg Config
}

// NewPoppler creates a rasterizer backed by pdftoppm.
func NewPoppler(cfg Config) *Poppler {
	cfg.defaults()
	return &Poppler{cfg: cfg}
}

// Available reports whether the pdftoppm binary can be found.
func (p *Poppler) Available() bool {
	_, err := exec.LookPath(p.cfg.Binary)
	return err == nil
}

// Rasterize renders page (zero-based) of the PDF at path at dpi.
func (p *Poppler) Rasterize(ctx context.Context, path string, page, dpi int) (*image.RGBA, error) {
	if page < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoPages, page)
	}
	if dpi <= 0 {
		dpi = 200
	}

	tmp, err := os.MkdirTemp("", "docdiff-raster-*")
	if err != nil {
		return nil, fmt.Errorf("raster: temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	n := strconv.Itoa(page + 1)
	prefix := filepath.Join(tmp, "page")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.cfg.Binary,
		"-f", n,
		"-l", n,
		"-r", strconv.Itoa(dpi),
		"-png",
		"-singlefile",
		path,
		prefix)
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("raster: page %d: %w", page, ctx.Err())
		}
		return nil, fmt.Errorf("raster: pdftoppm page %d: %w: %s", page, err, bytes.TrimSpace(stderr.Bytes()))
	}

	f, err := os.Open(prefix + ".png")
	if err != nil {
		// pdftoppm exits 0 without output when the page is out of range.
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %d", ErrNoPages, page)
		}
		return nil, fmt.Errorf("raster: open output: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("raster: decode page %d: %w", page, err)
	}
	p.cfg.Logger.Debug("raster: page rendered",
		"path", path, "page", page, "dpi", dpi,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy(),
		"duration_ms", time.Since(start).Milliseconds())
	return ToRGBA(img), nil
}

// ToRGBA returns img as *image.RGBA with a zero origin, copying only when
// needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
