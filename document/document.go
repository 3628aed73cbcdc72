// CLAUDE:SUMMARY Immutable paginated document with lazy per-page text and positioned word extraction (ledongthuc/pdf glyphs, pdfcpu page boxes).
// CLAUDE:DEPENDS document/layout.go
// CLAUDE:EXPORTS Document, Page, Word, Box, Config, Load, Open, Empty
package document

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/hazyhaar/docdiff/internal/pdfconf"
)

// Default page size used when no box can be resolved (US Letter, points).
const (
	defaultWidth  = 612.0
	defaultHeight = 792.0
)

// ErrPageRange is returned when a page index is outside the document.
var ErrPageRange = errors.New("document: page index out of range")

// Config tunes text extraction.
type Config struct {
	// XTolerance is the largest horizontal gap (points) between two glyphs
	// of the same word (default: 1).
	XTolerance float64 `json:"x_tolerance" yaml:"x_tolerance"`

	// YTolerance is the largest baseline difference (points) between two
	// glyphs of the same line (default: 1).
	YTolerance float64 `json:"y_tolerance" yaml:"y_tolerance"`

	// Logger for page-level extraction failures.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.XTolerance <= 0 {
		c.XTolerance = 1
	}
	if c.YTolerance <= 0 {
		c.YTolerance = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Document is a loaded, immutable paginated document.
type Document struct {
	Name string
	Path string

	data  []byte
	pages []*Page
	cfg   Config

	// mu serializes calls into the PDF reader, which is not safe for
	// concurrent use.
	mu sync.Mutex
}

// Box is an axis-aligned rectangle in page space: points, origin bottom-left.
type Box struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Word is a run of glyphs on one line with no gap wider than XTolerance.
type Word struct {
	Text string `json:"text"`
	Box  Box    `json:"box"`
}

// Page is one page of a Document. Text and words are extracted on first use.
type Page struct {
	Index  int
	Width  float64
	Height float64

	doc   *Document
	src   pdf.Page
	once  sync.Once
	text  string
	words []Word
	err   error
}

// Load parses data as a PDF. The returned Document keeps a reference to
// data; callers must not modify it afterwards.
func Load(name string, data []byte, cfg Config) (*Document, error) {
	cfg.defaults()
	doc := &Document{Name: name, data: data, cfg: cfg}

	src, err := readPages(data)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", name, err)
	}

	n := len(src)
	dims := pageDims(data, n)
	doc.pages = make([]*Page, n)
	for i := 0; i < n; i++ {
		p := &Page{Index: i, doc: doc, src: src[i]}
		if dims != nil {
			p.Width, p.Height = dims[i][0], dims[i][1]
		} else {
			p.Width, p.Height = mediaBox(p.src)
		}
		doc.pages[i] = p
	}
	return doc, nil
}

// Open reads and loads the file at path.
func Open(path string, cfg Config) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Load(filepath.Base(path), data, cfg)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Empty returns a Document with no pages. It stands in for a document whose
// structure could not be parsed: text is empty and there are no words, but
// Path and Bytes still refer to the original file.
func Empty(name, path string, data []byte) *Document {
	return &Document{Name: name, Path: path, data: data}
}

// Bytes returns the raw document bytes.
func (d *Document) Bytes() []byte { return d.data }

// NumPages returns the page count.
func (d *Document) NumPages() int { return len(d.pages) }

// Pages returns the pages in order.
func (d *Document) Pages() []*Page { return d.pages }

// Page returns the zero-based page i.
func (d *Document) Page(i int) (*Page, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageRange, i, len(d.pages))
	}
	return d.pages[i], nil
}

// Text returns the text of every page that has any, joined with a single
// newline. Pages that fail to extract are logged and contribute nothing.
func (d *Document) Text() string {
	var parts []string
	for _, p := range d.pages {
		t, err := p.Text()
		if err != nil {
			d.logger().Warn("document: page extraction failed",
				"doc", d.Name, "page", p.Index, "error", err)
			continue
		}
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

func (d *Document) logger() *slog.Logger {
	if d.cfg.Logger == nil {
		return slog.Default()
	}
	return d.cfg.Logger
}

// Text returns the page text: lines top to bottom, words separated by a
// single space. A failed extraction returns "" and the error.
func (p *Page) Text() (string, error) {
	p.extract()
	return p.text, p.err
}

// Words returns the positioned words of the page in reading order.
func (p *Page) Words() ([]Word, error) {
	p.extract()
	return p.words, p.err
}

func (p *Page) extract() {
	p.once.Do(func() {
		p.doc.mu.Lock()
		glyphs, err := readGlyphs(p.src)
		p.doc.mu.Unlock()
		if err != nil {
			p.err = fmt.Errorf("page %d: %w", p.Index, err)
			return
		}
		lines := assemble(glyphs, p.doc.cfg.XTolerance, p.doc.cfg.YTolerance)
		p.text = joinLines(lines)
		for _, l := range lines {
			p.words = append(p.words, l...)
		}
	})
}

// readPages opens data with the glyph-level reader and resolves every page
// object. The reader panics on some malformed inputs; that is reported as
// an error.
func readPages(data []byte) (pages []pdf.Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("parse: %v", rec)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	n := r.NumPage()
	pages = make([]pdf.Page, n)
	for i := range pages {
		pages[i] = r.Page(i + 1)
	}
	return pages, nil
}

func readGlyphs(p pdf.Page) (out []glyph, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("content stream: %v", rec)
		}
	}()
	if p.V.IsNull() {
		return nil, errors.New("missing page object")
	}
	for _, t := range p.Content().Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		out = append(out, glyph{s: t.S, x: t.X, y: t.Y, w: t.W, size: t.FontSize})
	}
	return out, nil
}

// pageDims resolves page sizes through pdfcpu, which honours inherited
// boxes. It returns nil when the count disagrees with the glyph reader.
func pageDims(data []byte, n int) [][2]float64 {
	dims, err := api.PageDims(bytes.NewReader(data), pdfconf.New())
	if err != nil || len(dims) != n {
		return nil
	}
	out := make([][2]float64, n)
	for i, d := range dims {
		out[i] = [2]float64{d.Width, d.Height}
	}
	return out
}

// mediaBox walks the page tree for the nearest MediaBox.
func mediaBox(p pdf.Page) (w, h float64) {
	defer func() {
		if recover() != nil {
			w, h = defaultWidth, defaultHeight
		}
	}()
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			w = box.Index(2).Float64() - box.Index(0).Float64()
			h = box.Index(3).Float64() - box.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
	}
	return defaultWidth, defaultHeight
}
