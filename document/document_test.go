package document

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/docdiff/internal/pdftest"
)

func TestLoad_Text(t *testing.T) {
	// WHAT: Lines come back top to bottom, words joined by single spaces.
	// WHY: Line-level diffs depend on stable line reconstruction.
	data := pdftest.Text("Line1", "hello brave world", "Line3")
	doc, err := Load("a.pdf", data, Config{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.NumPages() != 1 {
		t.Fatalf("pages = %d, want 1", doc.NumPages())
	}
	p, err := doc.Page(0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Text()
	if err != nil {
		t.Fatal(err)
	}
	if want := "Line1\nhello brave world\nLine3"; got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
	if math.Abs(p.Width-pdftest.PageWidth) > 0.01 || math.Abs(p.Height-pdftest.PageHeight) > 0.01 {
		t.Errorf("size = %vx%v", p.Width, p.Height)
	}
}

func TestLoad_Words(t *testing.T) {
	data := pdftest.Text("Line1", "Modified! Modified")
	doc, err := Load("b.pdf", data, Config{})
	if err != nil {
		t.Fatal(err)
	}
	p, _ := doc.Page(0)
	words, err := p.Words()
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 3 {
		t.Fatalf("words = %d (%v), want 3", len(words), words)
	}
	wantText := []string{"Line1", "Modified!", "Modified"}
	for i, w := range words {
		if w.Text != wantText[i] {
			t.Errorf("word[%d] = %q, want %q", i, w.Text, wantText[i])
		}
	}

	// "Modified" starts after "Modified! " (10 glyphs) on the second line.
	w := words[2].Box
	wantX0 := pdftest.Left + 10*pdftest.Advance
	if math.Abs(w.X0-wantX0) > 0.01 {
		t.Errorf("x0 = %v, want %v", w.X0, wantX0)
	}
	if math.Abs((w.X1-w.X0)-8*pdftest.Advance) > 0.01 {
		t.Errorf("width = %v, want %v", w.X1-w.X0, 8*pdftest.Advance)
	}
	base := pdftest.Baseline(1)
	if !(w.Y0 < base && w.Y1 > base) {
		t.Errorf("box %v does not straddle baseline %v", w, base)
	}
}

func TestDocument_TextSkipsBlankPages(t *testing.T) {
	data := pdftest.Build([]string{"first page"}, nil, []string{"third page"})
	doc, err := Load("c.pdf", data, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if doc.NumPages() != 3 {
		t.Fatalf("pages = %d", doc.NumPages())
	}
	if got, want := doc.Text(), "first page\nthird page"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
	blank, _ := doc.Page(1)
	if txt, err := blank.Text(); err != nil || txt != "" {
		t.Errorf("blank page = %q, %v", txt, err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	if _, err := Load("bad.pdf", []byte("not a pdf at all"), Config{}); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestEmpty(t *testing.T) {
	doc := Empty("x.pdf", "/tmp/x.pdf", []byte("raw"))
	if doc.NumPages() != 0 || doc.Text() != "" {
		t.Error("empty document must have no pages and no text")
	}
	if string(doc.Bytes()) != "raw" || doc.Path != "/tmp/x.pdf" {
		t.Error("empty document must keep its source")
	}
	if _, err := doc.Page(0); !errors.Is(err, ErrPageRange) {
		t.Errorf("Page(0) err = %v, want ErrPageRange", err)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, pdftest.Text("on disk"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := Open(path, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Path != path || doc.Name != "doc.pdf" {
		t.Errorf("path/name = %q/%q", doc.Path, doc.Name)
	}
	if doc.Text() != "on disk" {
		t.Errorf("text = %q", doc.Text())
	}
}

func TestAssemble(t *testing.T) {
	g := func(s string, x, y float64) glyph { return glyph{s: s, x: x, y: y, w: 5, size: 10} }
	glyphs := []glyph{
		// Second line, out of order and with a slightly jittered baseline.
		g("d", 15, 99.5), g("c", 10, 100),
		// First line: "ab" then a gap then "x".
		g("a", 0, 200), g("b", 5, 200), g("x", 20, 200.4),
	}
	lines := assemble(glyphs, 1, 1)
	if got := joinLines(lines); got != "ab x\ncd" {
		t.Errorf("assembled = %q, want %q", got, "ab x\ncd")
	}
	if lines[0][0].Box.X0 != 0 || lines[0][0].Box.X1 != 10 {
		t.Errorf("box of ab = %+v", lines[0][0].Box)
	}
}
