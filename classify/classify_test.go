package classify

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/docdiff/document"
	"github.com/hazyhaar/docdiff/inference"
	"github.com/hazyhaar/docdiff/internal/pdftest"
)

type fakeRaster struct {
	calls int
	err   error
}

func (f *fakeRaster) Rasterize(_ context.Context, _ string, _, _ int) (*image.RGBA, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 300, 400))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetRGBA(0, 0, color.RGBA{A: 255})
	return img, nil
}

type fakeModel struct {
	calls  int
	logits []float32
	err    error
}

func (f *fakeModel) Predict(_ context.Context, in inference.Tensor) ([]float32, error) {
	f.calls++
	if in.Shape() != [3]int{3, 224, 224} {
		return nil, errors.New("unexpected input shape")
	}
	return f.logits, f.err
}

// textPage holds well over 100 characters.
var textPage = []string{pdftest.Filler(60), pdftest.Filler(60)}

// openDoc writes pages to disk and loads them, so the fallback has a path.
func openDoc(t *testing.T, pages ...[]string) *document.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, pdftest.Build(pages...), 0o600); err != nil {
		t.Fatal(err)
	}
	doc, err := document.Open(path, document.Config{})
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestClassify_HeuristicText(t *testing.T) {
	// WHAT: 3 of the first 5 pages carry text, so the heuristic says Text alone.
	// WHY: The model must not be consulted when the cheap signal is decisive.
	doc := openDoc(t, textPage, textPage, textPage, nil, nil)
	m := &fakeModel{logits: []float32{0, 10}}
	r := &fakeRaster{}
	v := New(Config{}, WithModel(m), WithRasterizer(r)).Classify(context.Background(), doc)

	if v.Kind != Text || v.Stage != StageHeuristic {
		t.Fatalf("verdict = %+v, want heuristic text", v)
	}
	if v.Confidence != nil {
		t.Errorf("heuristic verdict carries confidence %v", *v.Confidence)
	}
	if m.calls != 0 || r.calls != 0 {
		t.Errorf("model calls = %d, raster calls = %d; want 0", m.calls, r.calls)
	}
	if math.Abs(v.TextRatio-0.6) > 1e-9 {
		t.Errorf("ratio = %v, want 0.6", v.TextRatio)
	}
}

func TestClassify_ModelFallback(t *testing.T) {
	cases := []struct {
		name   string
		logits []float32
		want   Kind
	}{
		{"image", []float32{0, 3}, Image},
		{"text", []float32{3, 0}, Text},
		{"tie", []float32{1, 1}, Text},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := openDoc(t, textPage, nil, nil)
			m := &fakeModel{logits: tc.logits}
			v := New(Config{}, WithModel(m), WithRasterizer(&fakeRaster{})).Classify(context.Background(), doc)
			if v.Kind != tc.want || v.Stage != StageModel {
				t.Fatalf("verdict = %+v, want model %s", v, tc.want)
			}
			if v.Confidence == nil {
				t.Fatal("model verdict must carry confidence")
			}
			want := inference.Softmax(tc.logits)[1]
			if math.Abs(*v.Confidence-want) > 1e-9 {
				t.Errorf("confidence = %v, want %v", *v.Confidence, want)
			}
		})
	}
}

func TestClassify_FallbackFailuresDefaultToImage(t *testing.T) {
	// WHAT: Every fallback failure yields Image with no confidence.
	// WHY: Classification degrades, it never aborts the comparison.
	cases := []struct {
		name  string
		opts  []Option
		empty bool
	}{
		{"no model", []Option{WithRasterizer(&fakeRaster{})}, false},
		{"no rasterizer", []Option{WithModel(&fakeModel{logits: []float32{5, 0}})}, false},
		{"raster error", []Option{WithModel(&fakeModel{logits: []float32{5, 0}}), WithRasterizer(&fakeRaster{err: errors.New("boom")})}, false},
		{"inference error", []Option{WithModel(&fakeModel{err: errors.New("down")}), WithRasterizer(&fakeRaster{})}, false},
		{"wrong logits", []Option{WithModel(&fakeModel{logits: []float32{5}}), WithRasterizer(&fakeRaster{})}, false},
		{"no path", []Option{WithModel(&fakeModel{logits: []float32{5, 0}}), WithRasterizer(&fakeRaster{})}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := openDoc(t, nil)
			if tc.empty {
				doc = document.Empty("x.pdf", "", nil)
			}
			v := New(Config{}, tc.opts...).Classify(context.Background(), doc)
			if v.Kind != Image || v.Stage != StageDefault || v.Confidence != nil {
				t.Fatalf("verdict = %+v, want default image", v)
			}
		})
	}
}

func TestTextRatio(t *testing.T) {
	c := New(Config{})
	cases := []struct {
		name  string
		doc   *document.Document
		ratio float64
	}{
		{"no pages", document.Empty("e.pdf", "", nil), 0},
		{"all blank", openDoc(t, nil, nil), 0},
		{"short text", openDoc(t, []string{"hello"}), 0},
		{"one of two", openDoc(t, textPage, nil), 0.5},
		// Only the first five pages are sampled.
		{"late text ignored", openDoc(t, nil, nil, nil, nil, nil, textPage, textPage), 0},
	}
	for _, tc := range cases {
		if got := c.TextRatio(tc.doc); math.Abs(got-tc.ratio) > 1e-9 {
			t.Errorf("%s: ratio = %v, want %v", tc.name, got, tc.ratio)
		}
	}
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.defaults()
	if cfg.SamplePages != 5 || cfg.MinChars != 100 || cfg.Threshold != 0.6 ||
		cfg.DPI != 200 || cfg.InputSize != 224 || cfg.ImageCutoff != 0.5 || cfg.Logger == nil {
		t.Errorf("defaults = %+v", cfg)
	}
}
