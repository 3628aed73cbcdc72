package compare

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/docdiff/classify"
	"github.com/hazyhaar/docdiff/faults"
	"github.com/hazyhaar/docdiff/internal/pdftest"
	"github.com/hazyhaar/docdiff/textcmp"
)

// roleRaster renders by workspace role: files saved under original/ get
// orig, files under modified/ get mod.
type roleRaster struct {
	orig, mod *image.RGBA
	panics    bool
}

func (f *roleRaster) Rasterize(_ context.Context, path string, _, _ int) (*image.RGBA, error) {
	if f.panics {
		panic("renderer crashed")
	}
	switch filepath.Base(filepath.Dir(path)) {
	case roleOriginal:
		return f.orig, nil
	case roleModified:
		return f.mod, nil
	}
	return nil, errors.New("unexpected path " + path)
}

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func newComparator(t *testing.T, opts ...Option) *Comparator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ScratchDir = t.TempDir()
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

// textDoc is a one-page text document the heuristic recognises.
func textDoc(lines ...string) []byte {
	return pdftest.Text(append([]string{pdftest.Filler(60), pdftest.Filler(60)}, lines...)...)
}

func TestCompare_TextPipeline(t *testing.T) {
	// WHAT: Two text PDFs go through the text pipeline end to end.
	// WHY: This is the main path: classify, diff, localize, annotate.
	c := newComparator(t, WithRasterizer(&roleRaster{}))
	res := c.Compare(context.Background(), Request{
		Original: Upload{Name: "v1.pdf", Data: textDoc("Line1", "Line2", "Line3")},
		Modified: Upload{Name: "v2.pdf", Data: textDoc("Line1", "Modified", "Line3")},
	})

	tr, ok := res.(*TextResult)
	if !ok {
		t.Fatalf("result = %#v, want *TextResult", res)
	}
	if !strings.HasPrefix(tr.ID, "cmp_") {
		t.Errorf("generated id = %q", tr.ID)
	}
	if tr.Classification.Kind != classify.Text || tr.Classification.Stage != classify.StageHeuristic {
		t.Errorf("classification = %+v", tr.Classification)
	}
	if len(tr.Spans) != 2 ||
		tr.Spans[0].Kind != textcmp.Removed || tr.Spans[0].Content != "Line2" ||
		tr.Spans[1].Kind != textcmp.Added || tr.Spans[1].Content != "Modified" {
		t.Fatalf("spans = %v", tr.Spans)
	}
	if len(tr.Localized) != 1 || len(tr.Localized[0].Boxes) != 1 {
		t.Errorf("localized = %+v", tr.Localized)
	}
	if tr.AnnotationWarning != "" {
		t.Errorf("warning = %q", tr.AnnotationWarning)
	}
	if _, err := os.Stat(tr.Annotated); err != nil {
		t.Errorf("annotated document: %v", err)
	}
}

func TestCompare_IdenticalText(t *testing.T) {
	c := newComparator(t, WithRasterizer(&roleRaster{}))
	data := textDoc("same", "lines")
	res := c.Compare(context.Background(), Request{
		Original: Upload{Name: "a.pdf", Data: data},
		Modified: Upload{Name: "a.pdf", Data: data},
	})
	tr, ok := res.(*TextResult)
	if !ok {
		t.Fatalf("result = %#v", res)
	}
	if len(tr.Spans) != 0 || len(tr.Localized) != 0 {
		t.Errorf("identical documents produced spans: %v %v", tr.Spans, tr.Localized)
	}
}

func TestCompare_AnnotationFailureKeepsSpans(t *testing.T) {
	c := newComparator(t, WithRasterizer(&roleRaster{}))
	// A non-empty directory where the annotated file should go.
	sess, err := c.root.Session("cmp_blocked")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(sess.Dir, annotatedFile, "occupied"), 0o700); err != nil {
		t.Fatal(err)
	}

	res := c.Compare(context.Background(), Request{
		ID:       "cmp_blocked",
		Original: Upload{Name: "a.pdf", Data: textDoc("one", "two")},
		Modified: Upload{Name: "b.pdf", Data: textDoc("one", "three")},
	})
	tr, ok := res.(*TextResult)
	if !ok {
		t.Fatalf("annotation failure must not downgrade the result: %#v", res)
	}
	if len(tr.Spans) != 2 {
		t.Errorf("spans = %v, want 2", tr.Spans)
	}
	if tr.AnnotationWarning == "" || tr.Annotated != "" {
		t.Errorf("warning = %q, annotated = %q", tr.AnnotationWarning, tr.Annotated)
	}
}

func TestCompare_ImagePipeline(t *testing.T) {
	mod := blank(60, 60)
	for y := 20; y < 40; y++ {
		for x := 20; x < 40; x++ {
			mod.Pix[y*mod.Stride+4*x] = 0
			mod.Pix[y*mod.Stride+4*x+1] = 0
			mod.Pix[y*mod.Stride+4*x+2] = 0
		}
	}
	c := newComparator(t, WithRasterizer(&roleRaster{orig: blank(60, 60), mod: mod}))
	res := c.Compare(context.Background(), Request{
		Original: Upload{Name: "scan1.pdf", Data: pdftest.Build(nil)},
		Modified: Upload{Name: "scan2.pdf", Data: pdftest.Build(nil)},
	})
	ir, ok := res.(*ImageResult)
	if !ok {
		t.Fatalf("result = %#v, want *ImageResult", res)
	}
	if ir.Classification.Kind != classify.Image || ir.Classification.Stage != classify.StageDefault {
		t.Errorf("classification = %+v", ir.Classification)
	}
	if ir.Score >= 1 || len(ir.Regions) == 0 {
		t.Errorf("score = %v, regions = %v", ir.Score, ir.Regions)
	}
	if ir.Width != 60 || ir.Height != 60 || ir.Mask == nil || ir.Original == nil {
		t.Errorf("rasters missing: %dx%d", ir.Width, ir.Height)
	}
	if _, err := os.Stat(ir.MaskPath); err != nil {
		t.Errorf("mask: %v", err)
	}

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != "image" {
		t.Errorf("type = %v", m["type"])
	}
	for _, k := range []string{"Original", "Modified", "Mask", "original", "mask"} {
		if _, ok := m[k]; ok {
			t.Errorf("raster %q leaked into JSON", k)
		}
	}
}

func TestCompare_TinyImageIsComparisonError(t *testing.T) {
	// WHAT: 5x5 rasters end as an ErrorResult with the comparison cause.
	// WHY: The window cannot fit; the caller gets a clear failure, not a crash.
	c := newComparator(t, WithRasterizer(&roleRaster{orig: blank(5, 5), mod: blank(5, 5)}))
	res := c.Compare(context.Background(), Request{
		Original: Upload{Name: "a.pdf", Data: pdftest.Build(nil)},
		Modified: Upload{Name: "b.pdf", Data: pdftest.Build(nil)},
	})
	er, ok := res.(*ErrorResult)
	if !ok {
		t.Fatalf("result = %#v, want *ErrorResult", res)
	}
	if er.Cause != faults.Comparison {
		t.Errorf("cause = %q, want comparison", er.Cause)
	}
}

func TestCompare_UnparseableDocumentDegrades(t *testing.T) {
	// A document the text layer cannot read still goes through the image
	// pipeline from its saved file.
	c := newComparator(t, WithRasterizer(&roleRaster{orig: blank(20, 20), mod: blank(20, 20)}))
	res := c.Compare(context.Background(), Request{
		Original: Upload{Name: "a.pdf", Data: []byte("%PDF-1.4 truncated")},
		Modified: Upload{Name: "b.pdf", Data: []byte("%PDF-1.4 truncated")},
	})
	ir, ok := res.(*ImageResult)
	if !ok {
		t.Fatalf("result = %#v, want *ImageResult", res)
	}
	if ir.Score != 1 {
		t.Errorf("score = %v", ir.Score)
	}
}

func TestCompare_DistinctWorkspaces(t *testing.T) {
	// WHAT: Two requests uploading the same filename keep separate files.
	// WHY: Concurrent requests must never read each other's documents.
	c := newComparator(t, WithRasterizer(&roleRaster{}))
	a := textDoc("first request")
	b := textDoc("second request")
	for id, data := range map[string][]byte{"cmp_one": a, "cmp_two": b} {
		res := c.Compare(context.Background(), Request{
			ID:       id,
			Original: Upload{Name: "report.pdf", Data: data},
			Modified: Upload{Name: "report.pdf", Data: data},
		})
		if _, ok := res.(*TextResult); !ok {
			t.Fatalf("%s: %#v", id, res)
		}
	}
	p1 := filepath.Join(c.root.Dir(), "cmp_one", roleOriginal, "report.pdf")
	p2 := filepath.Join(c.root.Dir(), "cmp_two", roleOriginal, "report.pdf")
	d1, err1 := os.ReadFile(p1)
	d2, err2 := os.ReadFile(p2)
	if err1 != nil || err2 != nil {
		t.Fatalf("read: %v %v", err1, err2)
	}
	if string(d1) != string(a) || string(d2) != string(b) {
		t.Error("workspaces overwrote each other")
	}

	if err := c.Release("cmp_one"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Error("release left files behind")
	}
	if _, err := os.Stat(p2); err != nil {
		t.Error("release removed another request's files")
	}
}

func TestCompare_InvalidInput(t *testing.T) {
	c := newComparator(t, WithRasterizer(&roleRaster{}))
	cases := []struct {
		name string
		req  Request
	}{
		{"empty original", Request{Modified: Upload{Name: "b.pdf", Data: []byte("x")}}},
		{"empty modified", Request{Original: Upload{Name: "a.pdf", Data: []byte("x")}}},
		{"bad id", Request{ID: "../escape", Original: Upload{Data: []byte("x")}, Modified: Upload{Data: []byte("y")}}},
	}
	for _, tc := range cases {
		res := c.Compare(context.Background(), tc.req)
		er, ok := res.(*ErrorResult)
		if !ok || er.Cause != faults.InvalidInput {
			t.Errorf("%s: result = %#v, want invalid_input", tc.name, res)
		}
	}
}

func TestCompare_Canceled(t *testing.T) {
	c := newComparator(t, WithRasterizer(&roleRaster{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Compare(ctx, Request{
		Original: Upload{Name: "a.pdf", Data: textDoc("x")},
		Modified: Upload{Name: "b.pdf", Data: textDoc("y")},
	})
	er, ok := res.(*ErrorResult)
	if !ok || er.Cause != faults.Canceled {
		t.Fatalf("result = %#v, want canceled", res)
	}
}

func TestCompare_PanicInPipelineIsContained(t *testing.T) {
	c := newComparator(t, WithRasterizer(&roleRaster{panics: true}))
	res := c.Compare(context.Background(), Request{
		Original: Upload{Name: "a.pdf", Data: pdftest.Build(nil)},
		Modified: Upload{Name: "b.pdf", Data: pdftest.Build(nil)},
	})
	if _, ok := res.(*ErrorResult); !ok {
		t.Fatalf("result = %#v, want *ErrorResult", res)
	}
}

func TestResultJSON_Discriminator(t *testing.T) {
	cases := []struct {
		res  Result
		want string
	}{
		{&TextResult{ID: "cmp_t", Spans: []textcmp.Span{}}, "text"},
		{&ImageResult{ID: "cmp_i"}, "image"},
		{&ErrorResult{ID: "cmp_e", Message: "boom", Cause: faults.IO}, "error"},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.res)
		if err != nil {
			t.Fatal(err)
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatal(err)
		}
		if m["type"] != tc.want || m["id"] != tc.res.RequestID() {
			t.Errorf("%s: json = %s", tc.want, b)
		}
		if Kind(tc.res) != tc.want {
			t.Errorf("Kind = %q, want %q", Kind(tc.res), tc.want)
		}
	}
}

func TestErrorResult_Err(t *testing.T) {
	err := (&ErrorResult{ID: "cmp_x", Message: "disk full", Cause: faults.IO}).Err()
	if !faults.Is(err, faults.IO) || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("err = %v", err)
	}
}
