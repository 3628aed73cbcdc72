// CLAUDE:SUMMARY Text comparison pipeline: whole-document line diff for reporting, page-local diff for word-box localization, highlight annotation of the modified document.
// CLAUDE:DEPENDS document, seqdiff, annotate, workpool, faults
// CLAUDE:EXPORTS Pipeline, Span, Kind, Outcome, Config, New
//
// Package textcmp compares two text-based documents.
//
// The reported differences come from one diff over the concatenated text of
// each document. Localization is a separate diff per page index, used only
// to find boxes for added lines on the modified document. The two diffs are
// independent and may disagree when content moves across pages.
package textcmp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/docdiff/annotate"
	"github.com/hazyhaar/docdiff/document"
	"github.com/hazyhaar/docdiff/faults"
	"github.com/hazyhaar/docdiff/seqdiff"
	"github.com/hazyhaar/docdiff/workpool"
)

// Kind tells whether a span appears only in the modified or only in the
// original document.
type Kind string

const (
	Added   Kind = "added"
	Removed Kind = "removed"
)

// WholeDocument is the Page of spans from the whole-document diff.
const WholeDocument = -1

// Span is one differing line.
type Span struct {
	Kind    Kind           `json:"kind"`
	Content string         `json:"content"`
	Page    int            `json:"page"`
	Boxes   []document.Box `json:"boxes,omitempty"`
}

// Outcome is the result of one text comparison.
type Outcome struct {
	// Spans is the whole-document diff, in edit-script order.
	Spans []Span `json:"spans"`

	// Localized holds one span per added line of each page-local diff,
	// with the boxes of matching words on the modified document.
	Localized []Span `json:"localized"`

	// Annotated is the path of the highlighted copy of the modified
	// document, empty when annotation failed or was not requested.
	Annotated string `json:"annotated,omitempty"`

	AnnotationWarning string `json:"annotation_warning,omitempty"`
}

// Config for the text pipeline.
type Config struct {
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline runs text comparisons. It is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	pool     *workpool.Pool
	renderer *annotate.Renderer
}

// New creates a Pipeline that offloads extraction and annotation to pool.
func New(cfg Config, pool *workpool.Pool, renderer *annotate.Renderer) *Pipeline {
	cfg.defaults()
	return &Pipeline{cfg: cfg, pool: pool, renderer: renderer}
}

// Compare diffs original against modified and writes a highlighted copy of
// modified to out (skipped when out is empty). An annotation failure is
// reported in Outcome.AnnotationWarning, never as an error. Errors are
// limited to cancellation.
func (p *Pipeline) Compare(ctx context.Context, original, modified *document.Document, out string) (*Outcome, error) {
	log := p.cfg.Logger
	start := time.Now()

	f1 := workpool.Submit(ctx, p.pool, "extract original", extractText(original))
	f2 := workpool.Submit(ctx, p.pool, "extract modified", extractText(modified))
	text1, err := f1.Await(ctx)
	if err != nil {
		return nil, faults.Wrap(faults.CauseOf(err), "extract original", err)
	}
	text2, err := f2.Await(ctx)
	if err != nil {
		return nil, faults.Wrap(faults.CauseOf(err), "extract modified", err)
	}
	log.DebugContext(ctx, "textcmp: extracted",
		"original_chars", len(text1), "modified_chars", len(text2),
		"elapsed_ms", time.Since(start).Milliseconds())

	res := &Outcome{Spans: Diff(text1, text2)}

	if err := ctx.Err(); err != nil {
		return nil, faults.Wrap(faults.Canceled, "localize", err)
	}
	res.Localized = p.localize(ctx, original, modified)

	if out == "" || p.renderer == nil {
		return res, nil
	}
	marks := Marks(res.Localized)
	fa := workpool.Submit(ctx, p.pool, "annotate text", func(context.Context) (struct{}, error) {
		return struct{}{}, p.renderer.AnnotateText(modified.Bytes(), marks, out)
	})
	if _, err := fa.Await(ctx); err != nil {
		if faults.CauseOf(err) == faults.Canceled {
			return nil, faults.Wrap(faults.Canceled, "annotate text", err)
		}
		log.WarnContext(ctx, "textcmp: annotation failed", "doc", modified.Name, "error", err)
		res.AnnotationWarning = err.Error()
		return res, nil
	}
	res.Annotated = out
	return res, nil
}

func extractText(doc *document.Document) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return doc.Text(), nil }
}

// Diff returns the added and removed lines between two text bodies, as
// whole-document spans.
func Diff(a, b string) []Span {
	var spans []Span
	for _, e := range seqdiff.Changes(seqdiff.Lines(a, b)) {
		spans = append(spans, Span{Kind: kindOf(e.Op), Content: e.Value, Page: WholeDocument})
	}
	return spans
}

func kindOf(op seqdiff.Op) Kind {
	if op == seqdiff.Added {
		return Added
	}
	return Removed
}

// pageContent returns the text and words of pg. A page that fails to
// extract yields neither, so it is diffed as empty and nothing is boxed.
func pageContent(pg *document.Page) (string, []document.Word, error) {
	text, err := pg.Text()
	if err != nil {
		return "", nil, err
	}
	words, err := pg.Words()
	if err != nil {
		return "", nil, err
	}
	return text, words, nil
}

// localize diffs each page index present in both documents and boxes the
// added lines on the modified page.
func (p *Pipeline) localize(ctx context.Context, original, modified *document.Document) []Span {
	n := min(original.NumPages(), modified.NumPages())
	var spans []Span
	for i := 0; i < n; i++ {
		ta, _, err := pageContent(original.Pages()[i])
		if err != nil {
			p.cfg.Logger.WarnContext(ctx, "textcmp: page extraction failed", "doc", original.Name, "page", i, "error", err)
		}
		tb, words, err := pageContent(modified.Pages()[i])
		if err != nil {
			p.cfg.Logger.WarnContext(ctx, "textcmp: page extraction failed", "doc", modified.Name, "page", i, "error", err)
		}
		spans = append(spans, LocalizePage(i, ta, tb, words)...)
	}
	return spans
}

// LocalizePage diffs two page texts and returns one span per added line.
// A word is boxed when its trimmed text equals the trimmed line exactly,
// so multi-word lines normally stay unboxed.
func LocalizePage(page int, original, modified string, words []document.Word) []Span {
	var spans []Span
	for _, e := range seqdiff.Changes(seqdiff.Lines(original, modified)) {
		if e.Op != seqdiff.Added {
			continue
		}
		want := strings.TrimSpace(e.Value)
		s := Span{Kind: Added, Content: e.Value, Page: page}
		for _, w := range words {
			if want != "" && strings.TrimSpace(w.Text) == want {
				s.Boxes = append(s.Boxes, w.Box)
			}
		}
		spans = append(spans, s)
	}
	return spans
}

// Marks flattens the boxes of localized spans into annotation marks.
func Marks(spans []Span) []annotate.Mark {
	var marks []annotate.Mark
	for _, s := range spans {
		for _, b := range s.Boxes {
			marks = append(marks, annotate.Mark{Page: s.Page, Box: b})
		}
	}
	return marks
}

// String renders a span the way a unified diff would.
func (s Span) String() string {
	sign := "+"
	if s.Kind == Removed {
		sign = "-"
	}
	if s.Page == WholeDocument {
		return sign + s.Content
	}
	return fmt.Sprintf("p%d %s%s (%d boxes)", s.Page+1, sign, s.Content, len(s.Boxes))
}
