// CLAUDE:SUMMARY Comparison orchestrator: persists uploads per request, classifies the original, dispatches to the text or image pipeline on a shared bounded pool, returns one closed-sum Result.
// CLAUDE:DEPENDS classify, textcmp, imagecmp, annotate, document, raster, inference, workpool, scratch, idgen, faults, kit
// CLAUDE:EXPORTS Comparator, Request, Upload, Result, TextResult, ImageResult, ErrorResult, Config, New, NewHandler, RegisterMCP
//
// Package compare is the entry point of docdiff.
//
// A Comparator owns the scratch root and shares one worker pool across all
// requests. Compare never returns an error: failures come back as
// *ErrorResult with a coarse cause, degradations (classification fallback,
// annotation failure, unparseable document) are logged and folded into a
// successful result.
//
//	c, err := compare.New(compare.DefaultConfig())
//	res := c.Compare(ctx, compare.Request{Original: a, Modified: b})
//	defer c.Release(res.RequestID())
package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/hazyhaar/docdiff/annotate"
	"github.com/hazyhaar/docdiff/classify"
	"github.com/hazyhaar/docdiff/document"
	"github.com/hazyhaar/docdiff/faults"
	"github.com/hazyhaar/docdiff/idgen"
	"github.com/hazyhaar/docdiff/imagecmp"
	"github.com/hazyhaar/docdiff/inference"
	"github.com/hazyhaar/docdiff/kit"
	"github.com/hazyhaar/docdiff/raster"
	"github.com/hazyhaar/docdiff/scratch"
	"github.com/hazyhaar/docdiff/textcmp"
	"github.com/hazyhaar/docdiff/workpool"
)

// Workspace roles and file names.
const (
	roleOriginal  = "original"
	roleModified  = "modified"
	annotatedFile = imagecmp.AnnotatedFile
)

// Upload is one document handed to the comparator.
type Upload struct {
	Name string
	Data []byte
}

// Request is one comparison. ID is generated when empty.
type Request struct {
	ID       string
	Original Upload
	Modified Upload
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithPool shares an existing pool instead of creating one. The caller
// keeps ownership and closes it.
func WithPool(p *workpool.Pool) Option {
	return func(c *Comparator) { c.pool = p }
}

// WithRasterizer replaces the pdftoppm rasterizer.
func WithRasterizer(r raster.Rasterizer) Option {
	return func(c *Comparator) { c.raster = r }
}

// WithClassifierModel replaces the page classifier model from config.
func WithClassifierModel(m inference.Model) Option {
	return func(c *Comparator) { c.classModel = m }
}

// WithSimilarityModel replaces the similarity model from config.
func WithSimilarityModel(m inference.Model) Option {
	return func(c *Comparator) { c.simModel = m }
}

// Comparator runs comparisons. It is safe for concurrent use.
type Comparator struct {
	cfg    Config
	log    *slog.Logger
	root   *scratch.Root
	pool   *workpool.Pool
	raster raster.Rasterizer

	classModel inference.Model
	simModel   inference.Model
	ownsPool   bool

	classifier *classify.Classifier
	text       *textcmp.Pipeline
	image      *imagecmp.Pipeline
}

// New builds a Comparator from cfg. Models named in cfg are loaded here.
func New(cfg *Config, opts ...Option) (*Comparator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	conf := *cfg
	conf.withLogger()

	c := &Comparator{cfg: conf, log: conf.Logger}
	for _, o := range opts {
		o(c)
	}

	root, err := scratch.Open(conf.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	c.root = root

	if c.raster == nil {
		c.raster = raster.NewPoppler(conf.Raster)
	}
	if c.classModel == nil {
		if c.classModel, err = inference.Open(conf.Inference.Classifier); err != nil {
			return nil, fmt.Errorf("compare: classifier model: %w", err)
		}
	}
	if c.simModel == nil {
		if c.simModel, err = inference.Open(conf.Inference.Similarity); err != nil {
			return nil, fmt.Errorf("compare: similarity model: %w", err)
		}
	}
	if c.pool == nil {
		c.pool = workpool.New(workpool.Config{Size: conf.Workers, Logger: conf.Logger})
		c.ownsPool = true
	}

	renderer := annotate.New(conf.Annotate)
	copts := []classify.Option{classify.WithRasterizer(c.raster)}
	if c.classModel != nil {
		copts = append(copts, classify.WithModel(c.classModel))
	}
	c.classifier = classify.New(conf.Classifier, copts...)
	c.text = textcmp.New(textcmp.Config{Logger: conf.Logger}, c.pool, renderer)

	var iopts []imagecmp.Option
	if c.simModel != nil {
		iopts = append(iopts, imagecmp.WithSimilarityModel(c.simModel))
	}
	c.image = imagecmp.New(conf.Image, c.pool, c.raster, renderer, iopts...)

	c.log.Info("compare: ready",
		"scratch", root.Dir(),
		"workers", c.pool.Size(),
		"classifier_model", c.classModel != nil,
		"similarity_model", c.simModel != nil)
	return c, nil
}

// Config returns the effective configuration.
func (c *Comparator) Config() Config { return c.cfg }

// Stats reports pool activity.
func (c *Comparator) Stats() workpool.Stats { return c.pool.Stats() }

// Close stops the pool if the Comparator created it. Workspaces are left
// in place.
func (c *Comparator) Close() {
	if c.ownsPool {
		c.pool.Close()
	}
}

// Release deletes the workspace of request id, including the annotated
// document.
func (c *Comparator) Release(id string) error {
	if err := c.root.Release(id); err != nil {
		return faults.Wrap(faults.InvalidInput, "release "+id, err)
	}
	return nil
}

// File returns the path of a result file (annotated PDF or mask PNG) in
// the workspace of request id.
func (c *Comparator) File(id, name string) (string, error) {
	if name != annotatedFile && name != imagecmp.MaskFile {
		return "", faults.Wrapf(faults.InvalidInput, "file", "unknown result file %q", name)
	}
	if err := scratch.ValidateIdentifier(id); err != nil {
		return "", faults.Wrap(faults.InvalidInput, "file", err)
	}
	return scratch.SafePath(c.root.Dir(), filepath.Join(id, name))
}

// Compare runs one comparison. It never panics and never returns nil.
func (c *Comparator) Compare(ctx context.Context, req Request) (res Result) {
	start := time.Now()
	if req.ID == "" {
		req.ID = idgen.New()
	}
	ctx = kit.WithRequestID(ctx, req.ID)
	log := c.log.With("request_id", req.ID, "transport", kit.GetTransport(ctx))
	if addr := kit.GetRemoteAddr(ctx); addr != "" {
		log = log.With("remote_addr", addr)
	}
	log.InfoContext(ctx, "compare: start",
		"original", req.Original.Name, "modified", req.Modified.Name,
		"original_bytes", len(req.Original.Data), "modified_bytes", len(req.Modified.Data))

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "compare: panic", "panic", r, "stack", string(debug.Stack()))
			res = &ErrorResult{ID: req.ID, Message: fmt.Sprintf("internal error: %v", r), Cause: faults.Internal}
		}
		elapsed := time.Since(start).Milliseconds()
		switch r := res.(type) {
		case *TextResult:
			r.ElapsedMS = elapsed
		case *ImageResult:
			r.ElapsedMS = elapsed
		case *ErrorResult:
			r.ElapsedMS = elapsed
			log.WarnContext(ctx, "compare: failed", "cause", r.Cause, "error", r.Message, "elapsed_ms", elapsed)
			return
		}
		log.InfoContext(ctx, "compare: done", "type", Kind(res), "elapsed_ms", elapsed)
	}()

	out, err := c.run(ctx, log, req)
	if err != nil {
		return &ErrorResult{ID: req.ID, Message: err.Error(), Cause: faults.CauseOf(err)}
	}
	return out
}

func (c *Comparator) run(ctx context.Context, log *slog.Logger, req Request) (Result, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}
	sess, err := c.root.Session(req.ID)
	if err != nil {
		return nil, faults.Wrap(faults.IO, "workspace", err)
	}

	step := time.Now()
	fa := workpool.Submit(ctx, c.pool, "save original", c.save(sess, roleOriginal, req.Original))
	fb := workpool.Submit(ctx, c.pool, "save modified", c.save(sess, roleModified, req.Modified))
	pathA, errA := fa.Await(ctx)
	pathB, errB := fb.Await(ctx)
	if err := errors.Join(errA, errB); err != nil {
		return nil, stepError(faults.IO, "save uploads", err)
	}

	la := workpool.Submit(ctx, c.pool, "load original", c.load(ctx, req.Original, pathA))
	lb := workpool.Submit(ctx, c.pool, "load modified", c.load(ctx, req.Modified, pathB))
	docA, errA := la.Await(ctx)
	docB, errB := lb.Await(ctx)
	if err := errors.Join(errA, errB); err != nil {
		return nil, stepError(faults.Extraction, "load documents", err)
	}
	log.DebugContext(ctx, "compare: loaded",
		"original_pages", docA.NumPages(), "modified_pages", docB.NumPages(),
		"elapsed_ms", time.Since(step).Milliseconds())

	step = time.Now()
	fv := workpool.Submit(ctx, c.pool, "classify", func(ctx context.Context) (classify.Verdict, error) {
		return c.classifier.Classify(ctx, docA), nil
	})
	verdict, err := fv.Await(ctx)
	if err != nil {
		return nil, stepError(faults.Classification, "classify", err)
	}
	log.InfoContext(ctx, "compare: classified",
		"kind", verdict.Kind, "stage", verdict.Stage, "text_ratio", verdict.TextRatio,
		"elapsed_ms", time.Since(step).Milliseconds())

	step = time.Now()
	defer func() {
		log.DebugContext(ctx, "compare: pipeline finished", "kind", verdict.Kind,
			"elapsed_ms", time.Since(step).Milliseconds())
	}()

	if verdict.Kind == classify.Text {
		out, err := c.text.Compare(ctx, docA, docB, filepath.Join(sess.Dir, annotatedFile))
		if err != nil {
			return nil, err
		}
		return &TextResult{
			ID:                req.ID,
			Classification:    verdict,
			Spans:             nonNil(out.Spans),
			Localized:         nonNil(out.Localized),
			Annotated:         out.Annotated,
			AnnotationWarning: out.AnnotationWarning,
		}, nil
	}

	out, err := c.image.Compare(ctx, docA, docB, sess.Dir)
	if err != nil {
		return nil, err
	}
	b := out.Original.Bounds()
	return &ImageResult{
		ID:                req.ID,
		Classification:    verdict,
		Original:          out.Original,
		Modified:          out.Modified,
		Mask:              out.Mask,
		Width:             b.Dx(),
		Height:            b.Dy(),
		Score:             out.Score,
		Window:            out.Window,
		Similarity:        out.Similarity,
		Regions:           nonNil(out.Regions),
		MaskPath:          out.MaskPath,
		Annotated:         out.Annotated,
		AnnotationWarning: out.AnnotationWarning,
	}, nil
}

func (c *Comparator) validate(req Request) error {
	if err := scratch.ValidateIdentifier(req.ID); err != nil {
		return faults.Wrap(faults.InvalidInput, "request id", err)
	}
	for _, u := range []struct {
		role string
		up   Upload
	}{{roleOriginal, req.Original}, {roleModified, req.Modified}} {
		if len(u.up.Data) == 0 {
			return faults.Wrapf(faults.InvalidInput, "validate", "%s document is empty", u.role)
		}
		if int64(len(u.up.Data)) > c.cfg.MaxUploadBytes {
			return faults.Wrapf(faults.InvalidInput, "validate", "%s document exceeds %d bytes", u.role, c.cfg.MaxUploadBytes)
		}
	}
	return nil
}

func (c *Comparator) save(sess *scratch.Session, role string, up Upload) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		return sess.Save(role, up.Name, up.Data)
	}
}

// load parses an upload. A document that does not parse degrades to an
// empty one that still points at the saved file, so rasterization works.
func (c *Comparator) load(ctx context.Context, up Upload, path string) func(context.Context) (*document.Document, error) {
	return func(context.Context) (*document.Document, error) {
		name := scratch.CleanName(up.Name)
		doc, err := document.Load(name, up.Data, c.cfg.Text)
		if err != nil {
			c.log.WarnContext(ctx, "compare: document did not parse, continuing without text",
				"request_id", kit.GetRequestID(ctx), "doc", name, "error", err)
			return document.Empty(name, path, up.Data), nil
		}
		doc.Path = path
		return doc, nil
	}
}

// stepError tags err with cause unless it is a cancellation.
func stepError(cause faults.Cause, op string, err error) error {
	if faults.CauseOf(err) == faults.Canceled {
		cause = faults.Canceled
	}
	return faults.Wrap(cause, op, err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
