package compare

import (
	"encoding/json"
	"errors"
	"image"

	"github.com/hazyhaar/docdiff/classify"
	"github.com/hazyhaar/docdiff/faults"
	"github.com/hazyhaar/docdiff/imagecmp"
	"github.com/hazyhaar/docdiff/textcmp"
)

// Result is one of *TextResult, *ImageResult or *ErrorResult.
//
//	switch r := res.(type) {
//	case *compare.TextResult:
//	case *compare.ImageResult:
//	case *compare.ErrorResult:
//	}
type Result interface {
	RequestID() string
	isResult()
}

// TextResult is the outcome of the text pipeline.
type TextResult struct {
	ID             string           `json:"id"`
	Classification classify.Verdict `json:"classification"`

	// Spans is the whole-document diff. Localized holds the page-local
	// added lines with their boxes on the modified document.
	Spans     []textcmp.Span `json:"spans"`
	Localized []textcmp.Span `json:"localized"`

	Annotated         string `json:"annotated,omitempty"`
	AnnotationWarning string `json:"annotation_warning,omitempty"`
	ElapsedMS         int64  `json:"elapsed_ms"`
}

// ImageResult is the outcome of the image pipeline. Rasters stay out of
// JSON; MaskPath points at the mask PNG instead.
type ImageResult struct {
	ID             string           `json:"id"`
	Classification classify.Verdict `json:"classification"`

	Original *image.RGBA `json:"-"`
	Modified *image.RGBA `json:"-"`
	Mask     *image.Gray `json:"-"`

	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Score      float64           `json:"score"`
	Window     int               `json:"window"`
	Similarity *float64          `json:"similarity,omitempty"`
	Regions    []imagecmp.Region `json:"regions"`

	MaskPath          string `json:"mask_path,omitempty"`
	Annotated         string `json:"annotated,omitempty"`
	AnnotationWarning string `json:"annotation_warning,omitempty"`
	ElapsedMS         int64  `json:"elapsed_ms"`
}

// ErrorResult reports a comparison that could not complete.
type ErrorResult struct {
	ID        string       `json:"id"`
	Message   string       `json:"message"`
	Cause     faults.Cause `json:"cause"`
	ElapsedMS int64        `json:"elapsed_ms"`
}

func (r *TextResult) RequestID() string  { return r.ID }
func (r *ImageResult) RequestID() string { return r.ID }
func (r *ErrorResult) RequestID() string { return r.ID }

func (*TextResult) isResult()  {}
func (*ImageResult) isResult() {}
func (*ErrorResult) isResult() {}

// Kind returns the JSON discriminator of r.
func Kind(r Result) string {
	switch r.(type) {
	case *TextResult:
		return "text"
	case *ImageResult:
		return "image"
	case *ErrorResult:
		return "error"
	}
	return ""
}

func (r *TextResult) MarshalJSON() ([]byte, error) {
	type alias TextResult
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{"text", (*alias)(r)})
}

func (r *ImageResult) MarshalJSON() ([]byte, error) {
	type alias ImageResult
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{"image", (*alias)(r)})
}

func (r *ErrorResult) MarshalJSON() ([]byte, error) {
	type alias ErrorResult
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{"error", (*alias)(r)})
}

// Err converts an ErrorResult back into an error carrying its cause.
func (r *ErrorResult) Err() error {
	return &faults.Error{Cause: r.Cause, Op: "compare " + r.ID, Err: errors.New(r.Message)}
}
