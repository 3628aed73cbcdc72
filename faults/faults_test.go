package faults

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(IO, "save", nil); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestCauseOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Cause
	}{
		{"nil", nil, ""},
		{"direct", Wrap(Extraction, "rasterize", io.EOF), Extraction},
		{"wrapped twice", fmt.Errorf("outer: %w", Wrap(Annotation, "highlight", io.EOF)), Annotation},
		{"canceled", fmt.Errorf("await: %w", context.Canceled), Canceled},
		{"deadline", context.DeadlineExceeded, Canceled},
		{"plain", errors.New("boom"), Internal},
		{"formatted", Wrapf(Comparison, "ssim", "too small: %d", 5), Comparison},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CauseOf(tc.err); got != tc.want {
				t.Errorf("CauseOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := Wrap(IO, "save original", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("errors.Is must see the wrapped error")
	}
	if got := err.Error(); got != "save original: unexpected EOF" {
		t.Errorf("Error() = %q", got)
	}
	if !Is(err, IO) || Is(err, Annotation) {
		t.Error("Is must match only the carried cause")
	}
}
