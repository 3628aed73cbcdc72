package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ok := Logging(logger, "docdiff_compare")(func(context.Context, any) (any, error) { return "done", nil })
	ctx := WithRemoteAddr(WithTransport(context.Background(), "mcp"), "10.0.0.1:5000")
	if resp, err := ok(ctx, nil); err != nil || resp != "done" {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
	out := buf.String()
	for _, want := range []string{"endpoint ok", "endpoint=docdiff_compare", "transport=mcp", "remote_addr=10.0.0.1:5000"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q lacks %q", out, want)
		}
	}

	buf.Reset()
	fail := Logging(logger, "docdiff_release")(func(context.Context, any) (any, error) { return nil, errors.New("boom") })
	if _, err := fail(context.Background(), nil); err == nil {
		t.Fatal("error swallowed")
	}
	if out := buf.String(); !strings.Contains(out, "endpoint failed") || !strings.Contains(out, "error=boom") {
		t.Errorf("log = %q", out)
	}
}

func TestRecovery(t *testing.T) {
	// WHAT: A panicking endpoint returns an error instead of crashing.
	// WHY: One bad request must not take the MCP server down.
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	e := Chain(Recovery(logger))(func(context.Context, any) (any, error) { panic("kaboom") })
	resp, err := e(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
	if resp != nil {
		t.Errorf("resp = %v, want nil", resp)
	}
}
