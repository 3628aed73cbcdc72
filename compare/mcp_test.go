package compare

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docdiff/internal/pdftest"
)

var testMCPImpl = &mcp.Implementation{Name: "docdiff-test", Version: "0.0.1"}

func mcpSession(t *testing.T, c *Comparator) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	RegisterMCP(srv, c)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	serverT, clientT := mcp.NewInMemoryTransports()
	go srv.Run(ctx, serverT)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestMCP_Compare(t *testing.T) {
	c := newComparator(t, WithRasterizer(&roleRaster{}))
	session := mcpSession(t, c)

	dir := t.TempDir()
	a := filepath.Join(dir, "v1.pdf")
	b := filepath.Join(dir, "v2.pdf")
	os.WriteFile(a, textDoc("alpha", "beta"), 0o600)
	os.WriteFile(b, textDoc("alpha", "gamma"), 0o600)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "docdiff_compare",
		Arguments: map[string]any{"original_path": a, "modified_path": b, "id": "cmp_mcp"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("tool error: %+v", result.Content)
	}
	text := result.Content[0].(*mcp.TextContent).Text
	var got struct {
		Type  string `json:"type"`
		ID    string `json:"id"`
		Spans []struct {
			Kind    string `json:"kind"`
			Content string `json:"content"`
		} `json:"spans"`
	}
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("decode %s: %v", text, err)
	}
	if got.Type != "text" || got.ID != "cmp_mcp" || len(got.Spans) != 2 {
		t.Fatalf("result = %s", text)
	}
	if got.Spans[0].Content != "beta" || got.Spans[1].Content != "gamma" {
		t.Errorf("spans = %+v", got.Spans)
	}

	rel, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "docdiff_release",
		Arguments: map[string]any{"id": "cmp_mcp"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rel.IsError {
		t.Fatalf("release error: %+v", rel.Content)
	}
	if _, err := os.Stat(filepath.Join(c.root.Dir(), "cmp_mcp")); !os.IsNotExist(err) {
		t.Error("workspace survived release")
	}
}

func TestMCP_CompareErrors(t *testing.T) {
	c := newComparator(t, WithRasterizer(&roleRaster{}))
	session := mcpSession(t, c)
	cases := []map[string]any{
		{"original_path": "/does/not/exist.pdf", "modified_path": "/nor/this.pdf"},
		{"original_path": "only-one.pdf"},
	}
	for _, args := range cases {
		// Schema violations may be rejected at the protocol level instead.
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "docdiff_compare", Arguments: args})
		if err == nil && !result.IsError {
			t.Errorf("args %v: expected an error", args)
		}
	}
}

func TestMCP_FailedCompareReportsID(t *testing.T) {
	// WHAT: A comparison that fails after its uploads were saved names its
	// generated id in the tool error, and that id releases the workspace.
	// WHY: Without the id an MCP caller cannot clean up the workspace.
	c := newComparator(t, WithRasterizer(&roleRaster{orig: blank(5, 5), mod: blank(5, 5)}))
	session := mcpSession(t, c)

	dir := t.TempDir()
	a := filepath.Join(dir, "scan1.pdf")
	b := filepath.Join(dir, "scan2.pdf")
	os.WriteFile(a, pdftest.Build(nil), 0o600)
	os.WriteFile(b, pdftest.Build(nil), 0o600)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "docdiff_compare",
		Arguments: map[string]any{"original_path": a, "modified_path": b},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError || len(result.Content) == 0 {
		t.Fatalf("result = %+v, want tool error", result)
	}
	text := result.Content[0].(*mcp.TextContent).Text
	id := regexp.MustCompile(`cmp_[0-9a-f-]+`).FindString(text)
	if id == "" {
		t.Fatalf("error %q carries no request id", text)
	}
	ws := filepath.Join(c.root.Dir(), id)
	if _, err := os.Stat(ws); err != nil {
		t.Fatalf("workspace %s: %v", ws, err)
	}

	rel, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "docdiff_release",
		Arguments: map[string]any{"id": id},
	})
	if err != nil || rel.IsError {
		t.Fatalf("release: %v %+v", err, rel)
	}
	if _, err := os.Stat(ws); !os.IsNotExist(err) {
		t.Errorf("workspace survived release: %v", err)
	}
}
