package compare

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docdiff/kit"
)

// RegisterMCP registers the docdiff tools on an MCP server.
func (c *Comparator) RegisterMCP(srv *mcp.Server) {
	c.registerCompareTool(srv)
	c.registerReleaseTool(srv)
}

// RegisterMCP is the package-level form of (*Comparator).RegisterMCP.
func RegisterMCP(srv *mcp.Server, c *Comparator) { c.RegisterMCP(srv) }

// wrap applies the middleware shared by every docdiff tool.
func (c *Comparator) wrap(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(c.log, name), kit.Recovery(c.log))(e)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- compare ---

type compareReq struct {
	OriginalPath string `json:"original_path"`
	ModifiedPath string `json:"modified_path"`
	ID           string `json:"id,omitempty"`
}

func (c *Comparator) registerCompareTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docdiff_compare",
		Description: "Compare two PDF files. Returns text differences with word boxes for text documents, or an SSIM score and changed regions for scanned documents.",
		InputSchema: inputSchema(map[string]any{
			"original_path": map[string]any{"type": "string", "description": "Path of the original PDF"},
			"modified_path": map[string]any{"type": "string", "description": "Path of the modified PDF"},
			"id":            map[string]any{"type": "string", "description": "Optional request id (workspace name)"},
		}, []string{"original_path", "modified_path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*compareReq)
		original, err := c.readUpload(r.OriginalPath)
		if err != nil {
			return nil, err
		}
		modified, err := c.readUpload(r.ModifiedPath)
		if err != nil {
			return nil, err
		}
		res := c.Compare(ctx, Request{ID: r.ID, Original: original, Modified: modified})
		if e, ok := res.(*ErrorResult); ok {
			// The workspace may already hold the uploads; the id lets the
			// caller release it.
			return nil, fmt.Errorf("%s [%s]: %s", e.Cause, e.ID, e.Message)
		}
		return res, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r compareReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.OriginalPath == "" || r.ModifiedPath == "" {
			return nil, fmt.Errorf("original_path and modified_path are required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, c.wrap(tool.Name, endpoint), decode)
}

func (c *Comparator) readUpload(path string) (Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Upload{}, err
	}
	if info.Size() > c.cfg.MaxUploadBytes {
		return Upload{}, fmt.Errorf("%s exceeds %d bytes", path, c.cfg.MaxUploadBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Upload{}, err
	}
	return Upload{Name: filepath.Base(path), Data: data}, nil
}

// --- release ---

type releaseReq struct {
	ID string `json:"id"`
}

func (c *Comparator) registerReleaseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docdiff_release",
		Description: "Delete the workspace of a finished comparison, including its annotated document.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Request id returned by docdiff_compare"},
		}, []string{"id"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*releaseReq)
		if err := c.Release(r.ID); err != nil {
			return nil, err
		}
		return map[string]string{"id": r.ID, "status": "released"}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r releaseReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, c.wrap(tool.Name, endpoint), decode)
}
