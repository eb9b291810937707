package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/docstruct"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolName is the MCP tool registered by RegisterMCP.
const ToolName = "extract_structure"

// Extractor turns a local file into a Result. Both *Client and Local
// implement it.
type Extractor interface {
	ExtractFile(ctx context.Context, path string) docstruct.Result
}

// Local runs extractions in-process with an Engine. With Root set, only
// files under Root are read and relative paths resolve against it.
type Local struct {
	Engine docstruct.Engine
	Root   string
}

func (l Local) ExtractFile(ctx context.Context, path string) docstruct.Result {
	if l.Root != "" {
		resolved, err := confine(l.Root, path)
		if err != nil {
			return docstruct.FailureResult(err)
		}
		path = resolved
	}
	ext, err := l.Engine.Extract(ctx, path)
	if err != nil {
		return docstruct.FailureResult(err)
	}
	return docstruct.NewResult(ext.Slides)
}

// confine resolves path inside root, following symlinks, and rejects
// anything that lands outside it.
func confine(root, path string) (string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if r, err := filepath.EvalSymlinks(path); err == nil {
		path = r
	} else if d, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		path = filepath.Join(d, filepath.Base(path))
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", docstruct.ErrPathNotAllowed, path)
	}
	return path, nil
}

type extractArgs struct {
	FilePath string `json:"file_path"`
}

// RegisterMCP adds the extract_structure tool to srv. The tool returns the
// Result as JSON text and flags failures with IsError.
func RegisterMCP(srv *mcp.Server, x Extractor) {
	tool := &mcp.Tool{
		Name:        ToolName,
		Description: "Extract structured and categorized elements (titles, tables, emails, dates, list items) from a PPTX, PDF, DOCX, XLSX or text file, grouped by slide or page.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Full path to the file to extract content from.",
				},
			},
			"required": []string{"file_path"},
		},
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args extractArgs
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}
		if args.FilePath == "" {
			var res mcp.CallToolResult
			res.SetError(errors.New("file_path is required"))
			return &res, nil
		}

		result := x.ExtractFile(ctx, args.FilePath)
		data, err := json.Marshal(result)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
			IsError: !result.Success,
		}, nil
	})
}
