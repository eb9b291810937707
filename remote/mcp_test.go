package remote

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/docstruct"
	"github.com/brunobiangulo/docstruct/element"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "docstruct-test", Version: "0.1.0"}

type extractorFunc func(ctx context.Context, path string) docstruct.Result

func (f extractorFunc) ExtractFile(ctx context.Context, path string) docstruct.Result {
	return f(ctx, path)
}

func mcpSession(t *testing.T, x Extractor) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	RegisterMCP(srv, x)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callExtract(t *testing.T, session *mcp.ClientSession, args any) (*mcp.CallToolResult, docstruct.Result) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent")
	}
	var res docstruct.Result
	_ = json.Unmarshal([]byte(tc.Text), &res)
	return result, res
}

func TestMCPExtract(t *testing.T) {
	var gotPath string
	session := mcpSession(t, extractorFunc(func(_ context.Context, path string) docstruct.Result {
		gotPath = path
		return docstruct.NewResult([]element.SlideRecord{{Slide: 3, Elements: []element.LabeledElement{{Type: "Email", Text: "a@b.io"}}}})
	}))

	result, res := callExtract(t, session, map[string]any{"file_path": "/tmp/deck.pptx"})
	if result.IsError {
		t.Fatalf("tool error: %+v", result)
	}
	if gotPath != "/tmp/deck.pptx" {
		t.Errorf("path = %q", gotPath)
	}
	if !res.Success || len(res.Slides) != 1 || res.Slides[0].Slide != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestMCPExtractFailure(t *testing.T) {
	session := mcpSession(t, extractorFunc(func(context.Context, string) docstruct.Result {
		return docstruct.FailureResult(errors.New("file not found: /x.pptx"))
	}))

	result, res := callExtract(t, session, map[string]any{"file_path": "/x.pptx"})
	if !result.IsError {
		t.Error("failure should set IsError")
	}
	if res.Success || res.Error != "file not found: /x.pptx" {
		t.Errorf("result = %+v", res)
	}
}

func TestMCPExtractMissingArgument(t *testing.T) {
	called := false
	session := mcpSession(t, extractorFunc(func(context.Context, string) docstruct.Result {
		called = true
		return docstruct.NewResult(nil)
	}))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolName,
		Arguments: map[string]any{"file_path": ""},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Error("empty file_path should be a tool error")
	}
	if called {
		t.Error("extractor called without a path")
	}
}

func TestLocalExtractor(t *testing.T) {
	e, err := docstruct.New(docstruct.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	path := tempFile(t, "notes.txt", "Agenda\n\nCall 555-123-4567 today")
	res := Local{Engine: e}.ExtractFile(context.Background(), path)
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	els := res.Slides[0].Elements
	if len(els) != 2 || els[1].Type != element.LabelPhoneNumber {
		t.Errorf("elements = %+v", els)
	}

	res = Local{Engine: e}.ExtractFile(context.Background(), path+".missing")
	if res.Success || res.Error == "" {
		t.Errorf("missing file result = %+v", res)
	}
}

func TestLocalExtractorRoot(t *testing.T) {
	e, err := docstruct.New(docstruct.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	base := t.TempDir()
	root := filepath.Join(base, "shared")
	if err := os.MkdirAll(filepath.Join(root, "decks"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		filepath.Join(root, "decks", "notes.txt"): "Agenda",
		filepath.Join(base, "secret.txt"):         "Private",
	} {
		if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	outside := tempFile(t, "other.txt", "Elsewhere")

	tests := []struct {
		name    string
		path    string
		allowed bool
	}{
		{"relative inside", "decks/notes.txt", true},
		{"absolute inside", filepath.Join(root, "decks", "notes.txt"), true},
		{"dot segments inside", filepath.Join(root, "decks", "..", "decks", "notes.txt"), true},
		{"parent escape", "../secret.txt", false},
		{"nested escape", "decks/../../secret.txt", false},
		{"absolute outside", outside, false},
	}
	x := Local{Engine: e, Root: root}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := x.ExtractFile(context.Background(), tt.path)
			if tt.allowed {
				if !res.Success || res.Slides[0].Elements[0].Text != "Agenda" {
					t.Errorf("result = %+v", res)
				}
				return
			}
			if res.Success || !strings.Contains(res.Error, docstruct.ErrPathNotAllowed.Error()) {
				t.Errorf("result = %+v, want %v", res, docstruct.ErrPathNotAllowed)
			}
		})
	}
}

func TestLocalExtractorRootSymlink(t *testing.T) {
	e, err := docstruct.New(docstruct.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	root := t.TempDir()
	secret := tempFile(t, "secret.txt", "Private")
	if err := os.Symlink(secret, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	res := Local{Engine: e, Root: root}.ExtractFile(context.Background(), "link.txt")
	if res.Success || !strings.Contains(res.Error, docstruct.ErrPathNotAllowed.Error()) {
		t.Errorf("result = %+v, want %v", res, docstruct.ErrPathNotAllowed)
	}
}
