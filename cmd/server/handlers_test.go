package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/docstruct"
	"github.com/brunobiangulo/docstruct/element"
	"github.com/brunobiangulo/docstruct/remote"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/xuri/excelize/v2"
)

func testServer(t *testing.T, cfg docstruct.Config, rc routerConfig) *httptest.Server {
	t.Helper()
	engine, err := docstruct.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(newRouter(engine, rc))
	t.Cleanup(func() {
		srv.Close()
		engine.Close()
	})
	return srv
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	w.Close()
	return &body, w.FormDataContentType()
}

func postFile(t *testing.T, url, filename, content string) *http.Response {
	t.Helper()
	body, ctype := multipartBody(t, "file", filename, content)
	resp, err := http.Post(url, ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeResult(t *testing.T, resp *http.Response) docstruct.Result {
	t.Helper()
	var res docstruct.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	return res
}

const sampleText = "Quarterly Review\n\nReach ops@example.com\n\n1. Grow revenue"

func TestHealth(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string   `json:"status"`
		Formats []string `json:"formats"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body.Status != "ok" || len(body.Formats) == 0 {
		t.Errorf("health = %d %+v", resp.StatusCode, body)
	}
}

func TestExtractStructure(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{})
	resp := postFile(t, srv.URL+"/extract_structure", "notes.txt", sampleText)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	res := decodeResult(t, resp)
	if !res.Success || len(res.Slides) != 1 {
		t.Fatalf("result = %+v", res)
	}
	els := res.Slides[0].Elements
	want := []string{element.CategoryTitle, element.LabelEmail, element.LabelOrderedListItem}
	if len(els) != len(want) {
		t.Fatalf("elements = %+v", els)
	}
	for i := range want {
		if els[i].Type != want[i] {
			t.Errorf("element %d = %q, want %q", i, els[i].Type, want[i])
		}
	}
	if f := els[0].Metadata.Filename; f == nil || *f != "notes.txt" {
		t.Errorf("filename = %v, want notes.txt", f)
	}
}

func TestExtractStructureFailures(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{MaxUploadBytes: 1 << 10})

	tests := []struct {
		name       string
		field      string
		filename   string
		content    string
		wantStatus int
		wantErr    string
	}{
		{"unsupported", "file", "deck.key", "x", http.StatusOK, "unsupported"},
		{"corrupt", "file", "deck.pptx", "not a zip", http.StatusOK, "partitioning failed"},
		{"wrong field", "upload", "notes.txt", sampleText, http.StatusBadRequest, "missing multipart field"},
		{"too large", "file", "big.txt", strings.Repeat("a", 4<<10), http.StatusRequestEntityTooLarge, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ctype := multipartBody(t, tt.field, tt.filename, tt.content)
			resp, err := http.Post(srv.URL+"/extract_structure", ctype, body)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			res := decodeResult(t, resp)
			if res.Success || len(res.Slides) != 0 {
				t.Errorf("expected failure, got %+v", res)
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Errorf("error = %q, want substring %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestExtractStructureBlankDocument(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{})
	resp := postFile(t, srv.URL+"/extract_structure", "blank.txt", "   \n\n \t \n")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["success"]) != "true" || string(raw["slides"]) != "[]" {
		t.Errorf("body = success:%s slides:%s, want true and []", raw["success"], raw["slides"])
	}
	if _, ok := raw["error"]; ok {
		t.Errorf("unexpected error field: %s", raw["error"])
	}
}

func TestUploadCleanup(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{})

	postFile(t, srv.URL+"/extract_structure", "notes.txt", sampleText)
	postFile(t, srv.URL+"/extract_structure", "broken.pptx", "not a zip")

	left, err := filepath.Glob(filepath.Join(tmp, "docstruct-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("temp uploads left behind: %v", left)
	}
}

func TestReport(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{})
	resp := postFile(t, srv.URL+"/extract_structure/report", "notes.txt", sampleText)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "notes_structure.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	if sheets := f.GetSheetList(); len(sheets) < 4 || sheets[0] != "Summary" {
		t.Errorf("sheets = %v", sheets)
	}

	bad := postFile(t, srv.URL+"/extract_structure/report", "deck.key", "x")
	if bad.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("unsupported report status = %d", bad.StatusCode)
	}
}

func TestClassify(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{})
	payload := `{"filename":"deck.pptx","elements":[
		{"text":"  a@b.io ","category":"NarrativeText","metadata":{"page_number":2}},
		{"text":"Intro","category":"Title","metadata":{"page_number":1,"element_id":"e1"}},
		{"text":"   ","category":"Title","metadata":{"page_number":3}},
		{"text":"x | y\n1 | 2","category":"UncategorizedText","metadata":{"page_number":"bad"}}
	]}`
	resp, err := http.Post(srv.URL+"/classify", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	res := decodeResult(t, resp)
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	var got []int
	for _, s := range res.Slides {
		got = append(got, s.Slide)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("slides = %v, want [0 1 2]", got)
	}
	if res.Slides[0].Elements[0].Type != element.LabelLikelyTable {
		t.Errorf("slide 0 type = %q", res.Slides[0].Elements[0].Type)
	}
	if el := res.Slides[2].Elements[0]; el.Type != element.LabelEmail || el.Text != "a@b.io" {
		t.Errorf("slide 2 = %+v", el)
	}
	if id := res.Slides[1].Elements[0].Metadata.ElementID; id == nil || *id != "e1" {
		t.Errorf("element id = %v", id)
	}

	bad, err := http.Post(srv.URL+"/classify", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d", bad.StatusCode)
	}
}

func TestHistoryDisabled(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{})
	for _, path := range []string{"/extractions", "/extractions/1", "/extractions/1/slides/1/similar", "/search?q=x"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/extractions/abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{APIKey: "k"})

	body, ctype := multipartBody(t, "file", "notes.txt", sampleText)
	resp, err := http.Post(srv.URL+"/extract_structure", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d", resp.StatusCode)
	}

	body, ctype = multipartBody(t, "file", "notes.txt", sampleText)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/extract_structure", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer k")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with token status = %d", resp.StatusCode)
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("health behind auth = %d", health.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{CORSOrigins: "https://app.example"})
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/extract_structure", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("classifier bug")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/classify", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRemoteClientAgainstServer(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{})
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte(sampleText), 0o644); err != nil {
		t.Fatal(err)
	}

	res := remote.NewClient(srv.URL+"/extract_structure").ExtractFile(context.Background(), path)
	if !res.Success || len(res.Slides) != 1 || len(res.Slides[0].Elements) != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestMCPEndpoint(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(path, []byte(sampleText), 0o644); err != nil {
		t.Fatal(err)
	}
	secret := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(secret, []byte("Private"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{MCPRoot: root})

	ctx := context.Background()
	client := mcp.NewClient(&mcp.Implementation{Name: "server-test", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: srv.URL + "/mcp"}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	tests := []struct {
		name    string
		path    string
		success bool
	}{
		{"absolute inside root", path, true},
		{"relative inside root", "notes.txt", true},
		{"parent escape", "../" + filepath.Base(filepath.Dir(secret)) + "/secret.txt", false},
		{"absolute outside root", secret, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := session.CallTool(ctx, &mcp.CallToolParams{
				Name:      remote.ToolName,
				Arguments: map[string]any{"file_path": tt.path},
			})
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			tc, ok := result.Content[0].(*mcp.TextContent)
			if !ok {
				t.Fatal("expected TextContent")
			}
			var res docstruct.Result
			if err := json.Unmarshal([]byte(tc.Text), &res); err != nil {
				t.Fatal(err)
			}
			if res.Success != tt.success || result.IsError == tt.success {
				t.Fatalf("result = %+v, IsError = %v", res, result.IsError)
			}
			if tt.success && len(res.Slides) != 1 {
				t.Errorf("slides = %+v", res.Slides)
			}
			if !tt.success && (strings.Contains(res.Error, "Private") || !strings.Contains(res.Error, "outside allowed root")) {
				t.Errorf("error = %q", res.Error)
			}
		})
	}
}

func TestMCPEndpointNeedsRoot(t *testing.T) {
	srv := testServer(t, docstruct.DefaultConfig(), routerConfig{})
	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without an MCP root", resp.StatusCode)
	}
}
