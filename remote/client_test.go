package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brunobiangulo/docstruct"
	"github.com/brunobiangulo/docstruct/element"
)

func tempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClientExtractFile(t *testing.T) {
	var gotName, gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotName, gotBody = header.Filename, string(data)

		json.NewEncoder(w).Encode(docstruct.NewResult([]element.SlideRecord{
			{Slide: 1, Elements: []element.LabeledElement{{Type: "Title", Text: "Hello"}}},
		}))
	}))
	defer srv.Close()

	path := tempFile(t, "deck.pptx", "payload")
	res := NewClient(srv.URL, WithAPIKey("secret")).ExtractFile(context.Background(), path)

	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Slides) != 1 || res.Slides[0].Elements[0].Text != "Hello" {
		t.Errorf("slides = %+v", res.Slides)
	}
	if gotName != "deck.pptx" || gotBody != "payload" {
		t.Errorf("upload = %q %q", gotName, gotBody)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestClientFailures(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(docstruct.FailureResult(errors.New("no slides found in PPTX")))
	}))
	defer failing.Close()

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer plain.Close()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer garbage.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	path := tempFile(t, "deck.pptx", "payload")
	tests := []struct {
		name    string
		client  *Client
		path    string
		wantMsg string
	}{
		{"no url", NewClient(""), path, "missing microservice URL"},
		{"missing file", NewClient(plain.URL), filepath.Join(t.TempDir(), "nope.pptx"), "file not found"},
		{"service error", NewClient(failing.URL), path, "no slides found in PPTX"},
		{"http error", NewClient(plain.URL), path, "status 502"},
		{"bad body", NewClient(garbage.URL), path, "decoding response"},
		{"timeout", NewClient(slow.URL, WithTimeout(20*time.Millisecond)), path, "remote request failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.client.ExtractFile(context.Background(), tt.path)
			if res.Success {
				t.Fatalf("expected failure, got %+v", res)
			}
			if len(res.Slides) != 0 {
				t.Errorf("failure carries slides: %+v", res.Slides)
			}
			if !strings.Contains(res.Error, tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", res.Error, tt.wantMsg)
			}
		})
	}
}
