package docstruct

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/docstruct/element"
	"github.com/brunobiangulo/docstruct/report"
	"github.com/xuri/excelize/v2"
)

func newTestEngine(t *testing.T, cfg Config) Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractText(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	path := writeFile(t, "notes.txt", "Quarterly Review\n\nContact ops@example.com for details.\n\n1. First item\n   \n")

	ext, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Filename != "notes.txt" || ext.Format != "txt" || ext.ParseMethod != "native" {
		t.Errorf("extraction header = %+v", ext)
	}
	if ext.ContentHash == "" {
		t.Error("content hash is empty")
	}
	if ext.ID != 0 {
		t.Errorf("ID = %d, want 0 without persistence", ext.ID)
	}
	if len(ext.Slides) != 1 || ext.Slides[0].Slide != 0 {
		t.Fatalf("slides = %+v, want one slide 0", ext.Slides)
	}

	wantTypes := []string{element.CategoryTitle, element.LabelEmail, element.LabelOrderedListItem}
	els := ext.Slides[0].Elements
	if len(els) != len(wantTypes) {
		t.Fatalf("elements = %d, want %d", len(els), len(wantTypes))
	}
	for i, want := range wantTypes {
		if els[i].Type != want {
			t.Errorf("element %d type = %q, want %q", i, els[i].Type, want)
		}
		if els[i].Metadata.Filename == nil || *els[i].Metadata.Filename != "notes.txt" {
			t.Errorf("element %d filename = %v", i, els[i].Metadata.Filename)
		}
		if els[i].Metadata.ElementID == nil {
			t.Errorf("element %d has no element id", i)
		}
	}
}

func TestExtractErrors(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "broken.pptx")
	if err := os.WriteFile(corrupt, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want error
	}{
		{"unsupported", filepath.Join(dir, "deck.key"), ErrUnsupportedFormat},
		{"missing file", filepath.Join(dir, "missing.txt"), ErrPartitionFailed},
		{"corrupt pptx", corrupt, ErrPartitionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := e.Extract(context.Background(), tt.path)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if ext != nil {
				t.Errorf("partial extraction returned: %+v", ext)
			}
		})
	}
}

func TestExtractClean(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	path := writeFile(t, "bullets.txt", "•   Revenue   grew")

	plain, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	cleaned, err := e.Extract(context.Background(), path, WithClean(true))
	if err != nil {
		t.Fatal(err)
	}
	if got := plain.Slides[0].Elements[0].Text; got != "•   Revenue   grew" {
		t.Errorf("uncleaned text = %q", got)
	}
	if got := cleaned.Slides[0].Elements[0].Text; got != "Revenue grew" {
		t.Errorf("cleaned text = %q", got)
	}
}

func TestExtractElementsOrdering(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	input := []element.RawElement{
		{Text: "a", Category: "Title", PageNumber: 1},
		{Text: "b", Category: "NarrativeText", PageNumber: 1},
		{Text: "c", Category: "UncategorizedText", PageNumber: 0},
		{Text: "   ", Category: "Title", PageNumber: 3},
		{Text: "d", Category: "", PageNumber: 2},
	}

	ext, err := e.ExtractElements(context.Background(), "deck.pptx", input)
	if err != nil {
		t.Fatal(err)
	}
	var slides []int
	for _, s := range ext.Slides {
		slides = append(slides, s.Slide)
	}
	if len(slides) != 3 || slides[0] != 0 || slides[1] != 1 || slides[2] != 2 {
		t.Fatalf("slides = %v, want [0 1 2]", slides)
	}
	if ext.Slides[1].Elements[0].Text != "a" || ext.Slides[1].Elements[1].Text != "b" {
		t.Errorf("slide 1 order = %+v", ext.Slides[1].Elements)
	}
	if ext.Slides[0].Elements[0].Type != element.LabelText {
		t.Errorf("uncategorized fallback = %q", ext.Slides[0].Elements[0].Type)
	}
	if ext.Slides[2].Elements[0].Type != element.LabelUnknown {
		t.Errorf("empty category fallback = %q", ext.Slides[2].Elements[0].Type)
	}

	again, err := e.ExtractElements(context.Background(), "deck.pptx", input)
	if err != nil {
		t.Fatal(err)
	}
	first, _ := json.Marshal(NewResult(ext.Slides))
	second, _ := json.Marshal(NewResult(again.Slides))
	if !bytes.Equal(first, second) {
		t.Errorf("output differs between runs:\n%s\n%s", first, second)
	}
}

func TestExtractBlankDocument(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	path := writeFile(t, "blank.txt", "   \n\n \t \n")

	ext, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Slides == nil || len(ext.Slides) != 0 {
		t.Errorf("slides = %#v, want empty non-nil", ext.Slides)
	}
	if ext.ID != 0 {
		t.Errorf("blank document persisted with id %d", ext.ID)
	}
}

func TestExtractElementsEmpty(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ext, err := e.ExtractElements(context.Background(), "empty.pdf", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ext.Slides == nil || len(ext.Slides) != 0 {
		t.Errorf("slides = %#v, want empty non-nil", ext.Slides)
	}
}

func TestWriteReport(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ext, err := e.ExtractElements(context.Background(), "deck.pptx", []element.RawElement{
		{Text: "Agenda", Category: "Title", PageNumber: 1},
		{Text: "Region\tSales\nNorth\t10", Category: "Table", PageNumber: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := e.WriteReport(context.Background(), ext, &buf); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows(report.SheetChunks)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("chunk rows = %d, want header + 2", len(rows))
	}
	if _, err := f.GetRows("Table_1"); err != nil {
		t.Errorf("Table_1 missing: %v", err)
	}
}

func TestHistoryDisabled(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	if _, err := e.ListExtractions(ctx, 10); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("ListExtractions err = %v", err)
	}
	if _, err := e.GetExtraction(ctx, 1); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("GetExtraction err = %v", err)
	}
	if err := e.DeleteExtraction(ctx, 1); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("DeleteExtraction err = %v", err)
	}
	if _, err := e.SimilarSlides(ctx, 1, 1, 3); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("SimilarSlides err = %v", err)
	}
	if _, err := e.SearchElements(ctx, "x", 3); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("SearchElements err = %v", err)
	}
	if _, err := e.Stats(ctx); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("Stats err = %v", err)
	}
}

func TestFormats(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	got := e.Formats()
	want := []string{"docx", "md", "pdf", "pptx", "txt", "xlsm", "xlsx"}
	if len(got) != len(want) {
		t.Fatalf("formats = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("formats[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMergeMetadata(t *testing.T) {
	if got := mergeMetadata(nil, nil); got != nil {
		t.Errorf("empty merge = %v, want nil", got)
	}
	got := mergeMetadata(map[string]string{"a": "1", "b": "2"}, map[string]string{"b": "3"})
	if got["a"] != "1" || got["b"] != "3" {
		t.Errorf("merge = %v", got)
	}
}
