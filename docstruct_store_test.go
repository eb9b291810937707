//go:build cgo

package docstruct

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/docstruct/element"
)

func TestHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Persist = true
	cfg.DBPath = filepath.Join(t.TempDir(), "history.db")
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	path := writeFile(t, "notes.txt", "Quarterly Review\n\nRevenue grew in every region this quarter.")
	ext, err := e.Extract(ctx, path, WithMetadata(map[string]string{"source": "upload"}))
	if err != nil {
		t.Fatal(err)
	}
	if ext.ID == 0 {
		t.Fatal("extraction was not persisted")
	}

	got, err := e.GetExtraction(ctx, ext.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != "notes.txt" || got.Metadata["source"] != "upload" || len(got.Slides) != 1 {
		t.Errorf("stored extraction = %+v", got)
	}

	skipped, err := e.ExtractElements(ctx, "raw.pptx", []element.RawElement{{Text: "x", PageNumber: 1}}, WithPersist(false))
	if err != nil {
		t.Fatal(err)
	}
	if skipped.ID != 0 {
		t.Errorf("WithPersist(false) stored extraction %d", skipped.ID)
	}

	list, err := e.ListExtractions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %d, want 1", len(list))
	}

	matches, err := e.SearchElements(ctx, "revenue", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ExtractionID != ext.ID {
		t.Errorf("matches = %+v", matches)
	}

	if err := e.DeleteExtraction(ctx, ext.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.GetExtraction(ctx, ext.ID); !errors.Is(err, ErrExtractionNotFound) {
		t.Errorf("after delete err = %v, want ErrExtractionNotFound", err)
	}
	if err := e.DeleteExtraction(ctx, ext.ID); !errors.Is(err, ErrExtractionNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}
