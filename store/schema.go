package store

import "fmt"

// schemaSQL returns the DDL for all tables. compositionDim controls the
// vec0 virtual table dimension.
func schemaSQL(compositionDim int) string {
	return fmt.Sprintf(`
-- One row per processed document
CREATE TABLE IF NOT EXISTS extractions (
    id INTEGER PRIMARY KEY,
    filename TEXT NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    parse_method TEXT NOT NULL,
    slide_count INTEGER NOT NULL DEFAULT 0,
    element_count INTEGER NOT NULL DEFAULT 0,
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Slides (or pages) of an extraction
CREATE TABLE IF NOT EXISTS slides (
    id INTEGER PRIMARY KEY,
    extraction_id INTEGER NOT NULL REFERENCES extractions(id) ON DELETE CASCADE,
    slide_number INTEGER NOT NULL,
    element_count INTEGER NOT NULL,
    UNIQUE(extraction_id, slide_number)
);

-- Labelled elements in slide order
CREATE TABLE IF NOT EXISTS elements (
    id INTEGER PRIMARY KEY,
    slide_id INTEGER NOT NULL REFERENCES slides(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    type TEXT NOT NULL,
    raw_category TEXT NOT NULL,
    text TEXT NOT NULL,
    filename TEXT,
    element_id TEXT,
    coordinates JSON
);

-- Slide label composition via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_slides USING vec0(
    slide_id INTEGER PRIMARY KEY,
    composition float[%d]
);

-- Full-text search via FTS5
CREATE VIRTUAL TABLE IF NOT EXISTS elements_fts USING fts5(
    text,
    content='elements',
    content_rowid='id',
    tokenize='porter unicode61'
);

-- FTS triggers to keep index in sync
CREATE TRIGGER IF NOT EXISTS elements_ai AFTER INSERT ON elements BEGIN
    INSERT INTO elements_fts(rowid, text) VALUES (new.id, new.text);
END;
CREATE TRIGGER IF NOT EXISTS elements_ad AFTER DELETE ON elements BEGIN
    INSERT INTO elements_fts(elements_fts, rowid, text) VALUES ('delete', old.id, old.text);
END;

-- Indexes
CREATE INDEX IF NOT EXISTS idx_slides_extraction ON slides(extraction_id);
CREATE INDEX IF NOT EXISTS idx_elements_slide ON elements(slide_id);
CREATE INDEX IF NOT EXISTS idx_elements_type ON elements(type);
CREATE INDEX IF NOT EXISTS idx_extractions_hash ON extractions(content_hash);
`, compositionDim)
}
