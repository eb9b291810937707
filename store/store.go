// Package store persists extraction results in SQLite, with sqlite-vec
// slide-composition vectors and an FTS5 index over element text.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/brunobiangulo/docstruct/element"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNotFound is returned when an extraction or slide does not exist.
var ErrNotFound = errors.New("store: not found")

// Extraction represents a row in the extractions table.
type Extraction struct {
	ID           int64                 `json:"id"`
	Filename     string                `json:"filename"`
	Format       string                `json:"format"`
	ContentHash  string                `json:"content_hash"`
	ParseMethod  string                `json:"parse_method"`
	SlideCount   int                   `json:"slide_count"`
	ElementCount int                   `json:"element_count"`
	Metadata     string                `json:"metadata,omitempty"`
	CreatedAt    string                `json:"created_at"`
	Slides       []element.SlideRecord `json:"slides,omitempty"`
}

// SimilarSlide is a KNN hit over slide composition vectors.
type SimilarSlide struct {
	ExtractionID int64   `json:"extraction_id"`
	Filename     string  `json:"filename"`
	SlideNumber  int     `json:"slide_number"`
	ElementCount int     `json:"element_count"`
	Distance     float64 `json:"distance"`
	Score        float64 `json:"score"`
}

// ElementMatch is a full-text hit over element text.
type ElementMatch struct {
	ExtractionID int64   `json:"extraction_id"`
	Filename     string  `json:"filename"`
	SlideNumber  int     `json:"slide_number"`
	Type         string  `json:"type"`
	Text         string  `json:"text"`
	Snippet      string  `json:"snippet,omitempty"`
	Score        float64 `json:"score"`
}

// Store wraps the SQLite database for all docstruct persistence.
type Store struct {
	db  *sql.DB
	dim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including sqlite-vec and FTS5 virtual tables.
func New(dbPath string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	dim := len(element.Labels)
	if _, err := db.Exec(schemaSQL(dim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, dim: dim}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Extraction operations ---

// SaveExtraction stores an extraction with its slides, elements and slide
// composition vectors in one transaction. Returns the extraction ID.
func (s *Store) SaveExtraction(ctx context.Context, ext Extraction, slides []element.SlideRecord) (int64, error) {
	elementCount := 0
	for _, sl := range slides {
		elementCount += len(sl.Elements)
	}

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO extractions (filename, format, content_hash, parse_method, slide_count, element_count, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ext.Filename, ext.Format, ext.ContentHash, ext.ParseMethod, len(slides), elementCount, nullable(ext.Metadata))
		if err != nil {
			return fmt.Errorf("inserting extraction: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		slideStmt, err := tx.PrepareContext(ctx,
			"INSERT INTO slides (extraction_id, slide_number, element_count) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer slideStmt.Close()

		elStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO elements (slide_id, position, type, raw_category, text, filename, element_id, coordinates)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer elStmt.Close()

		for _, sl := range slides {
			res, err := slideStmt.ExecContext(ctx, id, sl.Slide, len(sl.Elements))
			if err != nil {
				return fmt.Errorf("inserting slide %d: %w", sl.Slide, err)
			}
			slideID, err := res.LastInsertId()
			if err != nil {
				return err
			}

			for pos, el := range sl.Elements {
				coords, err := marshalCoordinates(el.Metadata.Coordinates)
				if err != nil {
					return err
				}
				if _, err := elStmt.ExecContext(ctx, slideID, pos, el.Type, el.Metadata.RawCategory,
					el.Text, el.Metadata.Filename, el.Metadata.ElementID, coords); err != nil {
					return fmt.Errorf("inserting element: %w", err)
				}
			}

			if _, err := tx.ExecContext(ctx,
				"INSERT INTO vec_slides (slide_id, composition) VALUES (?, ?)",
				slideID, serializeFloat32(element.Composition(sl))); err != nil {
				return fmt.Errorf("inserting slide composition: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetExtraction retrieves an extraction by ID and rebuilds its slides.
func (s *Store) GetExtraction(ctx context.Context, id int64) (*Extraction, error) {
	ext := &Extraction{}
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, filename, format, content_hash, parse_method, slide_count, element_count, metadata, created_at
		FROM extractions WHERE id = ?
	`, id).Scan(&ext.ID, &ext.Filename, &ext.Format, &ext.ContentHash, &ext.ParseMethod,
		&ext.SlideCount, &ext.ElementCount, &metadata, &ext.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ext.Metadata = metadata.String

	slides, err := s.loadSlides(ctx, id)
	if err != nil {
		return nil, err
	}
	ext.Slides = slides
	return ext, nil
}

func (s *Store) loadSlides(ctx context.Context, extractionID int64) ([]element.SlideRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.slide_number, e.type, e.raw_category, e.text, e.filename, e.element_id, e.coordinates
		FROM slides s
		JOIN elements e ON e.slide_id = s.id
		WHERE s.extraction_id = ?
		ORDER BY s.slide_number, e.position
	`, extractionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slides := make([]element.SlideRecord, 0)
	for rows.Next() {
		var (
			slide            int
			el               element.LabeledElement
			filename, elemID sql.NullString
			coords           sql.NullString
		)
		if err := rows.Scan(&slide, &el.Type, &el.Metadata.RawCategory, &el.Text,
			&filename, &elemID, &coords); err != nil {
			return nil, err
		}
		el.Metadata.SlideNumber = slide
		if filename.Valid {
			el.Metadata.Filename = &filename.String
		}
		if elemID.Valid {
			el.Metadata.ElementID = &elemID.String
		}
		if coords.Valid && coords.String != "" {
			var c element.Coordinates
			if err := json.Unmarshal([]byte(coords.String), &c); err != nil {
				return nil, fmt.Errorf("decoding coordinates: %w", err)
			}
			el.Metadata.Coordinates = &c
		}

		if n := len(slides); n == 0 || slides[n-1].Slide != slide {
			slides = append(slides, element.SlideRecord{Slide: slide})
		}
		last := &slides[len(slides)-1]
		last.Elements = append(last.Elements, el)
	}
	return slides, rows.Err()
}

// ListExtractions returns extractions, newest first, without their slides.
// A limit <= 0 returns all rows.
func (s *Store) ListExtractions(ctx context.Context, limit int) ([]Extraction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, format, content_hash, parse_method, slide_count, element_count, metadata, created_at
		FROM extractions ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exts []Extraction
	for rows.Next() {
		var e Extraction
		var metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.Filename, &e.Format, &e.ContentHash, &e.ParseMethod,
			&e.SlideCount, &e.ElementCount, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = metadata.String
		exts = append(exts, e)
	}
	return exts, rows.Err()
}

// DeleteExtraction removes an extraction and everything derived from it.
func (s *Store) DeleteExtraction(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		// Delete vec rows (virtual tables do not cascade)
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_slides WHERE slide_id IN (
				SELECT id FROM slides WHERE extraction_id = ?
			)`, id); err != nil {
			return err
		}

		// Delete elements (triggers will clean up FTS)
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM elements WHERE slide_id IN (
				SELECT id FROM slides WHERE extraction_id = ?
			)`, id); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM slides WHERE extraction_id = ?", id); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM extractions WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// --- Search operations ---

// SimilarSlides returns the k slides, from any extraction, whose label
// composition is nearest to the given slide's. The slide itself is
// excluded.
func (s *Store) SimilarSlides(ctx context.Context, extractionID int64, slide, k int) ([]SimilarSlide, error) {
	if k <= 0 {
		k = 5
	}

	var slideID int64
	var composition []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, v.composition
		FROM slides s
		JOIN vec_slides v ON v.slide_id = s.id
		WHERE s.extraction_id = ? AND s.slide_number = ?
	`, extractionID, slide).Scan(&slideID, &composition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.slide_id, v.distance, s.extraction_id, s.slide_number, s.element_count, x.filename
		FROM vec_slides v
		JOIN slides s ON s.id = v.slide_id
		JOIN extractions x ON x.id = s.extraction_id
		WHERE v.composition MATCH ? AND k = ?
		ORDER BY v.distance
	`, composition, k+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SimilarSlide
	for rows.Next() {
		var r SimilarSlide
		var id int64
		if err := rows.Scan(&id, &r.Distance, &r.ExtractionID, &r.SlideNumber,
			&r.ElementCount, &r.Filename); err != nil {
			return nil, err
		}
		if id == slideID {
			continue
		}
		r.Score = 1.0 / (1.0 + r.Distance)
		results = append(results, r)
		if len(results) == k {
			break
		}
	}
	return results, rows.Err()
}

// SearchElements performs a full-text search over element text using FTS5
// BM25 ranking. The query is free text; FTS5 operators are not interpreted.
func (s *Store) SearchElements(ctx context.Context, query string, limit int) ([]ElementMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.rank, e.type, e.text, sl.slide_number, x.id, x.filename
		FROM elements_fts f
		JOIN elements e ON e.id = f.rowid
		JOIN slides sl ON sl.id = e.slide_id
		JOIN extractions x ON x.id = sl.extraction_id
		WHERE elements_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ElementMatch
	for rows.Next() {
		var m ElementMatch
		var rank float64
		if err := rows.Scan(&rank, &m.Type, &m.Text, &m.SlideNumber, &m.ExtractionID, &m.Filename); err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better), convert to positive score
		m.Score = -rank
		results = append(results, m)
	}
	return results, rows.Err()
}

// ftsQuery turns free text into an FTS5 expression: the whole input as one
// phrase OR each word as its own phrase. Words are split on the characters
// the unicode61 tokenizer treats as separators, so "ops@example.com" becomes
// the phrase "ops example com" and no punctuation reaches the FTS5 parser.
func ftsQuery(query string) string {
	var words []string
	for _, field := range strings.Fields(query) {
		tokens := strings.FieldsFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(tokens) > 0 {
			words = append(words, strings.Join(tokens, " "))
		}
	}
	if len(words) == 0 {
		return ""
	}

	parts := make([]string, 0, len(words)+1)
	if len(words) > 1 {
		parts = append(parts, `"`+strings.Join(words, " ")+`"`)
	}
	for _, w := range words {
		parts = append(parts, `"`+w+`"`)
	}
	return strings.Join(parts, " OR ")
}

// DBStats holds row counts for the main tables.
type DBStats struct {
	Extractions int `json:"extractions"`
	Slides      int `json:"slides"`
	Elements    int `json:"elements"`
	Vectors     int `json:"vectors"`
}

// Stats returns counts of extractions, slides, elements and vectors.
func (s *Store) Stats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM extractions", &stats.Extractions},
		{"SELECT COUNT(*) FROM slides", &stats.Slides},
		{"SELECT COUNT(*) FROM elements", &stats.Elements},
		{"SELECT COUNT(*) FROM vec_slides", &stats.Vectors},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalCoordinates(c *element.Coordinates) (any, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding coordinates: %w", err)
	}
	return string(b), nil
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
