// Package docstruct extracts the structure of office documents: it
// partitions a file into elements, labels each element by its content and
// groups the result into ordered slide records.
package docstruct

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/brunobiangulo/docstruct/chunker"
	"github.com/brunobiangulo/docstruct/element"
	"github.com/brunobiangulo/docstruct/parser"
	"github.com/brunobiangulo/docstruct/report"
	"github.com/brunobiangulo/docstruct/store"
)

// Engine is the main entry point for document structure extraction.
type Engine interface {
	// Extract partitions the file at path and returns its slide records.
	// A file that yields no text is an error.
	Extract(ctx context.Context, path string, opts ...ExtractOption) (*Extraction, error)

	// ExtractElements classifies and groups elements produced elsewhere.
	ExtractElements(ctx context.Context, filename string, elements []element.RawElement, opts ...ExtractOption) (*Extraction, error)

	// WriteReport writes an XLSX workbook for an extraction.
	WriteReport(ctx context.Context, ext *Extraction, w io.Writer) error

	// ListExtractions returns stored extractions, newest first, without slides.
	ListExtractions(ctx context.Context, limit int) ([]Extraction, error)

	// GetExtraction loads a stored extraction with its slides.
	GetExtraction(ctx context.Context, id int64) (*Extraction, error)

	// DeleteExtraction removes a stored extraction.
	DeleteExtraction(ctx context.Context, id int64) error

	// SimilarSlides finds stored slides whose label mix is closest to the
	// given slide's.
	SimilarSlides(ctx context.Context, id int64, slide, k int) ([]SimilarSlide, error)

	// SearchElements runs a full-text query over stored element text.
	SearchElements(ctx context.Context, query string, limit int) ([]ElementMatch, error)

	// Stats returns row counts of the history database.
	Stats(ctx context.Context) (*store.DBStats, error)

	// Formats lists the supported file extensions.
	Formats() []string

	// Close cleanly shuts down the engine.
	Close() error
}

// Extraction is the structured content of one document.
type Extraction struct {
	ID          int64                 `json:"id,omitempty"`
	Filename    string                `json:"filename"`
	Format      string                `json:"format"`
	ContentHash string                `json:"content_hash"`
	ParseMethod string                `json:"parse_method"`
	Metadata    map[string]string     `json:"metadata,omitempty"`
	CreatedAt   string                `json:"created_at,omitempty"`
	Slides      []element.SlideRecord `json:"slides"`
}

// ElementCount returns the total number of labelled elements.
func (x *Extraction) ElementCount() int {
	n := 0
	for _, s := range x.Slides {
		n += len(s.Elements)
	}
	return n
}

// SimilarSlide is a stored slide close to a query slide.
type SimilarSlide = store.SimilarSlide

// ElementMatch is a stored element matching a text query.
type ElementMatch = store.ElementMatch

// ExtractOption configures a single extraction.
type ExtractOption func(*extractOptions)

type extractOptions struct {
	clean    bool
	persist  bool
	metadata map[string]string
}

// WithClean overrides Config.CleanText for this extraction.
func WithClean(clean bool) ExtractOption {
	return func(o *extractOptions) { o.clean = clean }
}

// WithPersist overrides Config.Persist for this extraction. It has no
// effect when the engine was built without a store.
func WithPersist(persist bool) ExtractOption {
	return func(o *extractOptions) { o.persist = persist }
}

// WithMetadata attaches custom metadata to the extraction.
func WithMetadata(metadata map[string]string) ExtractOption {
	return func(o *extractOptions) { o.metadata = metadata }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg     Config
	store   *store.Store
	parsers *parser.Registry
	chunkr  *chunker.Chunker
}

// New creates an engine. A history database is opened only when
// cfg.Persist is set.
func New(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &engine{
		cfg:     cfg,
		parsers: parser.NewRegistry(parser.Options{ValidatePDF: cfg.ValidatePDF}),
		chunkr: chunker.New(chunker.Config{
			MaxCharacters:  cfg.ChunkMaxCharacters,
			NewAfterNChars: cfg.ChunkNewAfterNChars,
		}),
	}

	if cfg.Persist {
		dbPath := cfg.resolveDBPath()
		s, err := store.New(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		e.store = s
		slog.Info("docstruct: history enabled", "db", dbPath)
	}
	return e, nil
}

func (e *engine) options(opts []ExtractOption) *extractOptions {
	o := &extractOptions{clean: e.cfg.CleanText, persist: e.cfg.Persist}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Extract runs a file through partitioning, classification and aggregation.
func (e *engine) Extract(ctx context.Context, path string, opts ...ExtractOption) (*Extraction, error) {
	options := e.options(opts)

	format := parser.FormatOf(path)
	p, err := e.parsers.Get(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	hash, err := fileHash(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPartitionFailed, err)
	}

	filename := filepath.Base(path)
	slog.Info("extract: partitioning document", "file", filename, "format", format)
	start := time.Now()

	res, err := p.Partition(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPartitionFailed, err)
	}
	slog.Info("extract: partition complete",
		"file", filename, "method", res.Method,
		"elements", len(res.Elements), "elapsed", time.Since(start).Round(time.Millisecond))

	slides := element.NewAggregator(element.Options{Clean: options.clean}).Aggregate(res.Elements)
	if slides == nil {
		slides = []element.SlideRecord{}
	}

	ext := &Extraction{
		Filename:    filename,
		Format:      format,
		ContentHash: hash,
		ParseMethod: res.Method,
		Metadata:    mergeMetadata(res.Metadata, options.metadata),
		Slides:      slides,
	}
	// Blank documents are valid but not worth a history row.
	if len(slides) > 0 {
		if err := e.persist(ctx, ext, options); err != nil {
			return nil, err
		}
	}

	slog.Info("extract: document ready",
		"file", filename, "slides", len(slides), "elements", ext.ElementCount(),
		"id", ext.ID, "elapsed", time.Since(start).Round(time.Millisecond))
	return ext, nil
}

// ExtractElements classifies and groups elements partitioned by a caller.
// An empty element list yields an extraction with no slides.
func (e *engine) ExtractElements(ctx context.Context, filename string, elements []element.RawElement, opts ...ExtractOption) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options := e.options(opts)

	slides := element.NewAggregator(element.Options{Clean: options.clean}).Aggregate(elements)
	if slides == nil {
		slides = []element.SlideRecord{}
	}

	ext := &Extraction{
		Filename:    filename,
		Format:      parser.FormatOf(filename),
		ContentHash: slidesHash(slides),
		ParseMethod: "provided",
		Metadata:    mergeMetadata(nil, options.metadata),
		Slides:      slides,
	}
	if len(slides) > 0 {
		if err := e.persist(ctx, ext, options); err != nil {
			return nil, err
		}
	}
	slog.Debug("extract: classified elements",
		"file", filename, "input", len(elements), "slides", len(slides), "elements", ext.ElementCount())
	return ext, nil
}

func (e *engine) persist(ctx context.Context, ext *Extraction, options *extractOptions) error {
	if e.store == nil || !options.persist {
		return nil
	}
	var metadataJSON string
	if len(ext.Metadata) > 0 {
		data, _ := json.Marshal(ext.Metadata)
		metadataJSON = string(data)
	}
	id, err := e.store.SaveExtraction(ctx, store.Extraction{
		Filename:     ext.Filename,
		Format:       ext.Format,
		ContentHash:  ext.ContentHash,
		ParseMethod:  ext.ParseMethod,
		SlideCount:   len(ext.Slides),
		ElementCount: ext.ElementCount(),
		Metadata:     metadataJSON,
	}, ext.Slides)
	if err != nil {
		return fmt.Errorf("saving extraction: %w", err)
	}
	ext.ID = id
	return nil
}

// WriteReport chunks the extraction and writes the workbook to w.
func (e *engine) WriteReport(ctx context.Context, ext *Extraction, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return report.WriteXLSX(w, report.Report{
		Filename: ext.Filename,
		Slides:   ext.Slides,
		Chunks:   e.chunkr.ChunkByTitle(ext.Slides),
	})
}

// ListExtractions returns stored extractions without their slides.
func (e *engine) ListExtractions(ctx context.Context, limit int) ([]Extraction, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	rows, err := e.store.ListExtractions(ctx, limit)
	if err != nil {
		return nil, err
	}
	result := make([]Extraction, len(rows))
	for i, r := range rows {
		result[i] = fromStore(r)
	}
	return result, nil
}

func (e *engine) GetExtraction(ctx context.Context, id int64) (*Extraction, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	r, err := e.store.GetExtraction(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, id)
	}
	ext := fromStore(*r)
	return &ext, nil
}

func (e *engine) DeleteExtraction(ctx context.Context, id int64) error {
	if e.store == nil {
		return ErrStoreDisabled
	}
	if err := e.store.DeleteExtraction(ctx, id); err != nil {
		return mapStoreErr(err, id)
	}
	slog.Info("history: extraction deleted", "id", id)
	return nil
}

func (e *engine) SimilarSlides(ctx context.Context, id int64, slide, k int) ([]SimilarSlide, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	hits, err := e.store.SimilarSlides(ctx, id, slide, k)
	if err != nil {
		return nil, mapStoreErr(err, id)
	}
	return hits, nil
}

func (e *engine) SearchElements(ctx context.Context, query string, limit int) ([]ElementMatch, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	matches, err := e.store.SearchElements(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	terms := queryTerms(query)
	for i := range matches {
		matches[i].Snippet = searchSnippet(matches[i].Text, terms)
	}
	return matches, nil
}

func (e *engine) Stats(ctx context.Context) (*store.DBStats, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	return e.store.Stats(ctx)
}

func (e *engine) Formats() []string {
	formats := e.parsers.Formats()
	sort.Strings(formats)
	return formats
}

// Close shuts down the engine.
func (e *engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

func mapStoreErr(err error, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrExtractionNotFound, id)
	}
	return err
}

func fromStore(r store.Extraction) Extraction {
	ext := Extraction{
		ID:          r.ID,
		Filename:    r.Filename,
		Format:      r.Format,
		ContentHash: r.ContentHash,
		ParseMethod: r.ParseMethod,
		CreatedAt:   r.CreatedAt,
		Slides:      r.Slides,
	}
	if r.Metadata != "" {
		_ = json.Unmarshal([]byte(r.Metadata), &ext.Metadata)
	}
	return ext
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func slidesHash(slides []element.SlideRecord) string {
	data, _ := json.Marshal(slides)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
