package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/docstruct"
	"github.com/brunobiangulo/docstruct/element"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory.
const multipartMemory = 32 << 20

type handler struct {
	engine    docstruct.Engine
	maxUpload int64
	timeout   time.Duration
}

func newHandler(e docstruct.Engine, rc routerConfig) *handler {
	return &handler{engine: e, maxUpload: rc.MaxUploadBytes, timeout: rc.RequestTimeout}
}

func (h *handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// POST /extract_structure
// Multipart upload in field "file". Processing failures are reported as
// {"success": false, "error": ...} with status 200; only malformed requests
// get a 4xx.
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	up, status, err := h.saveUpload(w, r)
	if err != nil {
		writeJSON(w, status, docstruct.FailureResult(err))
		return
	}
	defer up.cleanup()

	slog.Info("extract_structure: received file", "file", up.name, "request_id", middleware.GetReqID(ctx))

	ext, err := h.engine.Extract(ctx, up.path, extractOptions(r)...)
	if err != nil {
		slog.Error("extract_structure: extraction failed", "file", up.name, "error", err)
		writeJSON(w, http.StatusOK, docstruct.FailureResult(err))
		return
	}
	writeJSON(w, http.StatusOK, docstruct.NewResult(ext.Slides))
}

// POST /extract_structure/report
// Same upload as /extract_structure, answered with an XLSX workbook.
func (h *handler) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	up, status, err := h.saveUpload(w, r)
	if err != nil {
		writeJSON(w, status, docstruct.FailureResult(err))
		return
	}
	defer up.cleanup()

	ext, err := h.engine.Extract(ctx, up.path, extractOptions(r)...)
	if err != nil {
		slog.Error("report: extraction failed", "file", up.name, "error", err)
		writeJSON(w, statusFor(err), docstruct.FailureResult(err))
		return
	}

	// Render fully before writing headers so a failure can still be a JSON error.
	var buf bytes.Buffer
	if err := h.engine.WriteReport(ctx, ext, &buf); err != nil {
		slog.Error("report: writing workbook failed", "file", up.name, "error", err)
		writeJSON(w, http.StatusInternalServerError, docstruct.FailureResult(err))
		return
	}

	stem := strings.TrimSuffix(up.name, filepath.Ext(up.name))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": stem + "_structure.xlsx",
	}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("report: writing response failed", "file", up.name, "error", err)
	}
}

type classifyRequest struct {
	Filename string          `json:"filename"`
	Elements []classifyInput `json:"elements"`
}

type classifyInput struct {
	Text     string         `json:"text"`
	Category string         `json:"category"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// POST /classify
// Labels and groups elements partitioned elsewhere.
func (h *handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, docstruct.FailureResult(fmt.Errorf("invalid JSON: %w", err)))
		return
	}

	raw := make([]element.RawElement, len(req.Elements))
	for i, in := range req.Elements {
		raw[i] = element.FromMap(in.Text, in.Category, in.Metadata)
		if raw[i].Filename == "" {
			raw[i].Filename = req.Filename
		}
	}

	ext, err := h.engine.ExtractElements(ctx, req.Filename, raw, extractOptions(r)...)
	if err != nil {
		slog.Error("classify: failed", "file", req.Filename, "error", err)
		writeJSON(w, statusFor(err), docstruct.FailureResult(err))
		return
	}
	writeJSON(w, http.StatusOK, docstruct.NewResult(ext.Slides))
}

// GET /extractions?limit=N
func (h *handler) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	list, err := h.engine.ListExtractions(r.Context(), limit)
	if err != nil {
		h.fail(w, "list extractions", err)
		return
	}
	if list == nil {
		list = []docstruct.Extraction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"extractions": list})
}

// GET /extractions/{id}
func (h *handler) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ext, err := h.engine.GetExtraction(r.Context(), id)
	if err != nil {
		h.fail(w, "get extraction", err)
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

// DELETE /extractions/{id}
func (h *handler) handleDeleteExtraction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeleteExtraction(r.Context(), id); err != nil {
		h.fail(w, "delete extraction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /extractions/{id}/slides/{slide}/similar?k=N
func (h *handler) handleSimilarSlides(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	slide, err := strconv.Atoi(chi.URLParam(r, "slide"))
	if err != nil || slide < 0 {
		writeError(w, http.StatusBadRequest, "invalid slide number")
		return
	}
	k := queryInt(r, "k", 5)
	if k > 100 {
		k = 100
	}

	hits, err := h.engine.SimilarSlides(r.Context(), id, slide, k)
	if err != nil {
		h.fail(w, "similar slides", err)
		return
	}
	if hits == nil {
		hits = []docstruct.SimilarSlide{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"similar": hits})
}

// GET /search?q=...&limit=N
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	matches, err := h.engine.SearchElements(r.Context(), q, queryInt(r, "limit", 20))
	if err != nil {
		h.fail(w, "search", err)
		return
	}
	if matches == nil {
		matches = []docstruct.ElementMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"formats": h.engine.Formats(),
	}
	if stats, err := h.engine.Stats(r.Context()); err == nil {
		resp["history"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" error", "error", err)
	}
	writeError(w, status, err.Error())
}

type upload struct {
	name    string
	path    string
	cleanup func()
}

var errMissingFile = errors.New("missing multipart field \"file\"")

// saveUpload copies the "file" form field into a fresh temp directory,
// keeping its base name so partitioners see the real extension and
// filename. cleanup removes the directory on every path.
func (h *handler) saveUpload(w http.ResponseWriter, r *http.Request) (*upload, int, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", tooBig.Limit)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		r.MultipartForm.RemoveAll()
		return nil, http.StatusBadRequest, errMissingFile
	}
	defer file.Close()

	// Sanitise filename to prevent path traversal.
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(header.Filename, `\`, "/")))
	if name == "/" || name == "." {
		name = "upload"
	}

	dir, err := os.MkdirTemp("", "docstruct-*")
	if err != nil {
		r.MultipartForm.RemoveAll()
		slog.Error("creating temp dir", "error", err)
		return nil, http.StatusInternalServerError, errors.New("failed to process file")
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("removing temp upload", "dir", dir, "error", err)
		}
		r.MultipartForm.RemoveAll()
	}

	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		cleanup()
		slog.Error("creating temp file", "error", err)
		return nil, http.StatusInternalServerError, errors.New("failed to process file")
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		cleanup()
		slog.Error("saving uploaded file", "error", err)
		return nil, http.StatusInternalServerError, errors.New("failed to save file")
	}
	if err := dst.Close(); err != nil {
		cleanup()
		return nil, http.StatusInternalServerError, errors.New("failed to save file")
	}
	return &upload{name: name, path: path, cleanup: cleanup}, http.StatusOK, nil
}

// extractOptions reads ?clean= and ?persist= overrides.
func extractOptions(r *http.Request) []docstruct.ExtractOption {
	var opts []docstruct.ExtractOption
	q := r.URL.Query()
	if v, err := strconv.ParseBool(q.Get("clean")); err == nil {
		opts = append(opts, docstruct.WithClean(v))
	}
	if v, err := strconv.ParseBool(q.Get("persist")); err == nil {
		opts = append(opts, docstruct.WithPersist(v))
	}
	return opts
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, docstruct.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, docstruct.ErrPartitionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, docstruct.ErrExtractionNotFound):
		return http.StatusNotFound
	case errors.Is(err, docstruct.ErrStoreDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid extraction id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
