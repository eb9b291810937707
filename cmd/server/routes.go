package main

import (
	"net/http"
	"time"

	"github.com/brunobiangulo/docstruct"
	"github.com/brunobiangulo/docstruct/remote"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type routerConfig struct {
	APIKey         string
	CORSOrigins    string
	MaxUploadBytes int64         // 0 means no limit
	RequestTimeout time.Duration // 0 means the client's own deadline
	MCPRoot        string        // empty leaves /mcp unmounted
}

func newRouter(engine docstruct.Engine, rc routerConfig) http.Handler {
	h := newHandler(engine, rc)

	// Middleware chain: recovery -> cors -> request id -> auth -> logging -> routes
	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(corsMiddleware(rc.CORSOrigins))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authMiddleware(rc.APIKey))
	r.Use(logMiddleware)

	r.Get("/health", h.handleHealth)

	r.Post("/extract_structure", h.handleExtract)
	r.Post("/extract_structure/report", h.handleReport)
	r.Post("/classify", h.handleClassify)

	r.Route("/extractions", func(r chi.Router) {
		r.Get("/", h.handleListExtractions)
		r.Get("/{id}", h.handleGetExtraction)
		r.Delete("/{id}", h.handleDeleteExtraction)
		r.Get("/{id}/slides/{slide}/similar", h.handleSimilarSlides)
	})
	r.Get("/search", h.handleSearch)

	if rc.MCPRoot != "" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "docstruct", Version: "1.0.0"}, nil)
		remote.RegisterMCP(mcpSrv, remote.Local{Engine: engine, Root: rc.MCPRoot})
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
	}
	return r
}
