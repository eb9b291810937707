// Command server runs the docstruct extraction microservice.
//
// Build with -tags sqlite_fts5 when persistence is enabled.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/docstruct"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := docstruct.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = docstruct.LoadConfig(*configPath)
		if err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
	}

	// Override from environment variables.
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		slog.Error("reading environment", "error", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("DOCSTRUCT_API_KEY")
	corsOrigins := os.Getenv("DOCSTRUCT_CORS_ORIGINS")

	engine, err := docstruct.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	handler := newRouter(engine, routerConfig{
		APIKey:         apiKey,
		CORSOrigins:    corsOrigins,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		MCPRoot:        cfg.MCPRoot,
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 0, // MCP streams and large reports
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr, "persist", cfg.Persist, "mcp_root", cfg.MCPRoot, "formats", engine.Formats())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
