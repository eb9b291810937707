// Command docstruct extracts the slide structure of a document and prints
// it as JSON, writes it to a JSON or XLSX file, or serves the extraction
// as an MCP tool over stdio.
//
//	docstruct [-config f] [-o out.json|out.xlsx] [-remote URL] [-clean] [-v] file
//	docstruct -mcp [-remote URL]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/brunobiangulo/docstruct"
	"github.com/brunobiangulo/docstruct/remote"
	"github.com/brunobiangulo/docstruct/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type options struct {
	configPath string
	output     string
	remoteURL  string
	apiKey     string
	clean      bool
	verbose    bool
	serveMCP   bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to config file (YAML or JSON)")
	flag.StringVar(&o.output, "o", "", "Output file (.json or .xlsx); JSON to stdout when empty")
	flag.StringVar(&o.remoteURL, "remote", "", "Extraction service URL (e.g. http://host:8080/extract_structure)")
	flag.StringVar(&o.apiKey, "api-key", os.Getenv("DOCSTRUCT_API_KEY"), "Bearer token for -remote")
	flag.BoolVar(&o.clean, "clean", false, "Normalise element text before classification")
	flag.BoolVar(&o.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&o.serveMCP, "mcp", false, "Serve the extract_structure tool over stdio")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: docstruct [flags] file\n       docstruct -mcp [flags]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	// stdout carries results (or the MCP stream), so logs go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "docstruct:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, args []string, stdout io.Writer) error {
	if o.serveMCP {
		return serveMCP(ctx, o)
	}
	if len(args) != 1 {
		return errors.New("expected exactly one input file")
	}
	path := args[0]

	if o.remoteURL != "" {
		if strings.EqualFold(filepath.Ext(o.output), ".xlsx") {
			return errors.New("-o .xlsx needs local extraction; drop -remote")
		}
		res := remote.NewClient(o.remoteURL, remote.WithAPIKey(o.apiKey)).ExtractFile(ctx, path)
		if err := writeResult(o.output, stdout, res); err != nil {
			return err
		}
		return res.Err()
	}

	engine, err := newEngine(o)
	if err != nil {
		return err
	}
	defer engine.Close()

	ext, err := engine.Extract(ctx, path)
	if err != nil {
		res := docstruct.FailureResult(err)
		if werr := writeResult(o.output, stdout, res); werr != nil {
			return werr
		}
		return err
	}

	if strings.EqualFold(filepath.Ext(o.output), ".xlsx") {
		f, err := os.Create(o.output)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		if err := engine.WriteReport(ctx, ext, f); err != nil {
			f.Close()
			return fmt.Errorf("writing report: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		slog.Info("report written", "file", o.output, "slides", len(ext.Slides))
		return nil
	}
	return writeResult(o.output, stdout, docstruct.NewResult(ext.Slides))
}

func newEngine(o options) (docstruct.Engine, error) {
	cfg := docstruct.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = docstruct.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if o.clean {
		cfg.CleanText = true
	}
	return docstruct.New(cfg)
}

// writeResult prints res as indented JSON to stdout, or, with a path, writes
// just the slide array there. A failed Result always goes out whole so the
// error body is kept.
func writeResult(path string, stdout io.Writer, res docstruct.Result) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if res.Success && path != "" {
		return report.WriteJSON(w, res.Slides)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func serveMCP(ctx context.Context, o options) error {
	var x remote.Extractor
	if o.remoteURL != "" {
		x = remote.NewClient(o.remoteURL, remote.WithAPIKey(o.apiKey))
	} else {
		engine, err := newEngine(o)
		if err != nil {
			return err
		}
		defer engine.Close()
		x = remote.Local{Engine: engine}
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "docstruct", Version: "1.0.0"}, nil)
	remote.RegisterMCP(srv, x)
	slog.Info("serving MCP over stdio", "remote", o.remoteURL)
	return srv.Run(ctx, &mcp.StdioTransport{})
}
