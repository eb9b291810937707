package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Options tunes the built-in partitioners.
type Options struct {
	// ValidatePDF runs pdfcpu validation before text extraction.
	ValidatePDF bool
}

type Registry struct {
	partitioners map[string]Partitioner
}

func NewRegistry(opts Options) *Registry {
	r := &Registry{partitioners: make(map[string]Partitioner)}
	// Register built-in partitioners
	pdf := &PDFPartitioner{Validate: opts.ValidatePDF}
	docx := &DOCXPartitioner{}
	xlsx := &XLSXPartitioner{}
	pptx := &PPTXPartitioner{}
	txt := &TextPartitioner{}

	for _, p := range []Partitioner{pdf, docx, xlsx, pptx, txt} {
		for _, f := range p.SupportedFormats() {
			r.partitioners[f] = p
		}
	}
	return r
}

func (r *Registry) Get(format string) (Partitioner, error) {
	p, ok := r.partitioners[format]
	if !ok {
		return nil, fmt.Errorf("no partitioner for format: %s", format)
	}
	return p, nil
}

// ForPath picks a partitioner by file extension.
func (r *Registry) ForPath(path string) (Partitioner, error) {
	return r.Get(FormatOf(path))
}

func (r *Registry) Register(format string, p Partitioner) {
	r.partitioners[format] = p
}

// Formats lists the registered formats.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.partitioners))
	for f := range r.partitioners {
		out = append(out, f)
	}
	return out
}

// FormatOf returns the lower-cased extension of path without the dot.
func FormatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
