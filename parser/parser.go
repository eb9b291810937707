// Package parser partitions office documents into flat lists of raw
// elements: one entry per paragraph, text block or table, tagged with its
// page or slide number.
package parser

import (
	"context"

	"github.com/brunobiangulo/docstruct/element"
)

// PartitionResult is what a partitioner produces from a document file.
type PartitionResult struct {
	Elements []element.RawElement // In reading order
	Method   string               // "native", "stream"
	Metadata map[string]string
}

// Partitioner can partition a specific document format.
type Partitioner interface {
	Partition(ctx context.Context, path string) (*PartitionResult, error)
	SupportedFormats() []string
}
