package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextPartitioner handles plain text (.txt, .md) files.
type TextPartitioner struct{}

func (p *TextPartitioner) SupportedFormats() []string { return []string{"txt", "md"} }

func (p *TextPartitioner) Partition(ctx context.Context, path string) (*PartitionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	c := newCollector(path)
	for _, block := range splitBlocks(string(data)) {
		c.add(0, inferCategory(block), block, nil)
	}
	return c.result("native", nil), nil
}

// splitBlocks splits text on blank lines, dropping empty blocks.
func splitBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var blocks []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, strings.TrimRight(line, " \t"))
	}
	flush()
	return blocks
}
