package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/brunobiangulo/docstruct/element"
	"github.com/xuri/excelize/v2"
)

// XLSXPartitioner turns each worksheet into one Table element. The sheet's
// position (1-based) is used as its page number.
type XLSXPartitioner struct{}

func (p *XLSXPartitioner) SupportedFormats() []string { return []string{"xlsx", "xlsm"} }

func (p *XLSXPartitioner) Partition(ctx context.Context, path string) (*PartitionResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	c := newCollector(path)
	sheets := f.GetSheetList()
	for i, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			if strings.TrimSpace(strings.Join(row, "")) == "" {
				continue
			}
			lines = append(lines, strings.Join(row, "\t"))
		}
		if len(lines) == 0 {
			continue
		}
		c.add(i+1, element.CategoryTable, strings.Join(lines, "\n"), nil)
	}

	return c.result("native", map[string]string{
		"sheet_count": fmt.Sprintf("%d", len(sheets)),
	}), nil
}
