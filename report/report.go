// Package report renders extraction results as spreadsheets or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/brunobiangulo/docstruct/chunker"
	"github.com/brunobiangulo/docstruct/element"
	"github.com/xuri/excelize/v2"
)

// Characters of text written to a spreadsheet cell.
const (
	MaxCellText  = 500
	MaxChunkText = 1000
)

// Sheet names.
const (
	SheetSummary  = "Summary"
	SheetElements = "Elements"
	SheetChunks   = "Chunks"
	SheetTables   = "Tables"
)

// Report is everything a spreadsheet export needs.
type Report struct {
	Filename string
	Slides   []element.SlideRecord
	Chunks   []chunker.Chunk
}

// Table is a tabular element split into cells.
type Table struct {
	Slide int
	Type  string
	Rows  [][]string
}

// Tables extracts the Table and LikelyTable elements of slides, in order.
func Tables(slides []element.SlideRecord) []Table {
	var out []Table
	for _, s := range slides {
		for _, el := range s.Elements {
			if el.Type != element.CategoryTable && el.Type != element.LabelLikelyTable {
				continue
			}
			rows := chunker.Cells(el.Text)
			if len(rows) == 0 {
				continue
			}
			out = append(out, Table{Slide: s.Slide, Type: el.Type, Rows: rows})
		}
	}
	return out
}

// WriteXLSX writes a workbook with a Summary sheet, an Elements sheet, a
// Chunks sheet and one Table_N sheet per detected table. When there are no
// tables a single Tables sheet says so.
func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("renaming default sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	tables := Tables(r.Slides)
	sw := &sheetWriter{f: f, bold: bold}

	sw.sheet(SheetSummary)
	sw.header("Field", "Value")
	sw.row("Filename", r.Filename)
	sw.row("Slides", len(r.Slides))
	sw.row("Elements", countElements(r.Slides))
	sw.row("Chunks", len(r.Chunks))
	sw.row("Tables", len(tables))
	sw.row()
	sw.header("Label", "Count")
	for _, lc := range labelCounts(r.Slides) {
		sw.row(lc.label, lc.count)
	}
	sw.widths(map[string]float64{"A": 18, "B": 40})

	sw.newSheet(SheetElements)
	sw.header("Slide", "Type", "Raw Category", "Text", "Element ID")
	for _, s := range r.Slides {
		for _, el := range s.Elements {
			id := ""
			if el.Metadata.ElementID != nil {
				id = *el.Metadata.ElementID
			}
			sw.row(s.Slide, el.Type, el.Metadata.RawCategory, truncate(el.Text, MaxCellText), id)
		}
	}
	sw.widths(map[string]float64{"B": 18, "C": 18, "D": 80, "E": 36})

	sw.newSheet(SheetChunks)
	sw.header("Index", "Slide", "Title", "Types", "Characters", "Text")
	for _, c := range r.Chunks {
		sw.row(c.Index, c.Slide, c.Title, strings.Join(c.Types, ", "), len(c.Text), truncate(c.Text, MaxChunkText))
	}
	sw.widths(map[string]float64{"C": 30, "D": 30, "F": 80})

	if len(tables) == 0 {
		sw.newSheet(SheetTables)
		sw.row("No tables detected.")
	}
	for i, t := range tables {
		sw.newSheet(fmt.Sprintf("Table_%d", i+1))
		for _, cells := range t.Rows {
			vals := make([]any, len(cells))
			for j, c := range cells {
				vals[j] = c
			}
			sw.row(vals...)
		}
	}

	if sw.err != nil {
		return sw.err
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

// WriteJSON writes slide records as indented JSON. A nil slice is written
// as an empty array.
func WriteJSON(w io.Writer, slides []element.SlideRecord) error {
	if slides == nil {
		slides = []element.SlideRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(slides)
}

// sheetWriter appends rows to the current sheet and keeps the first error.
type sheetWriter struct {
	f    *excelize.File
	bold int
	name string
	next int
	err  error
}

func (s *sheetWriter) sheet(name string) {
	s.name = name
	s.next = 1
}

func (s *sheetWriter) newSheet(name string) {
	if s.err != nil {
		return
	}
	if _, err := s.f.NewSheet(name); err != nil {
		s.err = fmt.Errorf("creating sheet %s: %w", name, err)
		return
	}
	s.sheet(name)
}

func (s *sheetWriter) row(vals ...any) {
	if s.err != nil {
		return
	}
	if len(vals) > 0 {
		cell, err := excelize.CoordinatesToCellName(1, s.next)
		if err == nil {
			err = s.f.SetSheetRow(s.name, cell, &vals)
		}
		if err != nil {
			s.err = fmt.Errorf("writing %s row %d: %w", s.name, s.next, err)
			return
		}
	}
	s.next++
}

func (s *sheetWriter) header(cols ...string) {
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = c
	}
	rowNum := s.next
	s.row(vals...)
	if s.err != nil {
		return
	}
	first, _ := excelize.CoordinatesToCellName(1, rowNum)
	last, _ := excelize.CoordinatesToCellName(len(cols), rowNum)
	if err := s.f.SetCellStyle(s.name, first, last, s.bold); err != nil {
		s.err = fmt.Errorf("styling %s header: %w", s.name, err)
	}
}

func (s *sheetWriter) widths(cols map[string]float64) {
	if s.err != nil {
		return
	}
	for col, width := range cols {
		if err := s.f.SetColWidth(s.name, col, col, width); err != nil {
			s.err = fmt.Errorf("sizing %s column %s: %w", s.name, col, err)
			return
		}
	}
}

type labelCount struct {
	label string
	count int
}

// labelCounts orders counts by the label vocabulary, then alphabetically
// for labels outside it.
func labelCounts(slides []element.SlideRecord) []labelCount {
	counts := element.CountLabels(slides)
	var out []labelCount
	for _, l := range element.Labels {
		if n, ok := counts[l]; ok {
			out = append(out, labelCount{l, n})
			delete(counts, l)
		}
	}
	rest := make([]string, 0, len(counts))
	for l := range counts {
		rest = append(rest, l)
	}
	sort.Strings(rest)
	for _, l := range rest {
		out = append(out, labelCount{l, counts[l]})
	}
	return out
}

func countElements(slides []element.SlideRecord) int {
	n := 0
	for _, s := range slides {
		n += len(s.Elements)
	}
	return n
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
