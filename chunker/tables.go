package chunker

import "strings"

// TableBlock holds a detected table block within a text.
type TableBlock struct {
	Content    string // The full table text, preserved as-is.
	StartLine  int    // Zero-based line index where the table begins.
	EndLine    int    // Zero-based line index where the table ends (exclusive).
	HasHeaders bool   // Whether a header separator row was detected.
}

// DetectTables scans text and identifies contiguous blocks that appear
// to be tabular data.
func DetectTables(text string) []TableBlock {
	lines := strings.Split(text, "\n")
	var tables []TableBlock

	i := 0
	for i < len(lines) {
		// Look for the start of a table.
		if isTableLine(lines[i]) {
			start := i
			hasHeaders := false
			for i < len(lines) && isTableLine(lines[i]) {
				if isHeaderSeparator(lines[i]) {
					hasHeaders = true
				}
				i++
			}
			// Require at least 2 table-like lines.
			if i-start >= 2 {
				tables = append(tables, TableBlock{
					Content:    strings.Join(lines[start:i], "\n"),
					StartLine:  start,
					EndLine:    i,
					HasHeaders: hasHeaders,
				})
			}
			continue
		}
		i++
	}
	return tables
}

// Cells splits table text into rows of cells. Rows split on pipes when the
// line has one, otherwise on tabs. Markdown header separators and blank
// lines are dropped, and the outer pipes of "| a | b |" rows do not
// produce empty cells.
func Cells(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isHeaderSeparator(trimmed) {
			continue
		}
		var cells []string
		if strings.Contains(trimmed, "|") {
			trimmed = strings.TrimPrefix(trimmed, "|")
			trimmed = strings.TrimSuffix(trimmed, "|")
			cells = strings.Split(trimmed, "|")
		} else {
			cells = strings.Split(trimmed, "\t")
		}
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
	}
	return rows
}

// isTableLine reports whether a line looks like part of a table.
func isTableLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	// Markdown-style pipe tables.
	if strings.Contains(trimmed, "|") {
		return true
	}
	// Tab-delimited columns.
	if strings.Contains(trimmed, "\t") {
		return true
	}
	return isHeaderSeparator(trimmed)
}

// isHeaderSeparator detects markdown-style header separators like
// "|---|---|" or "------".
func isHeaderSeparator(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	// Remove pipe characters and spaces, see if the rest is all dashes.
	cleaned := strings.ReplaceAll(trimmed, "|", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ":", "") // alignment markers
	if len(cleaned) < 3 {
		return false
	}
	for _, r := range cleaned {
		if r != '-' {
			return false
		}
	}
	return true
}
