package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/brunobiangulo/docstruct/element"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Default page size (US Letter, points) when a page has no readable MediaBox.
const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
)

type PDFPartitioner struct {
	// Validate runs pdfcpu validation first and rejects broken files.
	Validate bool
}

func (p *PDFPartitioner) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFPartitioner) Partition(ctx context.Context, path string) (*PartitionResult, error) {
	meta := map[string]string{}
	if p.Validate {
		pc, err := readPDFContext(path)
		if err != nil {
			return nil, fmt.Errorf("validating PDF: %w", err)
		}
		meta["page_count"] = fmt.Sprintf("%d", pc.PageCount)
	}

	res, err := partitionPDFRows(ctx, path)
	if err != nil {
		slog.Debug("pdf: row extraction failed, trying content streams", "path", path, "error", err)
	}
	if res != nil && len(res.Elements) > 0 {
		for k, v := range meta {
			res.Metadata[k] = v
		}
		return res, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	streamRes, serr := partitionPDFStreams(ctx, path)
	if serr != nil {
		if err != nil {
			return nil, fmt.Errorf("opening PDF: %w", err)
		}
		return nil, fmt.Errorf("reading PDF content streams: %w", serr)
	}
	return streamRes, nil
}

// partitionPDFRows extracts positioned text rows page by page and groups
// them into blocks.
func partitionPDFRows(ctx context.Context, path string) (*PartitionResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := newCollector(path)
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		w, h := pageSize(page)

		rows, err := page.GetTextByRow()
		if err == nil && len(rows) > 0 {
			for _, b := range groupRows(rows) {
				c.add(i, inferCategory(b.text), b.text, b.coordinates(w, h))
			}
			continue
		}

		// Skip pages that fail to extract
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, block := range splitBlocks(text) {
			c.add(i, inferCategory(block), block, nil)
		}
	}

	return c.result("native", map[string]string{
		"page_count": fmt.Sprintf("%d", totalPages),
	}), nil
}

func pageSize(page pdf.Page) (float64, float64) {
	box := page.V.Key("MediaBox")
	if box.Len() != 4 {
		return defaultPageWidth, defaultPageHeight
	}
	w := box.Index(2).Float64() - box.Index(0).Float64()
	h := box.Index(3).Float64() - box.Index(1).Float64()
	if w <= 0 || h <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return w, h
}

// textLine is one row of text on a PDF page, in PDF user space (origin at
// the bottom left).
type textLine struct {
	text     string
	x0, x1   float64
	y        float64
	fontSize float64
}

// textBlock is a run of vertically adjacent lines.
type textBlock struct {
	text                string
	x0, x1, top, bottom float64
}

func (b textBlock) coordinates(pageW, pageH float64) *element.Coordinates {
	// Flip to a top-left origin.
	top, bottom := pageH-b.top, pageH-b.bottom
	return &element.Coordinates{
		Points:       [][2]float64{{b.x0, top}, {b.x0, bottom}, {b.x1, bottom}, {b.x1, top}},
		System:       "PixelSpace",
		LayoutWidth:  pageW,
		LayoutHeight: pageH,
	}
}

func rowToLine(row *pdf.Row) (textLine, bool) {
	texts := make([]pdf.Text, 0, len(row.Content))
	for _, t := range row.Content {
		if t.S != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return textLine{}, false
	}
	sort.SliceStable(texts, func(i, j int) bool { return texts[i].X < texts[j].X })

	var b strings.Builder
	line := textLine{x0: texts[0].X, y: float64(row.Position)}
	prevEnd := texts[0].X
	for i, t := range texts {
		if i > 0 && t.X-prevEnd > math.Max(t.FontSize*0.2, 1) && !strings.HasSuffix(b.String(), " ") {
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		prevEnd = t.X + t.W
		if t.FontSize > line.fontSize {
			line.fontSize = t.FontSize
		}
	}
	line.x1 = prevEnd
	line.text = strings.TrimSpace(b.String())
	return line, line.text != ""
}

// groupRows turns page rows into blocks. A new block starts when the
// vertical gap exceeds 1.5 line heights or the font size changes.
func groupRows(rows pdf.Rows) []textBlock {
	lines := make([]textLine, 0, len(rows))
	for _, r := range rows {
		if l, ok := rowToLine(r); ok {
			lines = append(lines, l)
		}
	}
	// Top of the page first.
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var blocks []textBlock
	var cur *textBlock
	var prev textLine
	for i, l := range lines {
		size := math.Max(l.fontSize, 1)
		newBlock := i == 0 ||
			prev.y-l.y > 1.5*math.Max(size, prev.fontSize) ||
			math.Abs(l.fontSize-prev.fontSize) > 1
		if newBlock {
			blocks = append(blocks, textBlock{text: l.text, x0: l.x0, x1: l.x1, top: l.y + size, bottom: l.y})
			cur = &blocks[len(blocks)-1]
		} else {
			cur.text += "\n" + l.text
			cur.x0 = math.Min(cur.x0, l.x0)
			cur.x1 = math.Max(cur.x1, l.x1)
			cur.bottom = l.y
		}
		prev = l
	}
	return blocks
}

func readPDFContext(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	return api.ReadValidateAndOptimize(f, conf)
}

// partitionPDFStreams is the fallback for files the row extractor cannot
// read: text is pulled straight from the page content streams.
func partitionPDFStreams(ctx context.Context, path string) (*PartitionResult, error) {
	pc, err := readPDFContext(path)
	if err != nil {
		return nil, err
	}

	c := newCollector(path)
	for pageNr := 1; pageNr <= pc.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pdfcpu.ExtractPageContent(pc, pageNr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil || len(data) == 0 {
			continue
		}
		for _, block := range splitBlocks(extractTextFromStream(data)) {
			c.add(pageNr, inferCategory(block), block, nil)
		}
	}

	return c.result("stream", map[string]string{
		"page_count": fmt.Sprintf("%d", pc.PageCount),
	}), nil
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// extractTextFromStream parses content stream text operators. Each text
// object (BT ... ET) becomes a paragraph; line moves become newlines.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			sb.WriteByte('\n')
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")),
			bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		case bytes.Equal(line, []byte("ET")):
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			// Octal escape (e.g. \040 for space).
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}
