package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/brunobiangulo/docstruct/element"
)

// DOCXPartitioner emits one element per paragraph and one per table, in
// body order. Word documents carry no reliable page breaks, so every
// element lands on page 0.
type DOCXPartitioner struct{}

func (p *DOCXPartitioner) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXPartitioner) Partition(ctx context.Context, path string) (*PartitionResult, error) {
	pkg, err := openOOXML(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer pkg.Close()

	data, err := pkg.read("word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("reading document.xml: %w", err)
	}

	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing document.xml: %w", err)
	}

	c := newCollector(path)
	for _, block := range doc.Body.Blocks {
		switch block.XMLName.Local {
		case "p":
			para := docxPara{PPr: block.PPr, Runs: block.Runs}
			text := extractParaText(para)
			c.add(0, docxCategory(para, text), text, nil)
		case "tbl":
			c.add(0, element.CategoryTable, docxTableText(block.Rows), nil)
		}
	}
	return c.result("native", nil), nil
}

func docxCategory(para docxPara, text string) string {
	if para.PPr != nil {
		if para.PPr.PStyle != nil {
			style := strings.ToLower(para.PPr.PStyle.Val)
			switch {
			case strings.HasPrefix(style, "heading"), strings.HasPrefix(style, "title"):
				return element.CategoryTitle
			case strings.HasPrefix(style, "listparagraph"), strings.HasPrefix(style, "listbullet"),
				strings.HasPrefix(style, "listnumber"):
				return element.CategoryListItem
			}
		}
		if para.PPr.NumPr != nil {
			return element.CategoryListItem
		}
	}
	return inferCategory(text)
}

func docxTableText(rows []docxRow) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			var parts []string
			for _, p := range cell.Paras {
				if t := strings.TrimSpace(extractParaText(p)); t != "" {
					parts = append(parts, t)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		lines = append(lines, strings.Join(cells, "\t"))
	}
	return strings.Join(lines, "\n")
}

// DOCX XML structures (simplified)
type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    struct {
		Blocks []docxBlock `xml:",any"`
	} `xml:"body"`
}

// docxBlock is a body-level paragraph or table.
type docxBlock struct {
	XMLName xml.Name
	PPr     *docxParaPr `xml:"pPr"`
	Runs    []docxRun   `xml:"r"`
	Rows    []docxRow   `xml:"tr"`
}

type docxPara struct {
	PPr  *docxParaPr `xml:"pPr"`
	Runs []docxRun   `xml:"r"`
}

type docxParaPr struct {
	PStyle *docxPStyle `xml:"pStyle"`
	NumPr  *struct{}   `xml:"numPr"`
}

type docxPStyle struct {
	Val string `xml:"val,attr"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

func extractParaText(para docxPara) string {
	var b strings.Builder
	for _, run := range para.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}
