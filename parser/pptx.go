package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/brunobiangulo/docstruct/element"
)

const relNamespace = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

type PPTXPartitioner struct{}

func (p *PPTXPartitioner) SupportedFormats() []string { return []string{"pptx"} }

func (p *PPTXPartitioner) Partition(ctx context.Context, path string) (*PartitionResult, error) {
	pkg, err := openOOXML(path)
	if err != nil {
		return nil, fmt.Errorf("opening PPTX: %w", err)
	}
	defer pkg.Close()

	slides, size := pptxSlideOrder(pkg)
	if len(slides) == 0 {
		return nil, fmt.Errorf("no slides found in PPTX")
	}

	c := newCollector(path)
	for i, name := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := pkg.read(name)
		if err != nil {
			slog.Debug("pptx: skipping unreadable slide", "part", name, "error", err)
			continue
		}
		var slide pptxSlide
		if err := xml.Unmarshal(data, &slide); err != nil {
			slog.Debug("pptx: skipping malformed slide", "part", name, "error", err)
			continue
		}
		walkPPTXTree(c, i+1, slide.CSld.SpTree.Nodes, identityTransform, size)
	}

	return c.result("native", map[string]string{
		"slide_count": fmt.Sprintf("%d", len(slides)),
	}), nil
}

// pptxSlideOrder returns slide part names in presentation order, together
// with the slide size. When presentation.xml cannot be used, slides are
// ordered by the number in their part name.
func pptxSlideOrder(pkg *ooxmlPackage) ([]string, pptxSize) {
	var pres pptxPresentation
	size := pptxSize{}
	if data, err := pkg.read("ppt/presentation.xml"); err == nil {
		if err := xml.Unmarshal(data, &pres); err == nil {
			size = pres.SldSz
		}
	}

	rels := pkg.rels("ppt/presentation.xml")
	var ordered []string
	for _, id := range pres.SldIDs {
		target, ok := rels[id.RID]
		if !ok || pkg.parts[target] == nil {
			continue
		}
		ordered = append(ordered, target)
	}
	if len(ordered) > 0 {
		return ordered, size
	}

	// Collect slide files (ppt/slides/slide1.xml, slide2.xml, ...)
	byNum := make(map[int]string)
	for name := range pkg.parts {
		if strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml") {
			if num := extractSlideNumber(name); num > 0 {
				byNum[num] = name
			}
		}
	}
	nums := make([]int, 0, len(byNum))
	for n := range byNum {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		ordered = append(ordered, byNum[n])
	}
	return ordered, size
}

func extractSlideNumber(name string) int {
	// Extract number from "ppt/slides/slide1.xml"
	name = strings.TrimPrefix(name, "ppt/slides/slide")
	name = strings.TrimSuffix(name, ".xml")
	var num int
	fmt.Sscanf(name, "%d", &num)
	return num
}

// transform maps a group's child coordinate space onto slide space.
type transform struct {
	offX, offY, chX, chY, scaleX, scaleY float64
}

var identityTransform = transform{scaleX: 1, scaleY: 1}

func (t transform) apply(x, y float64) (float64, float64) {
	return t.offX + (x-t.chX)*t.scaleX, t.offY + (y-t.chY)*t.scaleY
}

// compose returns the transform for the children of a group whose own
// frame is xf, nested under t.
func (t transform) compose(xf *pptxXfrm) transform {
	if xf == nil || xf.ChExt.CX == 0 || xf.ChExt.CY == 0 {
		return t
	}
	ox, oy := t.apply(float64(xf.Off.X), float64(xf.Off.Y))
	return transform{
		offX:   ox,
		offY:   oy,
		chX:    float64(xf.ChOff.X),
		chY:    float64(xf.ChOff.Y),
		scaleX: t.scaleX * float64(xf.Ext.CX) / float64(xf.ChExt.CX),
		scaleY: t.scaleY * float64(xf.Ext.CY) / float64(xf.ChExt.CY),
	}
}

func (t transform) coordinates(xf *pptxXfrm, size pptxSize) *element.Coordinates {
	if xf == nil {
		return nil
	}
	x0, y0 := t.apply(float64(xf.Off.X), float64(xf.Off.Y))
	x1, y1 := t.apply(float64(xf.Off.X+xf.Ext.CX), float64(xf.Off.Y+xf.Ext.CY))
	return &element.Coordinates{
		Points:       [][2]float64{{x0, y0}, {x0, y1}, {x1, y1}, {x1, y0}},
		System:       "EMU",
		LayoutWidth:  float64(size.CX),
		LayoutHeight: float64(size.CY),
	}
}

func walkPPTXTree(c *collector, slide int, nodes []pptxNode, t transform, size pptxSize) {
	for _, n := range nodes {
		switch n.XMLName.Local {
		case "sp":
			addPPTXShape(c, slide, n, t.coordinates(n.SpPr.Xfrm, size))
		case "graphicFrame":
			if n.Table != nil {
				c.add(slide, element.CategoryTable, pptxTableText(n.Table), t.coordinates(n.Xfrm, size))
			}
		case "grpSp":
			walkPPTXTree(c, slide, n.Nodes, t.compose(n.GrpSpPr.Xfrm), size)
		}
	}
}

func addPPTXShape(c *collector, slide int, sp pptxNode, coords *element.Coordinates) {
	if sp.TxBody == nil {
		return
	}
	ph := sp.NvSpPr.NvPr.Ph
	isTitle := ph != nil && (ph.Type == "title" || ph.Type == "ctrTitle")

	for _, para := range sp.TxBody.Paras {
		text := para.text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		category := inferCategory(text)
		switch {
		case isTitle:
			category = element.CategoryTitle
		case para.isBulleted():
			category = element.CategoryListItem
		}
		c.add(slide, category, text, coords)
	}
}

// pptxTableText renders a table with rows on separate lines and cells
// separated by tabs.
func pptxTableText(tbl *pptxTable) string {
	rows := make([]string, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			var parts []string
			for _, p := range cell.TxBody.Paras {
				if t := strings.TrimSpace(p.text()); t != "" {
					parts = append(parts, t)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		rows = append(rows, strings.Join(cells, "\t"))
	}
	return strings.Join(rows, "\n")
}

// PPTX XML structures (simplified)
type pptxPresentation struct {
	SldIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
	SldSz pptxSize `xml:"sldSz"`
}

type pptxSize struct {
	CX int64 `xml:"cx,attr"`
	CY int64 `xml:"cy,attr"`
}

type pptxPoint struct {
	X int64 `xml:"x,attr"`
	Y int64 `xml:"y,attr"`
}

type pptxXfrm struct {
	Off   pptxPoint `xml:"off"`
	Ext   pptxSize  `xml:"ext"`
	ChOff pptxPoint `xml:"chOff"`
	ChExt pptxSize  `xml:"chExt"`
}

type pptxSlide struct {
	CSld struct {
		SpTree struct {
			Nodes []pptxNode `xml:",any"`
		} `xml:"spTree"`
	} `xml:"cSld"`
}

// pptxNode is any child of a shape tree: a shape, a graphic frame or a group.
type pptxNode struct {
	XMLName xml.Name
	NvSpPr  struct {
		NvPr struct {
			Ph *pptxPlaceholder `xml:"ph"`
		} `xml:"nvPr"`
	} `xml:"nvSpPr"`
	SpPr struct {
		Xfrm *pptxXfrm `xml:"xfrm"`
	} `xml:"spPr"`
	GrpSpPr struct {
		Xfrm *pptxXfrm `xml:"xfrm"`
	} `xml:"grpSpPr"`
	Xfrm   *pptxXfrm   `xml:"xfrm"`
	TxBody *pptxTxBody `xml:"txBody"`
	Table  *pptxTable  `xml:"graphic>graphicData>tbl"`
	Nodes  []pptxNode  `xml:",any"`
}

type pptxPlaceholder struct {
	Type string `xml:"type,attr"`
}

type pptxTxBody struct {
	Paras []pptxAPara `xml:"p"`
}

type pptxAPara struct {
	PPr *struct {
		Lvl       int       `xml:"lvl,attr"`
		BuChar    *struct{} `xml:"buChar"`
		BuAutoNum *struct{} `xml:"buAutoNum"`
	} `xml:"pPr"`
	Items []pptxARun `xml:",any"`
}

// pptxARun is a run, field or line break inside a paragraph.
type pptxARun struct {
	XMLName xml.Name
	Text    string `xml:"t"`
}

func (p pptxAPara) text() string {
	var b strings.Builder
	for _, it := range p.Items {
		switch it.XMLName.Local {
		case "r", "fld":
			b.WriteString(it.Text)
		case "br":
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (p pptxAPara) isBulleted() bool {
	if p.PPr == nil {
		return false
	}
	return p.PPr.BuChar != nil || p.PPr.BuAutoNum != nil || p.PPr.Lvl > 0
}

type pptxTable struct {
	Rows []struct {
		Cells []struct {
			TxBody pptxTxBody `xml:"txBody"`
		} `xml:"tc"`
	} `xml:"tr"`
}
