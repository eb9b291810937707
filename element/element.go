// Package element holds the extracted-element model and the classification
// and aggregation pipeline that turns a flat element list into slide records.
package element

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Labels assigned by the classifier. Categories produced by a partitioner
// (Title, NarrativeText, ListItem, Table, ...) pass through unchanged when no
// content rule matches.
const (
	LabelLikelyTable     = "LikelyTable"
	LabelEmail           = "Email"
	LabelIPAddress       = "IPAddress"
	LabelPhoneNumber     = "PhoneNumber"
	LabelDateTime        = "DateTime"
	LabelOrderedListItem = "OrderedListItem"
	LabelText            = "Text"
	LabelUnknown         = "Unknown"
)

// Partitioner categories.
const (
	CategoryTitle         = "Title"
	CategoryNarrativeText = "NarrativeText"
	CategoryListItem      = "ListItem"
	CategoryTable         = "Table"
	CategoryUncategorized = "UncategorizedText"
)

// Labels is the fixed label vocabulary used for slide composition vectors.
// Order is significant: index i is dimension i of a composition vector.
var Labels = []string{
	LabelLikelyTable,
	LabelEmail,
	LabelIPAddress,
	LabelPhoneNumber,
	LabelDateTime,
	LabelOrderedListItem,
	LabelText,
	CategoryTitle,
	CategoryNarrativeText,
	CategoryListItem,
	CategoryTable,
	LabelUnknown,
}

// Coordinates locates an element on its page or slide.
type Coordinates struct {
	Points       [][2]float64 `json:"points"`
	System       string       `json:"system"`
	LayoutWidth  float64      `json:"layout_width"`
	LayoutHeight float64      `json:"layout_height"`
}

// RawElement is one content unit as produced by a partitioner.
type RawElement struct {
	Text        string
	Category    string
	PageNumber  int
	Filename    string
	Coordinates *Coordinates
	ElementID   string
}

// Metadata is the per-element metadata carried into the output.
type Metadata struct {
	SlideNumber int          `json:"slide_number"`
	Filename    *string      `json:"filename"`
	Coordinates *Coordinates `json:"coordinates"`
	ElementID   *string      `json:"element_id"`
	RawCategory string       `json:"raw_category"`
}

// LabeledElement is a RawElement after trimming and classification.
type LabeledElement struct {
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// SlideRecord groups the labelled elements of one slide or page.
type SlideRecord struct {
	Slide    int              `json:"slide"`
	Elements []LabeledElement `json:"elements"`
}

// FromMap builds a RawElement from a loosely typed metadata bag, as found in
// JSON exported by other partitioning tools. The page number is coerced to an
// integer; anything missing or unparseable becomes 0.
func FromMap(text, category string, meta map[string]any) RawElement {
	el := RawElement{Text: text, Category: category}
	if meta == nil {
		return el
	}

	el.PageNumber = coerceInt(meta["page_number"])
	if el.PageNumber == 0 {
		el.PageNumber = coerceInt(meta["slide_number"])
	}
	if s, ok := meta["filename"].(string); ok {
		el.Filename = s
	}
	if s, ok := meta["element_id"].(string); ok {
		el.ElementID = s
	}
	if c, ok := meta["coordinates"]; ok && c != nil {
		el.Coordinates = coerceCoordinates(c)
	}
	return el
}

func coerceInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return coerceInt(f)
		}
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return coerceInt(f)
		}
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

// coerceCoordinates round-trips an arbitrary JSON value through the
// Coordinates shape. Values that do not fit are dropped.
func coerceCoordinates(v any) *Coordinates {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var c Coordinates
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	if len(c.Points) == 0 {
		return nil
	}
	return &c
}
