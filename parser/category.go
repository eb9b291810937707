package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/brunobiangulo/docstruct/element"
)

// inferCategory guesses a partitioner category for a block of text that
// carries no structural hint (PDF text blocks, plain text paragraphs).
func inferCategory(text string) string {
	t := strings.TrimSpace(text)
	switch {
	case t == "":
		return element.CategoryUncategorized
	case startsWithBullet(t):
		return element.CategoryListItem
	case isLikelyHeading(t):
		return element.CategoryTitle
	case isNarrative(t):
		return element.CategoryNarrativeText
	}
	return element.CategoryUncategorized
}

// bulletGlyphs open an unordered list item.
const bulletGlyphs = "•‣⁃∙○●◦▪▫■□➢➤►▸◆◇✓✔·"

func startsWithBullet(t string) bool {
	for _, r := range t {
		if strings.ContainsRune(bulletGlyphs, r) {
			return true
		}
		if r == '-' || r == '*' {
			return len(t) > 1 && (t[1] == ' ' || t[1] == '\t')
		}
		return false
	}
	return false
}

func isLikelyHeading(line string) bool {
	if line == "" || strings.Contains(line, "\n") || len(line) >= 100 {
		return false
	}
	// All caps and short
	if hasLetter(line) && line == strings.ToUpper(line) && len(line) > 2 {
		return true
	}
	// Numbered section like "1.", "1.1", "3.9.1"
	if line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") &&
		!strings.ContainsAny(line[len(line)-1:], ".!?") {
		return true
	}
	lower := strings.ToLower(line)
	if strings.HasPrefix(lower, "section ") || strings.HasPrefix(lower, "chapter ") ||
		strings.HasPrefix(lower, "part ") || strings.HasPrefix(lower, "article ") ||
		strings.HasPrefix(lower, "appendix ") {
		return true
	}
	// Short capitalised phrase without sentence punctuation.
	words := strings.Fields(line)
	first := []rune(words[0])[0]
	if len(words) <= 10 && unicode.IsUpper(first) && !strings.ContainsAny(line, ".!?;:,") {
		return true
	}
	return false
}

func isNarrative(t string) bool {
	if len(strings.Fields(t)) < 5 {
		return false
	}
	for _, r := range t {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// elementID derives a stable identifier from an element's position and
// content.
func elementID(filename string, page, index int, text string) string {
	h := sha256.New()
	h.Write([]byte(filename))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(page)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(index)))
	h.Write([]byte{'|'})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// collector accumulates elements for one document and numbers them within
// each page.
type collector struct {
	filename string
	elements []element.RawElement
	perPage  map[int]int
}

func newCollector(path string) *collector {
	return &collector{filename: filepath.Base(path), perPage: make(map[int]int)}
}

func (c *collector) add(page int, category, text string, coords *element.Coordinates) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	idx := c.perPage[page]
	c.perPage[page] = idx + 1
	c.elements = append(c.elements, element.RawElement{
		Text:        text,
		Category:    category,
		PageNumber:  page,
		Filename:    c.filename,
		Coordinates: coords,
		ElementID:   elementID(c.filename, page, idx, text),
	})
}

func (c *collector) result(method string, meta map[string]string) *PartitionResult {
	return &PartitionResult{Elements: c.elements, Method: method, Metadata: meta}
}
