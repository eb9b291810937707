// Package chunker groups classified slide elements into title-led chunks
// sized for downstream consumers such as spreadsheet reports.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/brunobiangulo/docstruct/element"
)

// Config controls the chunking behaviour.
type Config struct {
	MaxCharacters  int // Hard limit on chunk text length (tables excepted).
	NewAfterNChars int // Soft limit: start a new chunk once this is reached.
}

// Chunk is a run of consecutive elements from one slide.
type Chunk struct {
	Index       int      `json:"index"`
	Slide       int      `json:"slide"`
	Title       string   `json:"title,omitempty"`
	Text        string   `json:"text"`
	Types       []string `json:"types"`
	ElementIDs  []string `json:"element_ids,omitempty"`
	ContentHash string   `json:"content_hash"`
}

// Chunker converts slide records into chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxCharacters <= 0 {
		cfg.MaxCharacters = 600
	}
	if cfg.NewAfterNChars <= 0 || cfg.NewAfterNChars > cfg.MaxCharacters {
		cfg.NewAfterNChars = cfg.MaxCharacters
	}
	return &Chunker{cfg: cfg}
}

// ChunkByTitle is a convenience wrapper around New(cfg).ChunkByTitle.
func ChunkByTitle(slides []element.SlideRecord, cfg Config) []Chunk {
	return New(cfg).ChunkByTitle(slides)
}

// ChunkByTitle walks the slides in order. A chunk never spans two slides;
// a Title element always opens a new chunk; table elements form a chunk of
// their own whatever their size. Other elements are packed until the
// character limits are reached, and a single element longer than
// MaxCharacters is split at sentence and then word boundaries.
func (c *Chunker) ChunkByTitle(slides []element.SlideRecord) []Chunk {
	var chunks []Chunk
	for _, s := range slides {
		b := &builder{c: c, slide: s.Slide}
		for _, el := range s.Elements {
			switch {
			case isTable(el):
				b.flush(&chunks)
				b.add(el, el.Text)
				b.flush(&chunks)
				b.title = ""
			case el.Type == element.CategoryTitle:
				b.flush(&chunks)
				b.title = el.Text
				b.add(el, el.Text)
			default:
				for _, piece := range c.splitText(el.Text) {
					if b.size() > 0 && (b.size()+len(piece)+2 > c.cfg.MaxCharacters || b.size() >= c.cfg.NewAfterNChars) {
						b.flush(&chunks)
					}
					b.add(el, piece)
				}
			}
		}
		b.flush(&chunks)
	}
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

func isTable(el element.LabeledElement) bool {
	return el.Type == element.CategoryTable || el.Type == element.LabelLikelyTable
}

// builder accumulates the chunk under construction for one slide.
type builder struct {
	c     *Chunker
	slide int
	title string
	parts []string
	types []string
	ids   []string
}

func (b *builder) size() int {
	n := 0
	for i, p := range b.parts {
		if i > 0 {
			n += 2
		}
		n += len(p)
	}
	return n
}

func (b *builder) add(el element.LabeledElement, text string) {
	b.parts = append(b.parts, text)
	if len(b.types) == 0 || b.types[len(b.types)-1] != el.Type {
		b.types = append(b.types, el.Type)
	}
	if el.Metadata.ElementID != nil {
		id := *el.Metadata.ElementID
		if len(b.ids) == 0 || b.ids[len(b.ids)-1] != id {
			b.ids = append(b.ids, id)
		}
	}
}

func (b *builder) flush(chunks *[]Chunk) {
	if len(b.parts) == 0 {
		return
	}
	text := strings.Join(b.parts, "\n\n")
	*chunks = append(*chunks, Chunk{
		Slide:       b.slide,
		Title:       b.title,
		Text:        text,
		Types:       b.types,
		ElementIDs:  b.ids,
		ContentHash: contentHash(text),
	})
	b.parts, b.types, b.ids = nil, nil, nil
}

// splitText breaks text longer than MaxCharacters into pieces at sentence
// boundaries, falling back to word boundaries and finally to a hard cut.
func (c *Chunker) splitText(text string) []string {
	limit := c.cfg.MaxCharacters
	if len(text) <= limit {
		return []string{text}
	}

	var pieces []string
	var cur strings.Builder
	emit := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			pieces = append(pieces, s)
		}
		cur.Reset()
	}
	for _, sent := range splitSentences(text) {
		for _, part := range splitWords(sent, limit) {
			if cur.Len() > 0 && cur.Len()+1+len(part) > limit {
				emit()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(part)
		}
	}
	emit()
	return pieces
}

// splitWords cuts a sentence longer than limit at word boundaries. Words
// longer than limit are cut at rune boundaries.
func splitWords(sentence string, limit int) []string {
	if len(sentence) <= limit {
		return []string{sentence}
	}
	var out []string
	var cur strings.Builder
	for _, w := range strings.Fields(sentence) {
		for len(w) > limit {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			cut := runeCut(w, limit)
			out = append(out, w[:cut])
			w = w[cut:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(w) > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// runeCut returns the largest index <= limit that falls on a rune boundary.
func runeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && cut < len(s) && !isRuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		cut = limit
	}
	return cut
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// splitSentences is a simple sentence tokeniser.  It splits on
// period/question-mark/exclamation followed by whitespace or end of
// string.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// contentHash returns the SHA-256 hex digest of text.
func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
