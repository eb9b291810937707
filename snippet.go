package docstruct

import (
	"strings"
	"unicode"
)

// snippetMaxLen is the maximum rune length of a search snippet.
const snippetMaxLen = 200

// searchSnippet picks the line or sentence of text sharing the most terms
// with the query, plus its best-scoring neighbour when both fit. Without any
// overlap it falls back to the start of the text.
func searchSnippet(text string, terms map[string]bool) string {
	units := snippetUnits(text)
	if len(units) == 0 {
		return ""
	}

	scores := make([]int, len(units))
	best := 0
	for i, u := range units {
		for w := range queryTerms(u) {
			if terms[w] {
				scores[i]++
			}
		}
		if scores[i] > scores[best] {
			best = i
		}
	}
	if scores[best] == 0 {
		return clip(units[0])
	}

	result := units[best]
	next, prev := best+1, best-1
	switch {
	case next < len(units) && scores[next] > 0 && (prev < 0 || scores[next] >= scores[prev]):
		if joined := result + " " + units[next]; runeLen(joined) <= snippetMaxLen {
			result = joined
		}
	case prev >= 0 && scores[prev] > 0:
		if joined := units[prev] + " " + result; runeLen(joined) <= snippetMaxLen {
			result = joined
		}
	}
	return clip(result)
}

// queryTerms returns the lowercased words of at least three characters,
// minus stop words. FTS5 operators are dropped along with punctuation.
func queryTerms(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= 3 && !stopWords[w] {
			terms[w] = true
		}
	}
	return terms
}

// snippetUnits splits text into lines, and lines into sentences.
func snippetUnits(text string) []string {
	var units []string
	for _, line := range strings.Split(text, "\n") {
		start := 0
		runes := []rune(line)
		for i, r := range runes {
			if (r == '.' || r == '?' || r == '!') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
				if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
					units = append(units, s)
				}
				start = i + 1
			}
		}
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			units = append(units, s)
		}
	}
	return units
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= snippetMaxLen {
		return s
	}
	return strings.TrimSpace(string(r[:snippetMaxLen-1])) + "…"
}

func runeLen(s string) int { return len([]rune(s)) }

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "not": true,
	"but": true, "you": true, "all": true, "was": true, "our": true,
	"that": true, "this": true, "with": true, "from": true,
	"have": true, "been": true, "were": true, "they": true,
	"will": true, "into": true, "than": true, "then": true,
	"near": true, // FTS5 operator
}
