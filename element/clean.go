package element

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// unicodeBullets are the leading glyphs slide decks and PDFs use for
// unordered bullets.
const unicodeBullets = "•‣⁃⁌⁍∙○●◘◦☙❥❧⦾⦿▪▫■□➢➤►▸◆◇✓✔*·-–—"

const trailingPunctuation = ".,;:"

var (
	dashPattern       = regexp.MustCompile(`[‐‑‒–—―⁃−]`)
	extraSpacePattern = regexp.MustCompile(`[ \t\x{00a0}\x{2000}-\x{200b}\x{3000}]+`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
)

// Clean normalises extracted text: NFKC folding, removal of a leading
// unordered-bullet glyph, dash unification, whitespace collapsing and
// trimming of trailing ".,;:". Line breaks are kept so table-like text stays
// recognisable, but tabs inside a line are collapsed only when the text has
// a single line.
func Clean(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	multiline := len(lines) > 1
	for i, line := range lines {
		line = cleanBullet(line)
		line = dashPattern.ReplaceAllString(line, "-")
		if multiline && strings.Contains(line, "\t") {
			line = strings.TrimSpace(line)
		} else {
			line = strings.TrimSpace(extraSpacePattern.ReplaceAllString(line, " "))
		}
		lines[i] = line
	}
	text = strings.Join(lines, "\n")
	text = blankLinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimRight(strings.TrimSpace(text), trailingPunctuation)
}

// cleanBullet strips one leading unordered bullet glyph. A hyphen counts only
// when followed by whitespace, so negative numbers survive.
func cleanBullet(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	for _, r := range trimmed {
		if !strings.ContainsRune(unicodeBullets, r) {
			return line
		}
		rest := trimmed[len(string(r)):]
		if r == '-' || r == '*' {
			if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
				return line
			}
		}
		return strings.TrimLeft(rest, " \t")
	}
	return line
}
