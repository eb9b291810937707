package element

import (
	"net/netip"
	"regexp"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Email
// ---------------------------------------------------------------------------

var emailPattern = regexp.MustCompile(`(?i)[a-z0-9.\-+_]+@[a-z0-9.\-+_]+\.[a-z]+`)

// ExtractEmailAddresses returns every email address found in text,
// lower-cased.
func ExtractEmailAddresses(text string) []string {
	matches := emailPattern.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = strings.ToLower(m)
	}
	return matches
}

// ---------------------------------------------------------------------------
// IP addresses
// ---------------------------------------------------------------------------

var (
	ipv4Candidate = regexp.MustCompile(`\d{1,3}(?:\.\d{1,3}){3}`)
	ipv6Candidate = regexp.MustCompile(`(?i)[0-9a-f]{0,4}(?::[0-9a-f]{0,4}){2,7}(?:%[0-9a-z]+)?`)
)

// ExtractIPAddresses returns the IPv4 and IPv6 literals found in text.
// Candidates are found by pattern and confirmed with netip.ParseAddr.
func ExtractIPAddresses(text string) []string {
	var out []string
	for _, loc := range ipv4Candidate.FindAllStringIndex(text, -1) {
		if !isolated(text, loc[0], loc[1], isIPv4Rune) {
			continue
		}
		if addr, err := netip.ParseAddr(text[loc[0]:loc[1]]); err == nil && addr.Is4() {
			out = append(out, addr.String())
		}
	}
	for _, loc := range ipv6Candidate.FindAllStringIndex(text, -1) {
		cand := text[loc[0]:loc[1]]
		if !isolated(text, loc[0], loc[1], isIPv6Rune) {
			continue
		}
		// "::" on its own (C++ scopes, Ruby constants) is not an address,
		// nor is a run ending in "::" such as "Step 1::".
		addrPart, _, _ := strings.Cut(cand, "%")
		if !strings.ContainsAny(strings.ToLower(addrPart), "0123456789abcdef") || strings.HasSuffix(addrPart, "::") {
			continue
		}
		if addr, err := netip.ParseAddr(cand); err == nil && addr.Is6() {
			out = append(out, addr.String())
		}
	}
	return out
}

func isIPv4Rune(b byte) bool {
	return b == '.' || (b >= '0' && b <= '9')
}

func isIPv6Rune(b byte) bool {
	return b == ':' || isAlnum(b)
}

func isAlnum(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isolated reports whether text[start:end] is not glued to neighbouring
// characters that would make it part of a longer token.
func isolated(text string, start, end int, glue func(byte) bool) bool {
	if start > 0 && glue(text[start-1]) {
		return false
	}
	if end < len(text) && glue(text[end]) {
		// A trailing sentence period is fine: "host 10.0.0.1."
		if text[end] == '.' && (end+1 == len(text) || !isAlnum(text[end+1])) {
			return true
		}
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// North American phone numbers
// ---------------------------------------------------------------------------

var usPhonePattern = regexp.MustCompile(
	`(?:^|[^\w+])(\+?1[-. ]?)?(\(\d{3}\)|\d{3})[-. ]?(\d{3})[-. ](\d{4})(?:\s*(?:x|ext\.?)\s*\d+)?(?:$|[^\w])`)

// ExtractUSPhoneNumbers returns North American phone numbers found in text,
// normalised to AAA-EEE-NNNN.
func ExtractUSPhoneNumbers(text string) []string {
	var out []string
	for _, m := range usPhonePattern.FindAllStringSubmatch(text, -1) {
		area := strings.Trim(m[2], "()")
		out = append(out, area+"-"+m[3]+"-"+m[4])
	}
	return out
}

// ---------------------------------------------------------------------------
// Date-times with timezone
// ---------------------------------------------------------------------------

type datePattern struct {
	re      *regexp.Regexp
	layouts []string
}

var datetimeTZPatterns = []datePattern{
	{
		// Mail-header style: "Thu, 5 Jan 2023 10:04:05 -0500"
		re: regexp.MustCompile(`[A-Za-z]{3},\s\d{1,2}\s[A-Za-z]{3}\s\d{4}\s\d{2}:\d{2}:\d{2}\s(?:[+-]\d{4}|UTC|GMT)`),
		layouts: []string{
			"Mon, 2 Jan 2006 15:04:05 -0700",
			"Mon, 2 Jan 2006 15:04:05 MST",
		},
	},
	{
		// ISO 8601 / RFC 3339 with an explicit offset or Z.
		re: regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})`),
		layouts: []string{
			time.RFC3339Nano,
			"2006-01-02 15:04:05Z07:00",
			"2006-01-02T15:04Z07:00",
			"2006-01-02 15:04Z07:00",
			"2006-01-02T15:04:05Z0700",
			"2006-01-02 15:04:05Z0700",
			"2006-01-02T15:04Z0700",
			"2006-01-02 15:04Z0700",
		},
	},
}

// ExtractDateTimeTZ returns the date-times carrying timezone information
// found in text, in RFC 3339 form. Candidates that do not parse (for example
// a 31st of February) are dropped.
func ExtractDateTimeTZ(text string) []string {
	var out []string
	for _, p := range datetimeTZPatterns {
		for _, cand := range p.re.FindAllString(text, -1) {
			for _, layout := range p.layouts {
				if t, err := time.Parse(layout, cand); err == nil {
					out = append(out, t.Format(time.RFC3339))
					break
				}
			}
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Ordered list markers
// ---------------------------------------------------------------------------

// orderedBulletPattern matches "1.", "1.2.", "a)", "(b)", "[3]", "IV." and
// "iv)" at the start of a line, followed by content. Roman markers run from
// I to XXXIX so abbreviations like "MD." and "CV." stay plain text.
var orderedBulletPattern = regexp.MustCompile(
	`^\s*[(\[]?(\d{1,3}(?:\.\d{1,3})*|[A-Za-z]|` + romanMarker(`IVX`) + `|` + romanMarker(`ivx`) + `)(?:[.)\]]|\.\))\s+\S`)

// romanMarker returns a pattern for the numerals 1 to 39 written with the
// given one, five and ten digits.
func romanMarker(digits string) string {
	i, v, x := string(digits[0]), string(digits[1]), string(digits[2])
	units := `(?:` + i + x + `|` + i + v + `|` + v + `?` + i + `{0,3})`
	return `(?:` + x + `{1,3}` + units + `|` + i + x + `|` + i + v + `|` + v + i + `{0,3}|` + i + `{1,3})`
}

// OrderedBullet describes a detected ordered-list marker.
type OrderedBullet struct {
	Line   int    // zero-based line index
	Marker string // e.g. "1", "1.2", "a", "IV"
}

// ExtractOrderedBullets returns the ordered-list markers that start lines of
// text.
func ExtractOrderedBullets(text string) []OrderedBullet {
	var out []OrderedBullet
	for i, line := range splitLines(text) {
		m := orderedBulletPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, OrderedBullet{Line: i, Marker: m[1]})
	}
	return out
}

// splitLines splits on \n, \r\n and \r.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
