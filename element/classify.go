package element

import "strings"

// Classify assigns a refined label to a block of text. The rules are tried
// in a fixed order and the first match wins; several may match the same
// text, so the order is part of the contract.
func Classify(text, rawCategory string) string {
	switch {
	case LooksLikeTable(text):
		return LabelLikelyTable
	case len(ExtractEmailAddresses(text)) > 0:
		return LabelEmail
	case len(ExtractIPAddresses(text)) > 0:
		return LabelIPAddress
	case len(ExtractUSPhoneNumbers(text)) > 0:
		return LabelPhoneNumber
	case len(ExtractDateTimeTZ(text)) > 0:
		return LabelDateTime
	case len(ExtractOrderedBullets(text)) > 0:
		return LabelOrderedListItem
	}
	return fallbackLabel(rawCategory)
}

func fallbackLabel(rawCategory string) string {
	switch rawCategory {
	case "":
		return LabelUnknown
	case CategoryUncategorized:
		return LabelText
	}
	return rawCategory
}

// LooksLikeTable reports whether text spans at least two lines and at least
// one of them contains a pipe or a tab.
func LooksLikeTable(text string) bool {
	lines := splitLines(strings.TrimSpace(text))
	if len(lines) < 2 {
		return false
	}
	for _, line := range lines {
		if strings.ContainsAny(line, "|\t") {
			return true
		}
	}
	return false
}
