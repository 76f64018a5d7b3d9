package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims, drops control characters and truncates to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

// NormalizeCode upper-cases identifiers such as SKUs and color codes.
func NormalizeCode(input string, maxLen int) string {
	return strings.ToUpper(SanitizeString(input, maxLen))
}
