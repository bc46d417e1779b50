package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters and keeps at most maxLen runes.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

// NormalizeToken lowercases a sanitized identifier such as a mission category.
func NormalizeToken(input string, maxLen int) string {
	return strings.ToLower(SanitizeString(input, maxLen))
}
