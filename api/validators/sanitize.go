package validators

import "strings"

// MaxIDLength bounds caller-supplied identifiers such as userId.
const MaxIDLength = 128

func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// SanitizeID trims an identifier and reports whether it is usable.
// Over-long values are rejected rather than truncated so two ids never collide.
func SanitizeID(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || len(trimmed) > MaxIDLength {
		return "", false
	}
	return trimmed, true
}
