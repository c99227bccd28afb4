package utils

import "fmt"

// DefaultMaxStringLength is used by TruncateString when maxLen is not positive.
const DefaultMaxStringLength = 500

// TruncateString shortens s to maxLen bytes and records the original length.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxStringLength
	}
	if len(s) <= maxLen {
		return s
	}
	return fmt.Sprintf("%s... (truncated, total: %d chars)", s[:maxLen], len(s))
}

// Preview returns the first n runes of s followed by "..." when s is longer.
// Unlike TruncateString it never splits a multi-byte character.
func Preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
