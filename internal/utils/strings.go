// Package utils provides common utility functions.
package utils

// MaskKey masks a credential for safe logging (shows first 8 and last 4 chars).
// Use this to avoid logging bearer tokens or API keys in plain text.
func MaskKey(key string) string {
	if key == "" {
		return "(empty)"
	}
	if len(key) < 16 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// TruncateForLog caps a value at maxLen for inclusion in log output.
func TruncateForLog(value string, maxLen int) string {
	if maxLen <= 0 || len(value) <= maxLen {
		return value
	}
	return value[:maxLen] + "..."
}
