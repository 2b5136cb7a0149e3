package scout

import "strings"

// Contact identifiers contain characters ('@', '.') that the persistent store
// forbids in keys, so keys use a reversible substitution escape. NormalizeEmail
// must be applied before EscapeKey so equal contacts map to equal keys.

var keyEscaper = strings.NewReplacer("@", "_at_", ".", "_dot_")

var keyUnescaper = strings.NewReplacer("_at_", "@", "_dot_", ".")

// NormalizeEmail lowercases and trims a raw contact identifier.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// EscapeKey converts a normalized contact identifier into a storage-safe key.
func EscapeKey(email string) string {
	return keyEscaper.Replace(email)
}

// UnescapeKey recovers the contact identifier from a storage key.
func UnescapeKey(key string) string {
	return keyUnescaper.Replace(key)
}
