// internal/app/system/normalize/normalize.go
// Package normalize canonicalizes the identifiers that cross the
// authentication boundary, so stores and schemes compare like with like.
package normalize

import "strings"

// Username trims whitespace and lowercases. Folding for lookups is the
// store's job (text.Fold); this is the stored form.
func Username(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims whitespace.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Status lowercases and trims a status value.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Role lowercases and trims a role value.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SchemeID lowercases and trims a scheme id, and drops anything after the
// first dot, which would otherwise address a config sub-key.
func SchemeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	id, _, _ := strings.Cut(s, ".")
	return id
}
