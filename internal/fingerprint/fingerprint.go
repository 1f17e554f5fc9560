// Package fingerprint derives deterministic cache keys from query text.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Fingerprint returns a fixed-length hex identifier for a query.
//
// The query is normalized before hashing: leading/trailing whitespace is
// trimmed, internal whitespace runs collapse to a single space, and the text
// is lowercased. Two questions that differ only in casing or spacing share a
// cache entry. The empty string is valid input and hashes consistently.
func Fingerprint(query string) string {
	sum := sha256.Sum256([]byte(Normalize(query)))
	return hex.EncodeToString(sum[:])
}

// Normalize applies the canonical form used for fingerprinting.
func Normalize(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	inSpace := false
	for _, r := range strings.TrimSpace(query) {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			b.WriteByte(' ')
			inSpace = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
