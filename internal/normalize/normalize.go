// Package normalize canonicalizes raw URLs before pattern matching and
// vectorization. Every consumer of a URL (the feature extractor, the rule
// engine, the decision cache key) goes through Normalize so that encoded
// and plain forms of the same payload are treated identically.
package normalize

import (
	"html"
	"strings"
)

// maxPasses bounds the decode loop. Real traffic rarely nests encodings more
// than twice; attackers nest deeper to slip past single-pass filters.
const maxPasses = 5

// Normalize percent-decodes (tolerating malformed sequences), HTML-unescapes,
// trims surrounding whitespace, and lower-cases the input. Decoding runs to a
// fixed point so the function is idempotent: Normalize(Normalize(u)) ==
// Normalize(u), including for doubly-encoded inputs.
func Normalize(raw string) string {
	s := raw
	for i := 0; i < maxPasses; i++ {
		next := html.UnescapeString(percentDecode(s))
		if next == s {
			break
		}
		s = next
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// percentDecode decodes valid %XX escapes and leaves malformed sequences
// untouched. '+' is not translated to space: these are URL paths, not form
// bodies, and a literal '+' is common in search queries.
func percentDecode(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, okHi := unhex(s[i+1])
			lo, okLo := unhex(s[i+2])
			if okHi && okLo {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// SplitPathQuery splits a normalized URL into its path and query parts.
// The '?' itself is dropped; a URL without a query returns (path, "").
func SplitPathQuery(u string) (path, query string) {
	if idx := strings.IndexByte(u, '?'); idx >= 0 {
		return u[:idx], u[idx+1:]
	}
	return u, ""
}
