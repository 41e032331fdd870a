// Package ident cleans object identifiers before they are stored in a
// header.
//
// Identifiers are diagnostic labels. They end up in single-line audit records
// whose fields are separated by '|', and in operator listings, so they are
// normalised to NFC, stripped of control characters, have the field
// separator replaced, and are cut to a fixed number of bytes without
// splitting a multi-byte rune.
package ident

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSize is the identifier field width in bytes.
const DefaultSize = 32

// Separator is the audit field separator; it never survives Clean.
const Separator = '|'

func newCleaner() transform.Transformer {
	return transform.Chain(
		norm.NFC,
		runes.Remove(runes.Predicate(unicode.IsControl)),
		runes.Map(func(r rune) rune {
			if r == Separator {
				return '/'
			}
			return r
		}),
	)
}

// Clean returns s sanitised and truncated to at most size bytes.
// A size <= 0 selects DefaultSize.
func Clean(s string, size int) string {
	if size <= 0 {
		size = DefaultSize
	}
	out, _, err := transform.String(newCleaner(), s)
	if err != nil {
		// Invalid UTF-8; fall back to replacing the bad bytes with U+FFFD.
		out = string([]rune(s))
	}
	return Truncate(out, size)
}

// Truncate cuts s to at most size bytes on a rune boundary.
func Truncate(s string, size int) string {
	if len(s) <= size {
		return s
	}
	cut := size
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
