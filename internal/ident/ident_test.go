package ident

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		size int
		want string
	}{
		{"plain", "SEP0023", 0, "SEP0023"},
		{"separator", "a|b", 0, "a/b"},
		{"newline", "line\n42", 0, "line42"},
		{"tab and nul", "x\t\x00y", 0, "xy"},
		{"truncated", "abcdefgh", 4, "abcd"},
		{"nfc", "e\u0301", 0, "\u00e9"},
		{"empty", "", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Clean(tt.in, tt.size))
		})
	}
}

func TestClean_DefaultSize(t *testing.T) {
	got := Clean(strings.Repeat("x", 100), 0)
	require.Len(t, got, DefaultSize)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// U+00E9 is two bytes; cutting at 4 must not split the second one.
	got := Truncate("a\u00e9\u00e9", 4)
	assert.Equal(t, "a\u00e9", got)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "", Truncate("\u00e9\u00e9", 1))
	assert.Equal(t, "short", Truncate("short", 10))
}
