package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecord_Format(t *testing.T) {
	r := Record{
		Addr: 0xc000012340, Delta: 1, ThreadID: 4711,
		File: "device.go", Line: 88, Func: "main.registerDevice",
		Count: 2, Type: "device", Identifier: "SEP00112233",
	}
	require.Equal(t,
		"0xc000012340 | +1 | 4711 | device.go | 88 | main.registerDevice | 2 | device | SEP00112233",
		r.Format())
}

func TestRecord_FormatWithoutCallSite(t *testing.T) {
	r := Record{Addr: 0x10, Delta: -1, Count: 0, Type: "line", Identifier: "100"}
	require.Equal(t, "0x10 | -1 | 0 | - | 0 | - | 0 | line | 100", r.Format())
}

func TestParse_Inverse(t *testing.T) {
	tests := []Record{
		{Addr: 0xdeadbeef, Delta: 1, ThreadID: 1, File: "a.go", Line: 1, Func: "a.F", Count: 1, Type: "channel", Identifier: "SCCP/100-00000001"},
		{Addr: 0x1, Delta: -1, ThreadID: 99, Count: 0, Type: "event"},
		{Addr: 0x2, Delta: 1, Count: 5, Type: "user", Identifier: "with spaces inside"},
	}
	for _, want := range tests {
		got, err := Parse(want.Format())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, line := range []string{
		"",
		"not a record",
		"0xZZ | +1 | 1 | a.go | 1 | f | 1 | device | x",
		"0x1 | one | 1 | a.go | 1 | f | 1 | device | x",
		"0x1 | +1 | 1 | a.go | 1 | f | many | device | x",
	} {
		_, err := Parse(line)
		require.ErrorIs(t, err, ErrMalformed, "line %q", line)
	}
}

func TestRecord_Transitions(t *testing.T) {
	require.True(t, Record{Delta: 1, Count: 1}.Created())
	require.False(t, Record{Delta: 1, Count: 2}.Created())
	require.True(t, Record{Delta: -1, Count: 0}.Destroyed())
	require.False(t, Record{Delta: -1, Count: 1}.Destroyed())
}

func TestParse_StrippedEmptyIdentifier(t *testing.T) {
	r, err := Parse("0x1 | -1 | 3 | a.go | 9 | a.F | 0 | event |")
	require.NoError(t, err)
	require.Equal(t, "", r.Identifier)
	require.Equal(t, "event", r.Type)
}
