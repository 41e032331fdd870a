package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGraveyard_BuryLookupExpire(t *testing.T) {
	g, err := newGraveyard(2, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	h := newHeader(8, TypeUser, "bob", &Options{})
	g.bury(h, false)

	ts, ok := g.lookup(h.addr)
	require.True(t, ok)
	require.Equal(t, "bob", ts.Identifier)
	require.Equal(t, TypeUser, ts.Type)
	require.Equal(t, now, ts.Destroyed)

	now = now.Add(2 * time.Minute)
	_, ok = g.lookup(h.addr)
	require.False(t, ok, "expired")
	require.Zero(t, g.len())
}

func TestGraveyard_Bounded(t *testing.T) {
	g, err := newGraveyard(2, time.Hour)
	require.NoError(t, err)

	hs := []*header{
		newHeader(8, TypeTest, "a", &Options{}),
		newHeader(8, TypeTest, "b", &Options{}),
		newHeader(8, TypeTest, "c", &Options{}),
	}
	for _, h := range hs {
		g.bury(h, true)
	}
	require.Equal(t, 2, g.len())
	_, ok := g.lookup(hs[0].addr)
	require.False(t, ok, "oldest evicted")

	g.forget(hs[1].addr)
	_, ok = g.lookup(hs[1].addr)
	require.False(t, ok)
	require.Equal(t, 1, g.len())
}

func TestGraveyard_Disabled(t *testing.T) {
	g, err := newGraveyard(0, time.Hour)
	require.NoError(t, err)
	require.Nil(t, g)

	h := newHeader(8, TypeTest, "x", &Options{})
	g.bury(h, false)
	g.forget(h.addr)
	_, ok := g.lookup(h.addr)
	require.False(t, ok)
	require.Zero(t, g.len())
}
