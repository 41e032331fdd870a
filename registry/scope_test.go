package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAutoRelease(t *testing.T) {
	r, _ := newTestRegistry(t, Options{TrackCallers: true})
	fin := &finalizeCounter{}
	dev := mustCreate(t, r, TypeDevice, "SEP3", fin)

	func() {
		held := r.Retain(dev)
		rl := r.AutoRelease(&held)
		defer rl.Close()
		require.Equal(t, "scope_test.go", rl.Site().File)
		require.Equal(t, int32(2), countOf(t, r, dev))
	}()
	require.Equal(t, int32(1), countOf(t, r, dev))

	rl := r.AutoRelease(&dev)
	require.NoError(t, rl.Close())
	require.NoError(t, rl.Close(), "second close is a no-op")
	require.True(t, dev.IsNil())
	require.Equal(t, int64(1), fin.calls())
}

func TestAutoRelease_SlotClearedFirst(t *testing.T) {
	r, logs := newTestRegistry(t, Options{})
	ln := mustCreate(t, r, TypeLine, "200", nil)

	rl := r.AutoRelease(&ln)
	r.Release(&ln)
	require.NoError(t, rl.Close())
	require.Zero(t, logs.count("invalid reference"))

	require.NoError(t, r.AutoRelease(nil).Close())
}

func TestAutoRelease_StaleCopyIsMisuse(t *testing.T) {
	r, logs := newTestRegistry(t, Options{})
	ch := mustCreate(t, r, TypeChannel, "c", nil)
	stale := ch
	r.Release(&ch)

	err := r.AutoRelease(&stale).Close()
	require.ErrorIs(t, err, ErrDeadRef)
	require.Equal(t, 1, logs.count("auto-release"))
}

func TestScope(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})

	var order []string
	fin := FinalizerFunc(func(p []byte) { order = append(order, string(p[:1])) })

	a, err := r.Create(1, TypeConference, "a", fin)
	require.NoError(t, err)
	b, err := r.Create(1, TypeConference, "b", fin)
	require.NoError(t, err)
	pa, _ := r.Payload(a)
	pb, _ := r.Payload(b)
	pa[0], pb[0] = 'a', 'b'

	s := r.NewScope()
	require.Same(t, &a, s.Add(&a))
	s.Add(&b)
	require.Equal(t, 2, s.Len())

	require.NoError(t, s.Close())
	require.Equal(t, []string{"b", "a"}, order, "released last added first")
	require.Zero(t, s.Len())
	require.True(t, a.IsNil())
	require.True(t, b.IsNil())

	// Reusable after Close.
	c := mustCreate(t, r, TypeConference, "c", nil)
	s.Add(&c)
	require.NoError(t, s.Close())
	require.Empty(t, r.List())
}

func TestScope_JoinsErrors(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	a := mustCreate(t, r, TypeUser, "a", nil)
	b := mustCreate(t, r, TypeUser, "b", nil)
	staleA, staleB := a, b
	r.Release(&a)
	r.Release(&b)

	s := r.NewScope()
	s.Add(&staleA)
	s.Add(&staleB)
	err := s.Close()
	require.ErrorIs(t, err, ErrDeadRef)
}
