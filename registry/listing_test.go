package registry

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_OrderAndContent(t *testing.T) {
	r, _ := newTestRegistry(t, Options{Buckets: 3, RelationshipSlots: 2})
	var refs []Ref
	for i := 0; i < 12; i++ {
		refs = append(refs, mustCreate(t, r, TypeLine, "l", nil))
	}
	require.NoError(t, r.AddRelationship(refs[0], refs[1]))

	list := r.List()
	require.Len(t, list, 12)
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		if prev.Bucket == cur.Bucket {
			require.Less(t, prev.Ref.Addr(), cur.Ref.Addr())
		} else {
			require.Less(t, prev.Bucket, cur.Bucket)
		}
	}
	for _, e := range list {
		assert.Equal(t, int(e.Ref.Addr()%3), e.Bucket)
		assert.True(t, e.Alive)
		assert.Equal(t, int32(1), e.Count)
	}

	bucket := r.ListBucket(refs[0].Addr())
	require.NotEmpty(t, bucket)
	found := false
	for _, e := range bucket {
		assert.Equal(t, int(refs[0].Addr()%3), e.Bucket)
		if e.Ref == refs[0] {
			found = true
			assert.Equal(t, 1, e.Relationships)
		}
	}
	require.True(t, found)
}

func TestStats(t *testing.T) {
	r, _ := newTestRegistry(t, Options{Buckets: 2, OvercrowdThreshold: 1.5})
	for i := 0; i < 4; i++ {
		mustCreate(t, r, TypeEvent, "e", nil)
	}
	gone := mustCreate(t, r, TypeEvent, "gone", nil)
	r.Release(&gone)
	r.Retain(Ref{})

	st := r.Stats()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, 2, st.TableSize)
	assert.Equal(t, 4, st.Entries)
	assert.InDelta(t, 2.0, st.FillFactor, 1e-9)
	assert.True(t, st.Overcrowded)
	assert.GreaterOrEqual(t, st.LargestBucket, 2)
	assert.Equal(t, int64(5), st.Created)
	assert.Equal(t, int64(1), st.Destroyed)
	assert.Equal(t, int64(1), st.Misuses)
	assert.Equal(t, 1, st.Tombstones)
}

func TestWriteListing(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	ref := mustCreate(t, r, TypeDevice, "SEP7", nil)

	var buf bytes.Buffer
	require.NoError(t, WriteListing(&buf, r.List()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "BUCKET"))
	assert.Contains(t, lines[1], "device")
	assert.Contains(t, lines[1], "SEP7")
	assert.Contains(t, lines[1], ref.String())
	assert.Contains(t, lines[1], "true")

	buf.Reset()
	require.NoError(t, WriteStats(&buf, r.Stats()))
	assert.Contains(t, buf.String(), "entries")
	assert.Contains(t, buf.String(), "running")
}
