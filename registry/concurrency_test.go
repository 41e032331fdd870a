package registry

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrent_LastReleaseDestroysOnce(t *testing.T) {
	for _, emulate := range []bool{false, true} {
		for round := 0; round < 50; round++ {
			// The finalizer is per type, so each round gets its own registry.
			r, _ := newTestRegistry(t, Options{EmulateAtomics: emulate})
			fin := &finalizeCounter{}
			const holders = 16
			ref, err := r.Create(32, TypeTest, "race", fin)
			require.NoError(t, err)
			for i := 1; i < holders; i++ {
				r.Retain(ref)
			}

			var (
				start sync.WaitGroup
				done  sync.WaitGroup
			)
			start.Add(1)
			for i := 0; i < holders; i++ {
				done.Add(1)
				go func(slot Ref) {
					defer done.Done()
					start.Wait()
					assert.NoError(t, r.TryRelease(&slot))
				}(ref)
			}
			start.Done()
			done.Wait()

			require.Equal(t, int64(1), fin.calls(), "emulate=%v round=%d", emulate, round)
			require.Empty(t, r.List())
		}
	}
}

// Each goroutine owns a private set of references to shared objects and
// retains or releases them at random. When all goroutines are done every
// object is released exactly the number of times it was retained.
func TestConcurrent_RandomRetainRelease(t *testing.T) {
	const (
		objects    = 8
		goroutines = 8
		iterations = 2000
	)
	r, _ := newTestRegistry(t, Options{Buckets: 7})

	fins := make([]*finalizeCounter, objects)
	roots := make([]Ref, objects)
	for i := range roots {
		fins[i] = &finalizeCounter{}
		// One type per object gives each its own finalizer.
		ref, err := r.Create(16, Type(100+i), "shared", fins[i])
		require.NoError(t, err)
		roots[i] = ref
	}

	var (
		wg      sync.WaitGroup
		retains atomic.Int64
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed*31))
			held := make([][]Ref, objects)
			for i := 0; i < iterations; i++ {
				k := rng.IntN(objects)
				if len(held[k]) == 0 || rng.IntN(2) == 0 {
					ref, err := r.TryRetain(roots[k])
					if assert.NoError(t, err) {
						held[k] = append(held[k], ref)
						retains.Add(1)
					}
					continue
				}
				last := len(held[k]) - 1
				assert.NoError(t, r.TryRelease(&held[k][last]))
				held[k] = held[k][:last]
			}
			for k := range held {
				for j := range held[k] {
					assert.NoError(t, r.TryRelease(&held[k][j]))
				}
			}
		}(uint64(g + 1))
	}
	wg.Wait()

	require.Positive(t, retains.Load())
	for i := range roots {
		require.Equal(t, int32(1), countOf(t, r, roots[i]), "object %d", i)
		require.Zero(t, fins[i].calls())
	}
	for i := range roots {
		r.Release(&roots[i])
		require.Equal(t, int64(1), fins[i].calls(), "object %d", i)
	}
	require.Empty(t, r.List())
}

func TestConcurrent_CreateReleaseChurn(t *testing.T) {
	r, _ := newTestRegistry(t, Options{Buckets: 3, RelationshipSlots: 2})
	fin := &finalizeCounter{}

	const (
		goroutines = 8
		perG       = 500
	)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var prev Ref
			for i := 0; i < perG; i++ {
				ref, err := r.Create(8, TypeParticipant, "p", fin)
				if !assert.NoError(t, err) {
					return
				}
				if !prev.IsNil() {
					_ = r.AddRelationship(ref, prev)
					r.Release(&prev)
				}
				_ = r.List()
				prev = ref
			}
			r.Release(&prev)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(goroutines*perG), fin.calls())
	require.Empty(t, r.List())
	st := r.Stats()
	require.Zero(t, st.BucketsInUse)
	require.Equal(t, st.Created, st.Destroyed)
}
