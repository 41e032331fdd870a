package registry

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Tombstone remembers an object after its destruction so that a later use
// of a stale Ref can be attributed to it.
type Tombstone struct {
	Addr       uintptr
	Type       Type
	Identifier string
	Created    time.Time
	Destroyed  time.Time
	Forced     bool // reclaimed by Shutdown rather than released
}

// graveyard is a bounded, expiring set of tombstones keyed by payload address.
type graveyard struct {
	cache *lru.Cache[uintptr, Tombstone]
	ttl   time.Duration
	now   func() time.Time
}

// newGraveyard returns nil when size <= 0; a nil graveyard remembers nothing.
func newGraveyard(size int, ttl time.Duration) (*graveyard, error) {
	if size <= 0 {
		return nil, nil
	}
	cache, err := lru.New[uintptr, Tombstone](size)
	if err != nil {
		return nil, err
	}
	return &graveyard{cache: cache, ttl: ttl, now: time.Now}, nil
}

func (g *graveyard) bury(h *header, forced bool) {
	if g == nil {
		return
	}
	g.cache.Add(h.addr, Tombstone{
		Addr:       h.addr,
		Type:       h.typ,
		Identifier: h.ident(),
		Created:    h.created,
		Destroyed:  g.now(),
		Forced:     forced,
	})
}

func (g *graveyard) lookup(addr uintptr) (Tombstone, bool) {
	if g == nil {
		return Tombstone{}, false
	}
	ts, ok := g.cache.Get(addr)
	if !ok {
		return Tombstone{}, false
	}
	if g.now().Sub(ts.Destroyed) > g.ttl {
		g.cache.Remove(addr)
		return Tombstone{}, false
	}
	return ts, true
}

// forget drops the tombstone at addr, used when a new object reuses it.
func (g *graveyard) forget(addr uintptr) {
	if g == nil {
		return
	}
	g.cache.Remove(addr)
}

func (g *graveyard) len() int {
	if g == nil {
		return 0
	}
	return g.cache.Len()
}
