package registry

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joshuapare/refcount/internal/atomicx"
)

const (
	// aliveMarker is written at creation ("LIVE").
	aliveMarker uint32 = 0x4C495645
	// deadMarker replaces it once destruction starts.
	deadMarker uint32 = 0xDEADDEAD
)

// header is the accounting record kept for every live object.
type header struct {
	typ     Type
	addr    uintptr
	bucket  int
	created time.Time

	alive atomic.Uint32
	count atomicx.Counter

	// lock is the per-object lock backing emulated atomics; nil otherwise.
	lock *sync.Mutex

	// auditMu orders count transitions with their audit records while an
	// audit sink is configured.
	auditMu sync.Mutex

	idMu       sync.Mutex
	identifier string

	// slots hold payload addresses of related objects; 0 is empty.
	slots []atomicx.Pointer

	// payload views words; words keeps the 8-byte alignment.
	words   []uint64
	payload []byte

	// Bucket list links, guarded by the owning bucket's lock.
	prev, next *header
	linked     bool
}

// newHeader allocates a header and its payload. size must be in
// [0, MaxObjectSize].
func newHeader(size int, typ Type, identifier string, opts *Options) *header {
	n := (size + 7) / 8
	if n == 0 {
		// Zero sized payloads still need a unique address.
		n = 1
	}
	words := make([]uint64, n)
	base := unsafe.Pointer(&words[0])

	h := &header{
		typ:        typ,
		addr:       uintptr(base),
		created:    time.Now(),
		identifier: identifier,
		words:      words,
		payload:    unsafe.Slice((*byte)(base), n*8)[:size:size],
	}
	if opts.EmulateAtomics {
		h.lock = &sync.Mutex{}
		h.count = atomicx.NewLockedInt32(h.lock)
	} else {
		h.count = &atomicx.Int32{}
	}
	h.count.Add(1)

	if opts.RelationshipSlots > 0 {
		h.slots = make([]atomicx.Pointer, opts.RelationshipSlots)
		for i := range h.slots {
			if h.lock != nil {
				h.slots[i] = atomicx.NewLockedWord(h.lock)
			} else {
				h.slots[i] = &atomicx.Word{}
			}
		}
	}
	h.alive.Store(aliveMarker)
	return h
}

func (h *header) ref() Ref {
	return Ref{p: unsafe.Pointer(&h.words[0])}
}

func (h *header) isAlive() bool {
	return h.alive.Load() == aliveMarker
}

func (h *header) ident() string {
	h.idMu.Lock()
	defer h.idMu.Unlock()
	return h.identifier
}

func (h *header) setIdent(s string) {
	h.idMu.Lock()
	h.identifier = s
	h.idMu.Unlock()
}

// retain increments the count unless it already reached zero.
// It returns the new count, or 0 when the object is dying.
func (h *header) retain() int32 {
	for {
		cur := h.count.Load()
		if cur <= 0 {
			return 0
		}
		if h.count.CompareAndSwap(cur, cur+1) == cur {
			return cur + 1
		}
	}
}

// release decrements the count. ok is false if it was already zero.
func (h *header) release() (count int32, ok bool) {
	for {
		cur := h.count.Load()
		if cur <= 0 {
			return cur, false
		}
		if h.count.CompareAndSwap(cur, cur-1) == cur {
			return cur - 1, true
		}
	}
}

// children returns the non-empty relationship slots.
func (h *header) children() []uintptr {
	var out []uintptr
	for _, s := range h.slots {
		if v := s.Load(); v != 0 {
			out = append(out, v)
		}
	}
	return out
}

func (h *header) entry() Entry {
	return Entry{
		Bucket:        h.bucket,
		Type:          h.typ,
		Identifier:    h.ident(),
		Ref:           h.ref(),
		Count:         h.count.Load(),
		Alive:         h.isAlive(),
		Created:       h.created,
		Relationships: len(h.children()),
	}
}
