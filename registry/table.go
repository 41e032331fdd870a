package registry

import (
	"sort"
	"sync"
	"sync/atomic"
)

// bucket holds the headers whose payload address maps to one table slot.
type bucket struct {
	mu      sync.RWMutex
	head    *header
	n       int
	retired bool // unlinked from the table; inserts must retry
}

// table is the hash index of live headers.
type table struct {
	// mu serialises creating and retiring bucket heads only.
	mu    sync.Mutex
	slots []atomic.Pointer[bucket]
}

func newTable(size int) *table {
	return &table{slots: make([]atomic.Pointer[bucket], size)}
}

func (t *table) size() int { return len(t.slots) }

func (t *table) index(addr uintptr) int {
	return int(addr % uintptr(len(t.slots)))
}

// insert links h into its bucket, creating the bucket on first use.
func (t *table) insert(h *header) {
	i := t.index(h.addr)
	h.bucket = i
	for {
		b := t.slots[i].Load()
		if b == nil {
			t.mu.Lock()
			if b = t.slots[i].Load(); b == nil {
				b = &bucket{}
				t.slots[i].Store(b)
			}
			t.mu.Unlock()
		}

		b.mu.Lock()
		if b.retired {
			// Lost a race with retire; the slot now holds nil or a new bucket.
			b.mu.Unlock()
			continue
		}
		h.prev = nil
		h.next = b.head
		if b.head != nil {
			b.head.prev = h
		}
		b.head = h
		b.n++
		h.linked = true
		b.mu.Unlock()
		return
	}
}

// find runs fn on the header registered for addr while holding the bucket's
// read lock. It returns ErrUnknownRef when addr is not registered and
// ErrDeadRef when its header is no longer alive. fn's error is returned as is.
func (t *table) find(addr uintptr, fn func(h *header) error) error {
	i := t.index(addr)
	b := t.slots[i].Load()
	if b == nil {
		return ErrUnknownRef
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for h := b.head; h != nil; h = h.next {
		if h.addr != addr {
			continue
		}
		if h.bucket != i || !h.isAlive() {
			return ErrDeadRef
		}
		if fn == nil {
			return nil
		}
		return fn(h)
	}
	return ErrUnknownRef
}

// remove unlinks h from its bucket and retires the bucket if it became empty.
// Removing an already unlinked header is a no-op.
func (t *table) remove(h *header) {
	b := t.slots[h.bucket].Load()
	if b == nil {
		return
	}

	b.mu.Lock()
	if !h.linked {
		b.mu.Unlock()
		return
	}
	b.unlinkLocked(h)
	empty := b.n == 0
	b.mu.Unlock()

	if empty {
		t.retire(h.bucket, b)
	}
}

func (b *bucket) unlinkLocked(h *header) {
	if h.prev != nil {
		h.prev.next = h.next
	} else {
		b.head = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	}
	h.prev, h.next = nil, nil
	h.linked = false
	b.n--
}

// retire removes b from slot i if it is still empty. The emptiness is checked
// again under both locks since an insert may have slipped in after remove
// dropped the bucket lock.
func (t *table) retire(i int, b *bucket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots[i].Load() != b {
		return
	}
	b.mu.Lock()
	if b.n == 0 && !b.retired {
		b.retired = true
		t.slots[i].Store(nil)
	}
	b.mu.Unlock()
}

// each calls fn for every linked header of bucket i under its read lock.
func (t *table) each(i int, fn func(h *header)) {
	b := t.slots[i].Load()
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for h := b.head; h != nil; h = h.next {
		fn(h)
	}
}

// bucketLen returns the number of headers in bucket i.
func (t *table) bucketLen(i int) int {
	b := t.slots[i].Load()
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

// live returns the headers still linked and alive, ordered by address.
// The headers stay linked.
func (t *table) live() []*header {
	var out []*header
	for i := range t.slots {
		t.each(i, func(h *header) {
			if h.isAlive() {
				out = append(out, h)
			}
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].addr < out[j].addr })
	return out
}

// drain unlinks every header, retires every bucket and returns the headers
// that were still linked, ordered by address.
func (t *table) drain() []*header {
	var out []*header
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		b := t.slots[i].Load()
		if b == nil {
			continue
		}
		b.mu.Lock()
		for h := b.head; h != nil; {
			next := h.next
			h.prev, h.next = nil, nil
			h.linked = false
			out = append(out, h)
			h = next
		}
		b.head = nil
		b.n = 0
		b.retired = true
		t.slots[i].Store(nil)
		b.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].addr < out[j].addr })
	return out
}
