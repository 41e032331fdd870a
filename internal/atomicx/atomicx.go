// Package atomicx provides the counter and word primitives used by object
// headers.
//
// Every operation returns the value held before the operation, matching the
// fetch-and-op convention of hardware intrinsics:
//
//   - Add(delta) returns the old value (fetch-add)
//   - Load() returns the current value (fetch)
//   - CompareAndSwap(old, new) returns the previous value; the swap happened
//     iff the returned value equals old
//
// Two implementations exist for each width. The native ones wrap sync/atomic.
// The Locked ones perform the same read-modify-write under a caller supplied
// sync.Locker and exist for the emulated mode selected by
// registry.Options.EmulateAtomics.
package atomicx

import (
	"sync"
	"sync/atomic"
)

// Counter is a 32-bit signed counter.
type Counter interface {
	Add(delta int32) int32
	Load() int32
	CompareAndSwap(old, new int32) int32
}

// Pointer is a pointer-sized word.
type Pointer interface {
	Add(delta uintptr) uintptr
	Load() uintptr
	CompareAndSwap(old, new uintptr) uintptr
}

// Int32 is a Counter backed by sync/atomic. The zero value is 0.
type Int32 struct {
	v atomic.Int32
}

func (c *Int32) Add(delta int32) int32 {
	return c.v.Add(delta) - delta
}

func (c *Int32) Load() int32 {
	return c.v.Load()
}

func (c *Int32) CompareAndSwap(old, new int32) int32 {
	for {
		if c.v.CompareAndSwap(old, new) {
			return old
		}
		// A failed swap must report the value that made it fail. When the
		// word changed back to old in between, retry the swap.
		if cur := c.v.Load(); cur != old {
			return cur
		}
	}
}

// Word is a Pointer backed by sync/atomic. The zero value is 0.
type Word struct {
	v atomic.Uintptr
}

func (w *Word) Add(delta uintptr) uintptr {
	return w.v.Add(delta) - delta
}

func (w *Word) Load() uintptr {
	return w.v.Load()
}

func (w *Word) CompareAndSwap(old, new uintptr) uintptr {
	for {
		if w.v.CompareAndSwap(old, new) {
			return old
		}
		if cur := w.v.Load(); cur != old {
			return cur
		}
	}
}

// LockedInt32 is a Counter whose operations run under mu.
type LockedInt32 struct {
	mu sync.Locker
	v  int32
}

// NewLockedInt32 returns a counter guarded by mu. A nil mu gets a private mutex.
func NewLockedInt32(mu sync.Locker) *LockedInt32 {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &LockedInt32{mu: mu}
}

func (c *LockedInt32) Add(delta int32) int32 {
	c.mu.Lock()
	old := c.v
	c.v += delta
	c.mu.Unlock()
	return old
}

func (c *LockedInt32) Load() int32 {
	c.mu.Lock()
	v := c.v
	c.mu.Unlock()
	return v
}

func (c *LockedInt32) CompareAndSwap(old, new int32) int32 {
	c.mu.Lock()
	prev := c.v
	if prev == old {
		c.v = new
	}
	c.mu.Unlock()
	return prev
}

// LockedWord is a Pointer whose operations run under mu.
type LockedWord struct {
	mu sync.Locker
	v  uintptr
}

// NewLockedWord returns a word guarded by mu. A nil mu gets a private mutex.
func NewLockedWord(mu sync.Locker) *LockedWord {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &LockedWord{mu: mu}
}

func (w *LockedWord) Add(delta uintptr) uintptr {
	w.mu.Lock()
	old := w.v
	w.v += delta
	w.mu.Unlock()
	return old
}

func (w *LockedWord) Load() uintptr {
	w.mu.Lock()
	v := w.v
	w.mu.Unlock()
	return v
}

func (w *LockedWord) CompareAndSwap(old, new uintptr) uintptr {
	w.mu.Lock()
	prev := w.v
	if prev == old {
		w.v = new
	}
	w.mu.Unlock()
	return prev
}

var (
	_ Counter = (*Int32)(nil)
	_ Counter = (*LockedInt32)(nil)
	_ Pointer = (*Word)(nil)
	_ Pointer = (*LockedWord)(nil)
)
