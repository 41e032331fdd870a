package registry

import (
	"errors"
	"sync"
)

// Releaser releases one slot when closed. It is the counterpart of a
// deferred release:
//
//	ch := r.Retain(channel)
//	defer r.AutoRelease(&ch).Close()
type Releaser struct {
	r    *Registry
	slot *Ref
	site CallSite
	once sync.Once
	err  error
}

// AutoRelease returns a Releaser for slot. The call site is recorded when
// Options.TrackCallers is set, and reported if the release turns out to be
// a misuse.
func (r *Registry) AutoRelease(slot *Ref) *Releaser {
	return &Releaser{r: r, slot: slot, site: r.caller(1)}
}

// Site returns where the Releaser was created.
func (rl *Releaser) Site() CallSite { return rl.site }

// Close releases the slot if it still holds a reference. A slot emptied in
// the meantime (by Release or Replace with a nil Ref) is left alone. Close
// is idempotent and returns the error of the first call.
func (rl *Releaser) Close() error {
	rl.once.Do(func() {
		if rl.slot == nil || rl.slot.IsNil() {
			return
		}
		var ref Ref
		ref, rl.err = rl.r.release(rl.slot, rl.site)
		if rl.err != nil {
			rl.r.misuse("auto-release", ref, rl.site, rl.err)
		}
	})
	return rl.err
}

// Scope collects slots and releases them together, last added first.
//
//	s := r.NewScope()
//	defer s.Close()
//	dev := s.Add(&device)
type Scope struct {
	r  *Registry
	mu sync.Mutex
	rs []*Releaser
}

// NewScope returns an empty Scope.
func (r *Registry) NewScope() *Scope {
	return &Scope{r: r}
}

// Add registers slot for release on Close and returns it.
func (s *Scope) Add(slot *Ref) *Ref {
	rl := &Releaser{r: s.r, slot: slot, site: s.r.caller(1)}
	s.mu.Lock()
	s.rs = append(s.rs, rl)
	s.mu.Unlock()
	return slot
}

// Len returns the number of slots registered and not yet closed.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rs)
}

// Close releases every registered slot in reverse order and joins the
// errors. The Scope can be reused afterwards.
func (s *Scope) Close() error {
	s.mu.Lock()
	rs := s.rs
	s.rs = nil
	s.mu.Unlock()

	var errs []error
	for i := len(rs) - 1; i >= 0; i-- {
		if err := rs[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
