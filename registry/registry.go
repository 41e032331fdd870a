package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshuapare/refcount/internal/audit"
	"github.com/joshuapare/refcount/internal/callsite"
	"github.com/joshuapare/refcount/internal/ident"
)

// Registry tracks reference counted objects. All methods are safe for
// concurrent use.
type Registry struct {
	opts Options
	log  *slog.Logger

	// lifeMu serialises Init and Shutdown.
	lifeMu sync.Mutex
	// opMu is held shared by Create across its state check and insert, and
	// exclusively by Shutdown while it leaves StateRunning, so no object can
	// be inserted after Shutdown has started draining.
	opMu  sync.RWMutex
	state atomic.Int32

	tbl    atomic.Pointer[table]
	fins   [numTypes]atomic.Pointer[finalizerSlot]
	graves *graveyard

	auditMu   sync.Mutex // serialises writes to opts.Audit
	auditFile atomic.Pointer[audit.Writer]

	// swept holds the objects Shutdown reclaimed; finalizers of other leaked
	// objects may still release them during the sweep.
	sweptMu sync.Mutex
	swept   map[uintptr]struct{}

	created   atomic.Int64
	destroyed atomic.Int64
	leaked    atomic.Int64
	misuses   atomic.Int64
}

type finalizerSlot struct {
	f Finalizer
}

// New returns a stopped registry. Call Init before creating objects.
func New(opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{opts: opts, log: opts.Logger}
}

// Options returns the effective options, defaults applied.
func (r *Registry) Options() Options { return r.opts }

// Create allocates a zeroed payload of size bytes and registers it with a
// count of 1 owned by the caller.
//
// fin becomes the finalizer for typ if typ has none yet; finalizers passed
// for a type that already has one are ignored. identifier is sanitised and
// cut to Options.IdentifierSize bytes.
func (r *Registry) Create(size int, typ Type, identifier string, fin Finalizer) (Ref, error) {
	site := r.caller(1)

	r.opMu.RLock()
	defer r.opMu.RUnlock()

	if st := r.State(); st != StateRunning {
		r.log.Error("registry: create rejected",
			"type", typ.String(), "identifier", identifier, "state", st.String(), "site", site.String())
		return Ref{}, ErrNotRunning
	}
	if size < 0 {
		return Ref{}, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	if size > MaxObjectSize {
		r.log.Error("registry: allocation refused",
			"type", typ.String(), "identifier", identifier, "size", size)
		return Ref{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrOutOfMemory, size, MaxObjectSize)
	}

	r.registerFinalizer(typ, fin)

	h := newHeader(size, typ, ident.Clean(identifier, r.opts.IdentifierSize), &r.opts)
	r.graves.forget(h.addr)
	// The create record goes out before the object is reachable, so it
	// always precedes the object's other records.
	r.trace(h, +1, 1, site)
	r.tbl.Load().insert(h)
	r.created.Add(1)
	return h.ref(), nil
}

func (r *Registry) registerFinalizer(typ Type, fin Finalizer) {
	if fin == nil || r.fins[typ].Load() != nil {
		return
	}
	r.fins[typ].CompareAndSwap(nil, &finalizerSlot{f: fin})
}

// Retain adds a reference to ref and returns it. On misuse (nil, unknown
// or dying ref, registry not running) it logs and returns the zero Ref, or
// panics in strict mode.
func (r *Registry) Retain(ref Ref) Ref {
	site := r.caller(1)
	out, err := r.retain(ref, site)
	if err != nil {
		r.misuse("retain", ref, site, err)
		return Ref{}
	}
	return out
}

// TryRetain is Retain reporting failures as errors instead of logging them.
func (r *Registry) TryRetain(ref Ref) (Ref, error) {
	return r.retain(ref, r.caller(1))
}

func (r *Registry) retain(ref Ref, site CallSite) (Ref, error) {
	if ref.IsNil() {
		return Ref{}, ErrNilRef
	}
	if r.State() != StateRunning {
		return Ref{}, ErrNotRunning
	}

	err := r.tbl.Load().find(ref.Addr(), func(x *header) error {
		defer r.lockAudit(x)()
		count := x.retain()
		if count == 0 {
			return ErrDeadRef
		}
		r.trace(x, +1, count, site)
		return nil
	})
	if err != nil {
		return Ref{}, r.classify(ref, err)
	}
	return ref, nil
}

// Release drops the reference held in *slot and clears the slot. The
// releasing call that brings the count to zero finalizes the object. It
// always returns the zero Ref, so callers may write
//
//	dev = r.Release(&dev)
//
// Misuse is handled as in Retain.
func (r *Registry) Release(slot *Ref) Ref {
	site := r.caller(1)
	if ref, err := r.release(slot, site); err != nil {
		r.misuse("release", ref, site, err)
	}
	return Ref{}
}

// TryRelease is Release reporting failures as errors instead of logging them.
func (r *Registry) TryRelease(slot *Ref) error {
	_, err := r.release(slot, r.caller(1))
	return err
}

func (r *Registry) release(slot *Ref, site CallSite) (Ref, error) {
	if slot == nil {
		return Ref{}, ErrNilRef
	}
	ref := *slot
	*slot = Ref{}
	return ref, r.releaseRef(ref, site)
}

func (r *Registry) releaseRef(ref Ref, site CallSite) error {
	if ref.IsNil() {
		return ErrNilRef
	}
	// Releases stay legal while stopped so holders can drain during Shutdown.
	if r.State() == StateDestroyed {
		return ErrNotRunning
	}
	tbl := r.tbl.Load()
	if tbl == nil {
		return ErrNotRunning
	}

	var (
		h     *header
		count int32
	)
	err := tbl.find(ref.Addr(), func(x *header) error {
		defer r.lockAudit(x)()
		c, ok := x.release()
		if !ok {
			return ErrOverRelease
		}
		h, count = x, c
		r.trace(x, -1, c, site)
		return nil
	})
	if err != nil {
		if r.sweptDuringShutdown(ref.Addr(), err) {
			return nil
		}
		return r.classify(ref, err)
	}

	if count == 0 {
		r.destroy(h)
	}
	return nil
}

// Replace makes *slot hold next: next is retained first, then the previous
// value is released, then next is stored. A nil next just releases the slot.
func (r *Registry) Replace(slot *Ref, next Ref) {
	site := r.caller(1)
	if slot == nil {
		r.misuse("replace", next, site, ErrNilRef)
		return
	}
	if *slot == next {
		return
	}

	if !next.IsNil() {
		retained, err := r.retain(next, site)
		if err != nil {
			r.misuse("replace", next, site, err)
		}
		next = retained
	}
	if old := *slot; !old.IsNil() {
		if err := r.releaseRef(old, site); err != nil {
			r.misuse("replace", old, site, err)
		}
	}
	*slot = next
}

// UpdateIdentifier changes the diagnostic identifier of ref. The count and
// alive state are untouched.
func (r *Registry) UpdateIdentifier(ref Ref, identifier string) error {
	clean := ident.Clean(identifier, r.opts.IdentifierSize)
	return r.lookup(ref, func(h *header) error {
		h.setIdent(clean)
		return nil
	})
}

// Payload returns the payload of a live object. The slice stays valid for
// as long as the caller holds a reference.
func (r *Registry) Payload(ref Ref) ([]byte, error) {
	var p []byte
	err := r.lookup(ref, func(h *header) error {
		p = h.payload
		return nil
	})
	return p, err
}

// Info returns the listing entry of a live object.
func (r *Registry) Info(ref Ref) (Entry, error) {
	var e Entry
	err := r.lookup(ref, func(h *header) error {
		e = h.entry()
		return nil
	})
	return e, err
}

// Tombstone reports what was known about ref's object when it was destroyed.
func (r *Registry) Tombstone(ref Ref) (Tombstone, bool) {
	return r.graves.lookup(ref.Addr())
}

// lookup validates ref and runs fn on its header under the bucket read lock.
func (r *Registry) lookup(ref Ref, fn func(h *header) error) error {
	if ref.IsNil() {
		return ErrNilRef
	}
	tbl := r.tbl.Load()
	if tbl == nil || r.State() == StateDestroyed {
		return ErrNotRunning
	}
	return r.classify(ref, tbl.find(ref.Addr(), fn))
}

// classify turns "not registered" into ErrDeadRef when the graveyard knows
// the object was destroyed.
func (r *Registry) classify(ref Ref, err error) error {
	if errors.Is(err, ErrUnknownRef) {
		if _, ok := r.graves.lookup(ref.Addr()); ok {
			return ErrDeadRef
		}
	}
	return err
}

// destroy finalizes h after its last release. Only the caller that flips the
// alive marker proceeds; Shutdown's reclaim flips the same marker, so h is
// finalized once.
func (r *Registry) destroy(h *header) bool {
	if !h.alive.CompareAndSwap(aliveMarker, deadMarker) {
		return false
	}
	r.finalize(h, false)
	return true
}

// finalize unlinks h, runs its type's finalizer and scrubs the payload. The
// caller must have flipped the alive marker.
func (r *Registry) finalize(h *header, forced bool) {
	if tbl := r.tbl.Load(); tbl != nil {
		tbl.remove(h)
	}
	if fs := r.fins[h.typ].Load(); fs != nil {
		fs.f.Finalize(h.payload)
	}
	clear(h.payload)
	r.graves.bury(h, forced)
	r.destroyed.Add(1)
}

func (r *Registry) misuse(op string, ref Ref, site CallSite, err error) {
	r.misuses.Add(1)

	attrs := []any{"op", op, "ref", ref.String(), "err", err.Error()}
	if !site.IsZero() {
		attrs = append(attrs, "site", site.String())
	}
	if !ref.IsNil() {
		if ts, ok := r.graves.lookup(ref.Addr()); ok {
			attrs = append(attrs,
				"type", ts.Type.String(), "identifier", ts.Identifier, "destroyed_at", ts.Destroyed)
		}
	}
	r.log.Error("registry: invalid reference", attrs...)

	if r.opts.Strict {
		panic(&MisuseError{Op: op, Ref: ref, Site: site, Err: err})
	}
	if r.opts.MisuseDelay > 0 {
		time.Sleep(r.opts.MisuseDelay)
	}
}

// sweptDuringShutdown reports whether a failed lookup of addr hit an object
// the shutdown sweep already reclaimed.
func (r *Registry) sweptDuringShutdown(addr uintptr, err error) bool {
	if !errors.Is(err, ErrUnknownRef) && !errors.Is(err, ErrDeadRef) {
		return false
	}
	r.sweptMu.Lock()
	defer r.sweptMu.Unlock()
	_, ok := r.swept[addr]
	return ok
}

// lockAudit locks h's audit order when an audit sink is configured and
// returns the matching unlock.
func (r *Registry) lockAudit(h *header) func() {
	if r.opts.Audit == nil && r.auditFile.Load() == nil {
		return func() {}
	}
	h.auditMu.Lock()
	return h.auditMu.Unlock
}

// trace emits one transition to the audit sinks and the debug log.
func (r *Registry) trace(h *header, delta int, count int32, site CallSite) {
	w := r.auditFile.Load()
	debug := r.log.Enabled(context.Background(), slog.LevelDebug)
	if r.opts.Audit == nil && w == nil && !debug {
		return
	}

	rec := audit.Record{
		Addr:       h.addr,
		Delta:      delta,
		ThreadID:   callsite.ThreadID(),
		File:       site.File,
		Line:       site.Line,
		Func:       site.Func,
		Count:      count,
		Type:       h.typ.String(),
		Identifier: h.ident(),
	}
	if debug {
		r.log.Debug("registry: transition",
			"ref", h.ref().String(), "delta", delta, "count", count,
			"type", rec.Type, "identifier", rec.Identifier)
	}
	if r.opts.Audit == nil && w == nil {
		return
	}

	line := []byte(rec.Format() + "\n")
	if r.opts.Audit != nil {
		r.auditMu.Lock()
		_, err := r.opts.Audit.Write(line)
		r.auditMu.Unlock()
		if err != nil {
			r.log.Warn("registry: audit write failed", "err", err)
		}
	}
	if w != nil {
		if _, err := w.Write(line); err != nil && !errors.Is(err, audit.ErrClosed) {
			r.log.Warn("registry: audit write failed", "path", w.Path(), "err", err)
		}
	}
}

func (r *Registry) caller(skip int) CallSite {
	if !r.opts.TrackCallers {
		return CallSite{}
	}
	return callsite.Capture(skip + 1)
}
