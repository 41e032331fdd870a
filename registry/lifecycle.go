package registry

import (
	"fmt"
	"runtime"
	"time"

	"github.com/joshuapare/refcount/internal/audit"
)

// State is the lifecycle state of a Registry.
type State int32

const (
	// StateStopped is the state before Init and while Shutdown drains.
	StateStopped State = iota
	// StateRunning accepts every operation.
	StateRunning
	// StateDestroyed is terminal; every operation is rejected.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// State returns the current lifecycle state.
func (r *Registry) State() State { return State(r.state.Load()) }

// IsRunning reports whether objects can be created.
func (r *Registry) IsRunning() bool { return r.State() == StateRunning }

// Init allocates the table, resets the counters, opens the audit file if
// Options.AuditPath is set, and moves the registry to StateRunning.
func (r *Registry) Init() error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	switch r.State() {
	case StateRunning:
		return ErrRunning
	case StateDestroyed:
		return ErrDestroyed
	}

	graves, err := newGraveyard(r.opts.Tombstones, r.opts.TombstoneTTL)
	if err != nil {
		return fmt.Errorf("registry: tombstones: %w", err)
	}
	if r.opts.AuditPath != "" {
		w, err := audit.Open(r.opts.AuditPath, audit.WriterOptions{
			MaxSize:    r.opts.AuditMaxSize,
			MaxBackups: r.opts.AuditMaxBackups,
		})
		if err != nil {
			return err
		}
		r.auditFile.Store(w)
	}

	r.graves = graves
	r.created.Store(0)
	r.destroyed.Store(0)
	r.leaked.Store(0)
	r.misuses.Store(0)
	r.tbl.Store(newTable(r.opts.Buckets))
	r.state.Store(int32(StateRunning))

	r.log.Info("registry: running",
		"buckets", r.opts.Buckets,
		"relationship_slots", r.opts.RelationshipSlots,
		"emulated_atomics", r.opts.EmulateAtomics,
		"audit", r.opts.AuditPath)
	return nil
}

// ShutdownReport describes what Shutdown had to reclaim.
type ShutdownReport struct {
	// Leaked lists the objects that were still alive, as they were just
	// before being finalized.
	Leaked   []Entry
	Duration time.Duration
}

// Shutdown stops the registry, reclaims every object still alive and moves
// to StateDestroyed.
//
// New creates and retains are rejected from the moment Shutdown starts;
// releases are still honoured, including those made by finalizers during the
// leak sweep. Shutdown yields once so goroutines already inside an operation
// can finish, then finalizes each remaining object and logs it as a leak. A
// release of an object the sweep already reclaimed is ignored. Calling
// Shutdown again is a no-op.
func (r *Registry) Shutdown() ShutdownReport {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	start := time.Now()

	r.opMu.Lock()
	if r.State() == StateDestroyed {
		r.opMu.Unlock()
		return ShutdownReport{}
	}
	r.state.Store(int32(StateStopped))
	r.opMu.Unlock()

	r.log.Info("registry: stopping", "live", r.created.Load()-r.destroyed.Load())
	runtime.Gosched()

	var rep ShutdownReport
	if tbl := r.tbl.Load(); tbl != nil {
		r.sweptMu.Lock()
		r.swept = make(map[uintptr]struct{})
		r.sweptMu.Unlock()

		// Headers stay linked until their own turn, so a finalizer releasing
		// an object it owns goes through the regular release path. Objects
		// released to zero that way are no longer alive and are skipped.
		for hs := tbl.live(); len(hs) > 0; hs = tbl.live() {
			for _, h := range hs {
				if e, ok := r.reclaim(h); ok {
					rep.Leaked = append(rep.Leaked, e)
				}
			}
		}
		tbl.drain()

		r.sweptMu.Lock()
		r.swept = nil
		r.sweptMu.Unlock()
	}

	if w := r.auditFile.Swap(nil); w != nil {
		if err := w.Close(); err != nil {
			r.log.Warn("registry: closing audit file", "path", w.Path(), "err", err)
		}
	}

	r.state.Store(int32(StateDestroyed))
	rep.Duration = time.Since(start)
	r.log.Info("registry: destroyed",
		"leaked", len(rep.Leaked),
		"created", r.created.Load(),
		"destroyed", r.destroyed.Load())
	return rep
}

// reclaim force-destroys a leaked header. It reports false when a release
// won the race and finalized h normally.
func (r *Registry) reclaim(h *header) (Entry, bool) {
	unlock := r.lockAudit(h)
	e := h.entry()
	if !h.alive.CompareAndSwap(aliveMarker, deadMarker) {
		unlock()
		return Entry{}, false
	}
	r.sweptMu.Lock()
	r.swept[h.addr] = struct{}{}
	r.sweptMu.Unlock()
	r.trace(h, -int(e.Count), 0, CallSite{})
	unlock()

	r.finalize(h, true)
	r.leaked.Add(1)
	r.log.Warn("registry: reclaimed leaked object",
		"type", e.Type.String(),
		"identifier", e.Identifier,
		"ref", e.Ref.String(),
		"count", e.Count,
		"age", time.Since(e.Created).Round(time.Millisecond))
	return e, true
}
