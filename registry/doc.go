// Package registry implements a process-wide registry of reference counted
// objects.
//
// # Overview
//
// Long lived domain objects (devices, lines, channels, line-devices, events,
// conference participants) are shared between many goroutines: a monitor, one
// session per connection, a scheduler and PBX callbacks. Instead of locking
// each object for its whole lifetime, every shared object carries a manual
// reference count. A holder retains a Ref before using it and releases it
// when done; the object is finalized exactly once, by whichever goroutine
// drops the count to zero.
//
// # Objects
//
// Create allocates a payload of the requested size (8-byte aligned, zeroed)
// behind an accounting header holding the type, a short diagnostic
// identifier, the count and an alive marker. The returned Ref starts with a
// count of 1, owned by the creator.
//
//	r := registry.New(registry.Options{Logger: slog.Default()})
//	if err := r.Init(); err != nil {
//	    return err
//	}
//	dev, err := r.Create(256, registry.TypeDevice, "SEP001122334455", registry.FinalizerFunc(closeDevice))
//	if err != nil {
//	    return err
//	}
//	defer r.Release(&dev)
//
// # Ownership rules
//
//   - Create returns a Ref retained once for the caller.
//   - Functions returning a Ref return it retained.
//   - Functions receiving a Ref borrow it; the caller keeps ownership.
//   - Release clears the caller's slot; the old value must not be used again.
//   - Payload memory is never freed by hand; the last Release does it.
//
// Replace swaps the Ref held in a slot, retaining the new value before
// releasing the old one. AutoRelease and Scope release slots when a function
// returns.
//
// # Table
//
// Live headers are kept in a fixed number of buckets chosen by
// payload address mod table size. Buckets are created on first insert and
// retired once empty. A table-wide mutex only guards swapping bucket heads;
// lookups and count updates take the bucket's read lock, so goroutines
// working on unrelated objects do not contend.
//
// A Ref is only honoured if its header is found in the expected bucket and
// still carries the alive marker. Anything else is a misuse: it is logged
// with the caller's location and the operation degrades to a no-op returning
// the zero Ref, or panics when Options.Strict is set.
//
// # Lifecycle
//
// A Registry moves through StateStopped → StateRunning (Init) →
// StateStopped → StateDestroyed (Shutdown). Objects can only be created
// while running. Shutdown yields once to let in-flight holders finish, then
// finalizes every object still alive and logs each one as a leak.
//
// # Diagnostics
//
// With Options.Audit or Options.AuditPath set, every transition is appended
// to an audit log (see internal/audit for the line format). With
// Options.RelationshipSlots > 0, objects can record weak links to other
// objects through AddRelationship, and Report renders the resulting
// ownership tree. List and Stats expose the table contents and fill factor
// for operator listings.
package registry
