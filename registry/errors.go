package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning indicates the registry is not in StateRunning.
	ErrNotRunning = errors.New("registry: not running")

	// ErrDestroyed indicates the registry has been shut down for good.
	ErrDestroyed = errors.New("registry: destroyed")

	// ErrRunning indicates Init was called on a running registry.
	ErrRunning = errors.New("registry: already running")

	// ErrBadSize indicates a negative payload size.
	ErrBadSize = errors.New("registry: negative payload size")

	// ErrOutOfMemory indicates the payload could not be allocated.
	ErrOutOfMemory = errors.New("registry: out of memory")

	// ErrNilRef indicates a nil Ref or nil slot.
	ErrNilRef = errors.New("registry: nil reference")

	// ErrUnknownRef indicates a Ref that is not registered (never was, or
	// its object is gone).
	ErrUnknownRef = errors.New("registry: unknown reference")

	// ErrDeadRef indicates a Ref whose object is being destroyed.
	ErrDeadRef = errors.New("registry: dead reference")

	// ErrOverRelease indicates a release of an object whose count is already zero.
	ErrOverRelease = errors.New("registry: count would drop below zero")

	// ErrRelationshipsDisabled indicates relationship tracking is off.
	ErrRelationshipsDisabled = errors.New("registry: relationship tracking disabled")

	// ErrSlotsFull indicates all relationship slots of the parent are used.
	ErrSlotsFull = errors.New("registry: relationship slots full")

	// ErrNoRelationship indicates the parent holds no link to the child.
	ErrNoRelationship = errors.New("registry: no such relationship")

	// ErrSelfRelationship indicates parent and child are the same object.
	ErrSelfRelationship = errors.New("registry: object cannot relate to itself")
)

// MisuseError describes an invalid use of a Ref. In strict mode it is the
// value passed to panic.
type MisuseError struct {
	Op   string // "retain", "release", ...
	Ref  Ref
	Site CallSite // zero unless Options.TrackCallers
	Err  error
}

func (e *MisuseError) Error() string {
	if e.Site.IsZero() {
		return fmt.Sprintf("registry: %s %s: %v", e.Op, e.Ref, e.Err)
	}
	return fmt.Sprintf("registry: %s %s at %s: %v", e.Op, e.Ref, e.Site, e.Err)
}

func (e *MisuseError) Unwrap() error { return e.Err }
