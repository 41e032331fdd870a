package registry

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"github.com/joshuapare/refcount/internal/callsite"
)

// Type tags the domain kind of an object. It selects the finalizer and
// the label used in logs; it carries no other behaviour.
type Type uint8

const (
	TypeTest Type = iota
	TypeDevice
	TypeLine
	TypeChannel
	TypeLineDevice
	TypeEvent
	TypeConference
	TypeParticipant
	TypeUser
)

var typeNames = [...]string{
	TypeTest:        "test",
	TypeDevice:      "device",
	TypeLine:        "line",
	TypeChannel:     "channel",
	TypeLineDevice:  "linedevice",
	TypeEvent:       "event",
	TypeConference:  "conference",
	TypeParticipant: "participant",
	TypeUser:        "user",
}

// numTypes bounds the finalizer table; any Type value is accepted.
const numTypes = 1 << 8

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// ParseType maps a name produced by Type.String back to its Type.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	if n, ok := strings.CutPrefix(s, "type("); ok {
		if v, err := strconv.ParseUint(strings.TrimSuffix(n, ")"), 10, 8); err == nil {
			return Type(v), nil
		}
	}
	return 0, fmt.Errorf("registry: unknown type %q", s)
}

// Ref is a handle to a registered object. The zero Ref is the nil reference.
//
// Refs are comparable. A Ref does not by itself own a count; ownership is
// established by Create, Retain and Replace and given back by Release.
type Ref struct {
	p unsafe.Pointer
}

// IsNil reports whether r is the nil reference.
func (r Ref) IsNil() bool { return r.p == nil }

// Addr returns the payload address r refers to.
func (r Ref) Addr() uintptr { return uintptr(r.p) }

func (r Ref) String() string {
	return fmt.Sprintf("%#x", uintptr(r.p))
}

// Finalizer releases whatever a payload holds. It is called exactly once,
// when the object's count drops to zero, before the payload is scrubbed.
type Finalizer interface {
	Finalize(payload []byte)
}

// FinalizerFunc adapts a function to the Finalizer interface.
type FinalizerFunc func(payload []byte)

// Finalize calls f(payload).
func (f FinalizerFunc) Finalize(payload []byte) { f(payload) }

// CallSite identifies the code that invoked a registry operation.
type CallSite = callsite.Site
