package registry

// AddRelationship records that parent refers to child. The link is weak:
// it does not retain child and never affects either lifetime. Adding an
// existing link is a no-op.
func (r *Registry) AddRelationship(parent, child Ref) error {
	if r.opts.RelationshipSlots == 0 {
		return ErrRelationshipsDisabled
	}
	if child.IsNil() {
		return ErrNilRef
	}
	if parent == child {
		return ErrSelfRelationship
	}
	if err := r.lookup(child, nil); err != nil {
		return err
	}

	addr := child.Addr()
	return r.lookup(parent, func(h *header) error {
		for _, s := range h.slots {
			if s.Load() == addr {
				return nil
			}
		}
		for _, s := range h.slots {
			if s.CompareAndSwap(0, addr) == 0 {
				return nil
			}
		}
		return ErrSlotsFull
	})
}

// RemoveRelationship clears the link from parent to child. child does not
// need to be alive any more.
func (r *Registry) RemoveRelationship(parent, child Ref) error {
	if r.opts.RelationshipSlots == 0 {
		return ErrRelationshipsDisabled
	}
	if child.IsNil() {
		return ErrNilRef
	}

	addr := child.Addr()
	return r.lookup(parent, func(h *header) error {
		for _, s := range h.slots {
			if s.CompareAndSwap(addr, 0) == addr {
				return nil
			}
		}
		return ErrNoRelationship
	})
}

// Relationships returns the payload addresses currently linked from parent.
// Linked objects may have been destroyed since; Resolve tells which are
// still alive.
func (r *Registry) Relationships(parent Ref) ([]uintptr, error) {
	if r.opts.RelationshipSlots == 0 {
		return nil, ErrRelationshipsDisabled
	}
	var out []uintptr
	err := r.lookup(parent, func(h *header) error {
		out = h.children()
		return nil
	})
	return out, err
}

// Resolve returns a Ref for the live object at addr. It does not retain it.
func (r *Registry) Resolve(addr uintptr) (Ref, bool) {
	tbl := r.tbl.Load()
	if tbl == nil || addr == 0 {
		return Ref{}, false
	}
	var ref Ref
	if err := tbl.find(addr, func(h *header) error {
		ref = h.ref()
		return nil
	}); err != nil {
		return Ref{}, false
	}
	return ref, true
}
