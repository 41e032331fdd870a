package registry

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// GenerateReport writes the relationship tree rooted at root to w: type,
// identifier, address, count and alive state of root and of every object
// reachable through relationship slots, up to Options.ReportDepth levels.
// Links back to an object already on the current path are shown as cycles;
// links to destroyed objects are shown with their tombstone if one is known.
//
// The report is a diagnostic snapshot. Counts may change while it is built.
func (r *Registry) GenerateReport(root Ref, w io.Writer) error {
	e, children, err := r.node(root.Addr())
	if err != nil {
		if root.IsNil() {
			return ErrNilRef
		}
		return r.classify(root, err)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ownership report for %s (depth limit %d)\n", root, r.opts.ReportDepth)
	r.reportNode(bw, e, children, 0, make(map[uintptr]bool))
	return bw.Flush()
}

// Report is GenerateReport into a string.
func (r *Registry) Report(root Ref) (string, error) {
	var b strings.Builder
	if err := r.GenerateReport(root, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (r *Registry) reportNode(w io.Writer, e Entry, children []uintptr, depth int, onPath map[uintptr]bool) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s+ %s\n", indent, describe(e))
	if len(children) == 0 {
		return
	}
	if depth+1 >= r.opts.ReportDepth {
		fmt.Fprintf(w, "%s  ... %d linked object(s) beyond depth limit\n", indent, len(children))
		return
	}

	addr := e.Ref.Addr()
	onPath[addr] = true
	defer delete(onPath, addr)

	for _, c := range children {
		if onPath[c] {
			fmt.Fprintf(w, "%s  + <cycle> %#x\n", indent, c)
			continue
		}
		ce, grandchildren, err := r.node(c)
		if err != nil {
			if ts, ok := r.graves.lookup(c); ok {
				fmt.Fprintf(w, "%s  + <destroyed> %s %q %#x\n", indent, ts.Type, ts.Identifier, c)
			} else {
				fmt.Fprintf(w, "%s  + <destroyed> %#x\n", indent, c)
			}
			continue
		}
		r.reportNode(w, ce, grandchildren, depth+1, onPath)
	}
}

// node snapshots the object at addr and its relationship slots.
func (r *Registry) node(addr uintptr) (Entry, []uintptr, error) {
	tbl := r.tbl.Load()
	if tbl == nil || addr == 0 {
		return Entry{}, nil, ErrUnknownRef
	}
	var (
		e        Entry
		children []uintptr
	)
	err := tbl.find(addr, func(h *header) error {
		e = h.entry()
		children = h.children()
		return nil
	})
	return e, children, err
}

func describe(e Entry) string {
	state := "alive"
	if !e.Alive {
		state = "dead"
	}
	return fmt.Sprintf("%s %q %s count=%d %s", e.Type, e.Identifier, e.Ref, e.Count, state)
}
