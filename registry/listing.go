package registry

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"
)

// Entry is one row of a registry listing.
type Entry struct {
	Bucket        int
	Type          Type
	Identifier    string
	Ref           Ref
	Count         int32
	Alive         bool
	Created       time.Time
	Relationships int
}

// List returns every live object ordered by bucket, then address.
func (r *Registry) List() []Entry {
	tbl := r.tbl.Load()
	if tbl == nil {
		return nil
	}
	var out []Entry
	for i := 0; i < tbl.size(); i++ {
		out = appendBucket(out, tbl, i)
	}
	return out
}

// ListBucket returns the objects of the bucket that key hashes to. Passing
// a payload address lists the bucket that object lives in.
func (r *Registry) ListBucket(key uintptr) []Entry {
	tbl := r.tbl.Load()
	if tbl == nil {
		return nil
	}
	return appendBucket(nil, tbl, tbl.index(key))
}

func appendBucket(out []Entry, tbl *table, i int) []Entry {
	start := len(out)
	tbl.each(i, func(h *header) {
		out = append(out, h.entry())
	})
	bucket := out[start:]
	sort.Slice(bucket, func(a, b int) bool { return bucket[a].Ref.Addr() < bucket[b].Ref.Addr() })
	return out
}

// TableStats summarises the table for operator listings.
type TableStats struct {
	State         State
	TableSize     int
	BucketsInUse  int
	Entries       int
	LargestBucket int
	FillFactor    float64 // Entries / TableSize
	Overcrowded   bool    // FillFactor above Options.OvercrowdThreshold

	Created    int64
	Destroyed  int64
	Leaked     int64
	Misuses    int64
	Tombstones int
}

// Stats walks the table and returns its distribution figures. Counter
// fields are reset by Init.
func (r *Registry) Stats() TableStats {
	st := TableStats{
		State:      r.State(),
		TableSize:  r.opts.Buckets,
		Created:    r.created.Load(),
		Destroyed:  r.destroyed.Load(),
		Leaked:     r.leaked.Load(),
		Misuses:    r.misuses.Load(),
		Tombstones: r.graves.len(),
	}
	tbl := r.tbl.Load()
	if tbl == nil {
		return st
	}
	for i := 0; i < tbl.size(); i++ {
		n := tbl.bucketLen(i)
		if n == 0 {
			continue
		}
		st.BucketsInUse++
		st.Entries += n
		if n > st.LargestBucket {
			st.LargestBucket = n
		}
	}
	st.FillFactor = float64(st.Entries) / float64(st.TableSize)
	st.Overcrowded = st.FillFactor > r.opts.OvercrowdThreshold
	return st
}

// WriteListing renders entries as an aligned table.
func WriteListing(w io.Writer, entries []Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUCKET\tTYPE\tIDENTIFIER\tPOINTER\tCOUNT\tALIVE\tLINKS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%t\t%d\n",
			e.Bucket, e.Type, e.Identifier, e.Ref, e.Count, e.Alive, e.Relationships)
	}
	return tw.Flush()
}

// WriteStats renders st in the same style as WriteListing.
func WriteStats(w io.Writer, st TableStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "state\t%s\n", st.State)
	fmt.Fprintf(tw, "entries\t%d\n", st.Entries)
	fmt.Fprintf(tw, "buckets in use\t%d / %d\n", st.BucketsInUse, st.TableSize)
	fmt.Fprintf(tw, "largest bucket\t%d\n", st.LargestBucket)
	crowd := ""
	if st.Overcrowded {
		crowd = " (overcrowded)"
	}
	fmt.Fprintf(tw, "fill factor\t%.3f%s\n", st.FillFactor, crowd)
	fmt.Fprintf(tw, "created\t%d\n", st.Created)
	fmt.Fprintf(tw, "destroyed\t%d\n", st.Destroyed)
	fmt.Fprintf(tw, "leaked\t%d\n", st.Leaked)
	fmt.Fprintf(tw, "misuses\t%d\n", st.Misuses)
	fmt.Fprintf(tw, "tombstones\t%d\n", st.Tombstones)
	return tw.Flush()
}
