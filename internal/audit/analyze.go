package audit

import (
	"bufio"
	"errors"
	"io"
	"sort"
	"strings"
)

// Trace is the replayed history of one object.
type Trace struct {
	Addr       uintptr
	Type       string
	Identifier string
	Retains    int // +1 records, including the create
	Releases   int // -1 records, including the destroy
	Count      int32
	Created    bool // the create record was seen
	First      Record
	Last       Record
}

// Balanced reports whether the object was seen being destroyed.
func (t Trace) Balanced() bool { return t.Last.Destroyed() }

// Summary is the result of replaying audit logs.
type Summary struct {
	Records   int
	Malformed int
	Objects   int // distinct object lifetimes seen
	Destroyed int
	Live      []Trace // lifetimes whose last record left a nonzero count
}

// Leaked returns the live traces that were created inside the replayed
// window. Traces without a create record started before the oldest log and
// are reported by Live only.
func (s Summary) Leaked() []Trace {
	var out []Trace
	for _, t := range s.Live {
		if t.Created {
			out = append(out, t)
		}
	}
	return out
}

// Analyze replays records from each reader in order. Readers should be given
// oldest first (see Files). Lines that do not parse are counted in
// Summary.Malformed and skipped; blank lines and '#' comments are ignored.
func Analyze(readers ...io.Reader) (Summary, error) {
	var sum Summary
	live := make(map[uintptr]*Trace)

	for _, r := range readers {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
				continue
			}
			rec, err := Parse(line)
			if err != nil {
				if errors.Is(err, ErrMalformed) {
					sum.Malformed++
					continue
				}
				return sum, err
			}
			sum.Records++

			t, ok := live[rec.Addr]
			if !ok || rec.Created() {
				// A create at a known address starts a new lifetime; the
				// previous one was either destroyed already or is lost.
				t = &Trace{Addr: rec.Addr, First: rec, Created: rec.Created()}
				live[rec.Addr] = t
				sum.Objects++
			}
			if rec.Delta > 0 {
				t.Retains++
			} else if rec.Delta < 0 {
				t.Releases++
			}
			t.Count = rec.Count
			t.Type = rec.Type
			t.Identifier = rec.Identifier
			t.Last = rec

			if rec.Destroyed() {
				sum.Destroyed++
				delete(live, rec.Addr)
			}
		}
		if err := sc.Err(); err != nil {
			return sum, err
		}
	}

	for _, t := range live {
		sum.Live = append(sum.Live, *t)
	}
	sort.Slice(sum.Live, func(i, j int) bool { return sum.Live[i].Addr < sum.Live[j].Addr })
	return sum, nil
}
