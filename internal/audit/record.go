package audit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// fieldSep separates the fields of a formatted record.
const fieldSep = " | "

const numFields = 9

// ErrMalformed is returned by Parse for lines that are not audit records.
var ErrMalformed = errors.New("audit: malformed record")

// Record is one reference count transition.
type Record struct {
	Addr       uintptr // payload address
	Delta      int     // +1 retain/create, -1 release/destroy
	ThreadID   int
	File       string
	Line       int
	Func       string
	Count      int32 // count after the transition
	Type       string
	Identifier string
}

// Created reports whether r is the creation of an object.
func (r Record) Created() bool { return r.Delta > 0 && r.Count == 1 }

// Destroyed reports whether r dropped the object to zero.
func (r Record) Destroyed() bool { return r.Count == 0 }

// Format renders r as a single line without the trailing newline.
func (r Record) Format() string {
	file, fn := r.File, r.Func
	if file == "" {
		file = "-"
	}
	if fn == "" {
		fn = "-"
	}
	var b strings.Builder
	b.Grow(96)
	fmt.Fprintf(&b, "0x%x%s%+d%s%d%s%s%s%d%s%s%s%d%s%s%s%s",
		r.Addr, fieldSep,
		r.Delta, fieldSep,
		r.ThreadID, fieldSep,
		file, fieldSep,
		r.Line, fieldSep,
		fn, fieldSep,
		r.Count, fieldSep,
		r.Type, fieldSep,
		r.Identifier)
	return b.String()
}

func (r Record) String() string { return r.Format() }

// Parse is the inverse of Format.
func Parse(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.HasSuffix(line, " |") {
		// Empty identifier whose trailing blank was stripped.
		line += " "
	}
	parts := strings.SplitN(line, fieldSep, numFields)
	if len(parts) != numFields {
		return Record{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformed, numFields, len(parts))
	}

	var (
		r   Record
		err error
	)
	addr, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 0, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: pointer %q", ErrMalformed, parts[0])
	}
	r.Addr = uintptr(addr)
	if r.Delta, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return Record{}, fmt.Errorf("%w: delta %q", ErrMalformed, parts[1])
	}
	if r.ThreadID, err = strconv.Atoi(strings.TrimSpace(parts[2])); err != nil {
		return Record{}, fmt.Errorf("%w: thread %q", ErrMalformed, parts[2])
	}
	r.File = strings.TrimSpace(parts[3])
	if r.Line, err = strconv.Atoi(strings.TrimSpace(parts[4])); err != nil {
		return Record{}, fmt.Errorf("%w: line %q", ErrMalformed, parts[4])
	}
	r.Func = strings.TrimSpace(parts[5])
	count, err := strconv.ParseInt(strings.TrimSpace(parts[6]), 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("%w: count %q", ErrMalformed, parts[6])
	}
	r.Count = int32(count)
	r.Type = strings.TrimSpace(parts[7])
	r.Identifier = parts[8]
	if r.File == "-" {
		r.File = ""
	}
	if r.Func == "-" {
		r.Func = ""
	}
	return r, nil
}
