// Package callsite captures where a registry operation was invoked from.
package callsite

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Site identifies a caller.
type Site struct {
	File string // base name of the source file
	Line int
	Func string // package-qualified function, without the import path
}

// Unknown is reported when the stack could not be walked.
var Unknown = Site{File: "unknown", Func: "unknown"}

// IsZero reports whether s was never captured.
func (s Site) IsZero() bool {
	return s.File == "" && s.Line == 0 && s.Func == ""
}

func (s Site) String() string {
	if s.IsZero() {
		return "-"
	}
	return s.File + ":" + strconv.Itoa(s.Line) + " " + s.Func
}

// Capture returns the caller skip frames above Capture's caller.
// Capture(0) describes the function that called Capture.
func Capture(skip int) Site {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Unknown
	}
	name := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = trimFunc(fn.Name())
	}
	return Site{File: filepath.Base(file), Line: line, Func: name}
}

// trimFunc drops the import path: "github.com/x/y/registry.(*R).Retain"
// becomes "registry.(*R).Retain".
func trimFunc(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
