//go:build linux

package callsite

import "golang.org/x/sys/unix"

// ThreadID returns the kernel id of the OS thread running the caller.
//
// Goroutines migrate between threads, so the value identifies the thread at
// the moment of the call only.
func ThreadID() int {
	return unix.Gettid()
}
