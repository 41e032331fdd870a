//go:build windows

package callsite

import "golang.org/x/sys/windows"

// ThreadID returns the id of the OS thread running the caller.
func ThreadID() int {
	return int(windows.GetCurrentThreadId())
}
