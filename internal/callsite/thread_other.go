//go:build !linux && !windows

package callsite

import "os"

// ThreadID falls back to the process id where no portable thread id exists.
func ThreadID() int {
	return os.Getpid()
}
