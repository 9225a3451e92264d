//go:build linux

package engine

import "golang.org/x/sys/unix"

// ThreadID returns the id of the OS thread running the caller. It is only
// stable for goroutines locked to their thread.
func ThreadID() int {
	return unix.Gettid()
}
