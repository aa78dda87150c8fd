//go:build linux

package osthread

import "golang.org/x/sys/unix"

// CurrentID returns the kernel task id of the OS thread running the caller.
// The result is only stable while the goroutine is locked with
// runtime.LockOSThread.
func CurrentID() uint32 {
	return uint32(unix.Gettid())
}
