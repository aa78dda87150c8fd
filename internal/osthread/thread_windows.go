//go:build windows

package osthread

import "golang.org/x/sys/windows"

// CurrentID returns the id of the OS thread running the caller. The result is
// only stable while the goroutine is locked with runtime.LockOSThread.
func CurrentID() uint32 {
	return windows.GetCurrentThreadId()
}
