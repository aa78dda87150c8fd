// Package etwmain feeds the correlation engine from a Windows kernel trace
// session with hardware counters attached to context switch and system call
// events. Region markers are written into the same session so they are
// ordered with the kernel events.
package etwmain

import "errors"

// ErrUnsupported is returned by NewSource on platforms without ETW.
var ErrUnsupported = errors.New("kernel PMC tracing requires Windows")
