// Package osthread reports OS-level thread and processor facts that the Go
// runtime hides.
package osthread

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/cpu"
)

// LogicalCPUs returns the number of logical processors, which bounds the
// processor numbers the kernel stamps on trace events.
func LogicalCPUs(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}
