package pmc

// cpuState is the per-core view of the regions the engine is tracking.
// It is only touched from the processing goroutine.
type cpuState struct {
	running regionList

	// region opened on this core whose baseline waits for the next syscall exit
	pendingStart *Region

	lastEnter       [MaxCounters]uint64
	lastEnterCycles uint64
	lastEnterValid  bool
}

func (c *cpuState) snapshotEnter(counters []uint64, cycles uint64) {
	copy(c.lastEnter[:], counters)
	c.lastEnterCycles = cycles
	c.lastEnterValid = true
}
