package pmc

import "fmt"

// handleOpen starts tracking r on this core. The counter baseline is taken at
// the next syscall exit on the same core, when the marker write returns to
// user mode.
func (e *Engine) handleOpen(cpu *cpuState, r *Region, ev *Event) {
	if cpu.pendingStart != nil {
		e.fail(ev, "additional region opened on the same CPU before syscall exit started the prior region")
		e.regions.Delete(r.id)
		return
	}
	if r.state != detached {
		e.fail(ev, fmt.Sprintf("region %d opened while already tracked", r.id))
		return
	}

	r.state = running
	r.awaitingStart = true
	cpu.running.push(r)
	cpu.pendingStart = r

	e.trace.Trace().Str("op", "open").Uint32("cpu", ev.CPU).Uint64("region", r.id).
		Uint32("thread", r.owner).Uint64("ts", ev.Timestamp).Msg("")
}

// handleSyscallExit applies the open baseline to a region waiting for it.
func (e *Engine) handleSyscallExit(cpu *cpuState, ev *Event) {
	r := cpu.pendingStart
	if r == nil {
		return
	}
	counters, ok := e.fetchCounters(ev)
	if !ok {
		return
	}
	r.applyOpen(counters, ev.Timestamp)
	r.awaitingStart = false
	cpu.pendingStart = nil

	e.trace.Trace().Str("op", "start").Uint32("cpu", ev.CPU).Uint64("region", r.id).
		Uint64("ts", ev.Timestamp).Msg("")
}

// handleSyscallEnter snapshots counters for a possible close marker that
// follows. The snapshot excludes the marker write itself.
func (e *Engine) handleSyscallEnter(cpu *cpuState, ev *Event) {
	if cpu.running.len() == 0 {
		return
	}
	counters, ok := e.fetchCounters(ev)
	if !ok {
		return
	}
	cpu.snapshotEnter(counters, ev.Timestamp)
}

// handleClose finalizes r with the last syscall-enter snapshot and publishes
// completion.
func (e *Engine) handleClose(cpu *cpuState, r *Region, ev *Event) {
	if !cpu.lastEnterValid {
		e.fail(ev, "no syscall enter for close")
		return
	}
	if r.state != running || !cpu.running.contains(r) {
		e.fail(ev, fmt.Sprintf("close for region %d not running on this CPU", r.id))
		return
	}
	if r.awaitingStart {
		e.fail(ev, fmt.Sprintf("close for region %d before syscall exit started it", r.id))
		return
	}

	r.applyClose(cpu.lastEnter[:e.counterCount], cpu.lastEnterCycles)
	cpu.lastEnterValid = false
	cpu.running.remove(r)
	e.regions.Delete(r.id)

	e.trace.Trace().Str("op", "close").Uint32("cpu", ev.CPU).Uint64("region", r.id).
		Uint64("cycles", r.totals.CyclesElapsed).Uint64("switches", r.totals.ContextSwitchCount).Msg("")

	e.stats.completed.Add(1)
	r.complete()
}

// handleThreadSwitch suspends every region of the outgoing thread and
// resumes every suspended region of the incoming thread on this core.
func (e *Engine) handleThreadSwitch(cpu *cpuState, ev *Event) {
	newTID, oldTID, ok := DecodeSwitch(ev.Payload)
	if !ok {
		e.fail(ev, fmt.Sprintf("unexpected thread switch data size %d", len(ev.Payload)))
		return
	}
	if cpu.running.len() == 0 && e.suspended.len() == 0 {
		return
	}
	counters, ok := e.fetchCounters(ev)
	if !ok {
		return
	}
	for _, r := range cpu.running.items {
		if r.owner != oldTID {
			e.fail(ev, fmt.Sprintf("switched thread id mismatch: region %d owned by %d, outgoing %d",
				r.id, r.owner, oldTID))
			return
		}
	}

	for _, r := range cpu.running.items {
		if r.awaitingStart {
			cpu.pendingStart = nil
		} else {
			r.applyClose(counters, ev.Timestamp)
		}
		r.totals.ContextSwitchCount++
		r.state = suspended
		e.suspended.push(r)

		e.stats.suspends.Add(1)
		e.trace.Trace().Str("op", "suspend").Uint32("cpu", ev.CPU).Uint64("region", r.id).
			Uint32("thread", oldTID).Uint64("ts", ev.Timestamp).Msg("")
	}
	cpu.running.reset()

	for i := e.suspended.len() - 1; i >= 0; i-- {
		r := e.suspended.items[i]
		if r.owner != newTID {
			continue
		}
		if r.awaitingStart {
			if cpu.pendingStart != nil {
				e.fail(ev, fmt.Sprintf("region %d resumed awaiting start on a CPU with a pending region", r.id))
				continue
			}
			cpu.pendingStart = r
		} else {
			r.applyOpen(counters, ev.Timestamp)
		}
		e.suspended.removeAt(i)
		r.state = running
		cpu.running.push(r)

		e.stats.resumes.Add(1)
		e.trace.Trace().Str("op", "resume").Uint32("cpu", ev.CPU).Uint64("region", r.id).
			Uint32("thread", newTID).Uint64("ts", ev.Timestamp).Msg("")
	}

	e.stats.suspendedNow.Store(int64(e.suspended.len()))
}
