package pmc

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// ctxPollMask controls how often Wait looks at the context.
const ctxPollMask = 63

// WaitPolicy controls how Wait spins.
type WaitPolicy struct {
	// SpinLimit is the number of pure spins before escalating. Zero spins
	// forever without yielding.
	SpinLimit int
	// Backoff is the sleep used once SpinLimit is exceeded. Zero yields the
	// processor with runtime.Gosched instead.
	Backoff time.Duration
}

// Wait blocks until r completes, the latch trips, or ctx is done. A tripped
// latch always wins: no totals are returned once an error is latched.
func Wait(ctx context.Context, r *Region, latch *Latch, p WaitPolicy) (Totals, error) {
	done := ctx.Done()
	for spins := 0; !r.IsComplete(); spins++ {
		if latch.Tripped() {
			break
		}
		if spins&ctxPollMask == 0 {
			select {
			case <-done:
				return Totals{}, fmt.Errorf("waiting for region %d: %w", r.id, ctx.Err())
			default:
			}
		}
		if p.SpinLimit > 0 && spins >= p.SpinLimit {
			if p.Backoff > 0 {
				time.Sleep(p.Backoff)
			} else {
				runtime.Gosched()
			}
		}
	}
	if err := latch.Err(); err != nil {
		return Totals{}, err
	}
	return r.totals, nil
}
