package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"

	"go.uber.org/multierr"

	"pmctrace/internal/osthread"
	"pmctrace/internal/pmc"
)

// regionTracer is the part of a session the workload drives.
type regionTracer interface {
	Open(r *pmc.Region) error
	Close(r *pmc.Region) error
	Wait(ctx context.Context, r *pmc.Region) (pmc.Totals, error)
}

type workload struct {
	workers    int
	regions    int
	bufferSize int
	seed       uint64
}

// workerResult is the best (fewest cycles) measurement of one worker.
type workerResult struct {
	Worker   int
	Thread   uint32
	Measured int
	Best     pmc.Totals
	Checksum int
}

// run starts w.workers goroutines, each locked to its own OS thread, that
// measure w.regions scans of a private random buffer.
func (w workload) run(ctx context.Context, t regionTracer) ([]workerResult, error) {
	results := make([]workerResult, w.workers)
	errs := make([]error, w.workers)

	var wg sync.WaitGroup
	for i := range w.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			results[i], errs[i] = w.measure(ctx, t, i)
		}()
	}
	wg.Wait()
	return results, multierr.Combine(errs...)
}

func (w workload) measure(ctx context.Context, t regionTracer, worker int) (workerResult, error) {
	res := workerResult{Worker: worker, Thread: osthread.CurrentID()}

	rng := rand.New(rand.NewPCG(w.seed, uint64(worker)))
	buf := make([]byte, w.bufferSize)
	for i := range buf {
		buf[i] = byte(rng.Uint32())
	}

	var r pmc.Region
	for n := range w.regions {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := t.Open(&r); err != nil {
			return res, fmt.Errorf("worker %d region %d: %w", worker, n, err)
		}
		res.Checksum += branchyScan(buf)
		if err := t.Close(&r); err != nil {
			return res, fmt.Errorf("worker %d region %d: %w", worker, n, err)
		}
		totals, err := t.Wait(ctx, &r)
		if err != nil {
			return res, fmt.Errorf("worker %d region %d: %w", worker, n, err)
		}
		if res.Measured == 0 || totals.CyclesElapsed < res.Best.CyclesElapsed {
			res.Best = totals
		}
		res.Measured++
	}
	return res, nil
}

// branchyScan counts bytes with the high bit set. On random data the branch
// is unpredictable.
func branchyScan(buf []byte) int {
	n := 0
	for _, b := range buf {
		if b&0x80 != 0 {
			n++
		}
	}
	return n
}
