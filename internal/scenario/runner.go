package scenario

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/phuslu/log"
	"go.uber.org/multierr"

	"pmctrace/internal/counters"
	"pmctrace/internal/pmc"
	"pmctrace/internal/source"
	"pmctrace/internal/tracer"
)

// RunOptions tune a replay.
type RunOptions struct {
	RegionTable     string
	DiagnosticBytes int
	Logger          log.Logger
}

// RegionResult is the observed outcome of one region.
type RegionResult struct {
	Complete bool
	Totals   pmc.Totals
}

// Result is the outcome of a replay.
type Result struct {
	Regions       map[string]RegionResult
	Err           error
	Stats         pmc.Stats
	DiagnosticLog string
}

// markerClock feeds the processor, time and thread of the step being
// replayed to the session. Steps are replayed on one goroutine.
type markerClock struct {
	cpu    uint32
	ts     uint64
	thread uint32
}

func (c *markerClock) stamp() (uint32, uint64) { return c.cpu, c.ts }

func (c *markerClock) currentThread() uint32 { return c.thread }

// Run replays sc through a fresh session backed by a channel source and
// returns what the engine produced once every event has been handled.
func Run(sc *Scenario, opts RunOptions) (*Result, error) {
	names := make([]string, sc.Counters)
	for i := range names {
		names[i] = fmt.Sprintf("counter%d", i)
	}
	mapping, err := tracer.ResolveCounters(counters.NewStaticCatalog(names...), names)
	if err != nil {
		return nil, err
	}

	clock := &markerClock{}
	src := source.NewChannelSource(len(sc.Steps)+1, clock.stamp, opts.Logger)
	s, err := tracer.BeginSession(mapping, src, tracer.Options{
		CPUCount:        sc.CPUs,
		RegionTable:     opts.RegionTable,
		DiagnosticBytes: opts.DiagnosticBytes,
		Thread:          clock.currentThread,
		Logger:          opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	regions := map[string]*pmc.Region{}
	var runErr error
	for i, st := range sc.Steps {
		clock.cpu, clock.ts, clock.thread = st.CPU, st.Cycles, st.Thread
		var err error
		switch st.Op {
		case OpOpen:
			r := regions[st.Region]
			if r == nil {
				r = &pmc.Region{}
				regions[st.Region] = r
			}
			err = s.Open(r)
		case OpClose:
			err = s.Close(regions[st.Region])
		default:
			err = src.Inject(st.event())
		}
		if err != nil {
			runErr = fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
			break
		}
	}

	if err := s.End(); err != nil {
		runErr = multierr.Append(runErr, err)
	}
	if runErr != nil && !errors.Is(runErr, pmc.ErrSession) {
		return nil, runErr
	}

	res := &Result{
		Regions:       make(map[string]RegionResult, len(regions)),
		Err:           s.Err(),
		Stats:         s.Stats(),
		DiagnosticLog: s.DiagnosticLog(),
	}
	for name, r := range regions {
		rr := RegionResult{Complete: r.IsComplete()}
		if rr.Complete {
			rr.Totals = r.Totals()
		}
		res.Regions[name] = rr
	}
	return res, nil
}

// Check compares res against the scenario's expectations and reports every
// mismatch.
func (sc *Scenario) Check(res *Result) error {
	var errs error
	if sc.Error != nil {
		var perr *pmc.Error
		switch {
		case res.Err == nil:
			errs = multierr.Append(errs, fmt.Errorf("expected a %s error, none was latched", sc.Error.Kind))
		case !errors.As(res.Err, &perr) || perr.Kind.String() != sc.Error.Kind:
			errs = multierr.Append(errs, fmt.Errorf("expected a %s error, got %v", sc.Error.Kind, res.Err))
		case !strings.Contains(perr.Message, sc.Error.Message):
			errs = multierr.Append(errs, fmt.Errorf("expected error containing %q, got %q", sc.Error.Message, perr.Message))
		}
	} else if res.Err != nil {
		errs = multierr.Append(errs, fmt.Errorf("unexpected error: %w", res.Err))
	}

	names := make([]string, 0, len(sc.Expect))
	for name := range sc.Expect {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		exp := sc.Expect[name]
		got := res.Regions[name]
		complete := true
		if exp.Complete != nil {
			complete = *exp.Complete
		}
		if got.Complete != complete {
			errs = multierr.Append(errs, fmt.Errorf("region %q: complete = %t, want %t", name, got.Complete, complete))
			continue
		}
		if !got.Complete {
			continue
		}
		if exp.Counters != nil && !slices.Equal(got.Totals.Values(), exp.Counters) {
			errs = multierr.Append(errs, fmt.Errorf("region %q: counters = %v, want %v", name, got.Totals.Values(), exp.Counters))
		}
		if exp.Cycles != nil && got.Totals.CyclesElapsed != *exp.Cycles {
			errs = multierr.Append(errs, fmt.Errorf("region %q: cycles = %d, want %d", name, got.Totals.CyclesElapsed, *exp.Cycles))
		}
		if exp.Switches != nil && got.Totals.ContextSwitchCount != *exp.Switches {
			errs = multierr.Append(errs, fmt.Errorf("region %q: context switches = %d, want %d", name, got.Totals.ContextSwitchCount, *exp.Switches))
		}
	}
	return errs
}
