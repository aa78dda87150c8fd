//go:build linux

package counters

import (
	"sort"

	"github.com/zyedidia/perf"
)

var hardwareEvents = map[string]perf.HardwareCounter{
	"instructions":            perf.Instructions,
	"cpu-cycles":              perf.CPUCycles,
	"cache-references":        perf.CacheReferences,
	"cache-misses":            perf.CacheMisses,
	"branch-instructions":     perf.BranchInstructions,
	"branch-misses":           perf.BranchMisses,
	"bus-cycles":              perf.BusCycles,
	"stalled-cycles-frontend": perf.StalledCyclesFrontend,
	"stalled-cycles-backend":  perf.StalledCyclesBackend,
	"ref-cycles":              perf.RefCPUCycles,
}

// PerfCatalog lists the generic hardware events perf_event_open accepts on
// this machine. Source indices are the perf hardware event ids.
type PerfCatalog struct{}

func NewPerfCatalog() (Catalog, error) { return PerfCatalog{}, nil }

func (PerfCatalog) Name() string { return "perf" }

func (PerfCatalog) Sources() ([]Source, error) {
	sources := make([]Source, 0, len(hardwareEvents))
	for name, ev := range hardwareEvents {
		if !isAvailable(ev) {
			continue
		}
		sources = append(sources, Source{Name: name, Index: uint32(ev)})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Index < sources[j].Index })
	return sources, nil
}

// isAvailable opens the event on the calling thread and closes it again.
func isAvailable(ev perf.Configurator) bool {
	fa := &perf.Attr{}
	if err := ev.Configure(fa); err != nil {
		return false
	}
	p, err := perf.Open(fa, perf.CallingThread, perf.AnyCPU, nil)
	if err != nil {
		return false
	}
	p.Close()
	return true
}

// NewETWCatalog is only available on Windows.
func NewETWCatalog() (Catalog, error) { return nil, ErrUnsupported }

// Default returns the perf hardware event catalog.
func Default() Catalog { return PerfCatalog{} }
