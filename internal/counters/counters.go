// Package counters resolves logical hardware counter names against the
// counter sources a platform exposes.
package counters

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"pmctrace/internal/pmc"
)

// Source is one selectable hardware counter.
type Source struct {
	Name  string
	Index uint32

	// Sampling interval bounds, when the platform reports them.
	MinInterval uint32
	MaxInterval uint32
}

// Catalog lists the counter sources available on this machine.
type Catalog interface {
	Name() string
	Sources() ([]Source, error)
}

// Mapping is the resolved counter selection handed to an event source.
type Mapping struct {
	Names       []string
	SourceIndex [pmc.MaxCounters]uint32
	Count       int
	Valid       bool
}

// Indices returns the active source indices.
func (m Mapping) Indices() []uint32 {
	return m.SourceIndex[:m.Count]
}

// Resolve looks up every name in cat. The mapping is valid only if every
// name was found. Names are matched exactly.
func Resolve(cat Catalog, names []string) (Mapping, error) {
	m := Mapping{Names: append([]string(nil), names...)}
	if len(names) == 0 {
		return m, pmc.NewError(pmc.ConfigurationError, "no counters requested", nil)
	}
	if len(names) > pmc.MaxCounters {
		return m, pmc.NewError(pmc.ConfigurationError,
			fmt.Sprintf("%d counters requested, at most %d supported", len(names), pmc.MaxCounters), nil)
	}

	sources, err := cat.Sources()
	if err != nil {
		return m, pmc.NewError(pmc.ConfigurationError, "PMC source mapping failed",
			fmt.Errorf("listing %s counter sources: %w", cat.Name(), err))
	}
	byName := make(map[string]Source, len(sources))
	for _, s := range sources {
		byName[s.Name] = s
	}

	var missing error
	for i, name := range names {
		s, ok := byName[name]
		if !ok {
			missing = multierr.Append(missing, fmt.Errorf("counter %q not available from %s", name, cat.Name()))
			continue
		}
		m.SourceIndex[i] = s.Index
	}
	if missing != nil {
		return m, pmc.NewError(pmc.ConfigurationError, "PMC source mapping failed", missing)
	}

	m.Count = len(names)
	m.Valid = true
	return m, nil
}

// StaticCatalog is a fixed list of sources, used for replay and tests.
type StaticCatalog []Source

func (c StaticCatalog) Name() string { return "static" }

func (c StaticCatalog) Sources() ([]Source, error) { return c, nil }

// NewStaticCatalog assigns sequential indices to names.
func NewStaticCatalog(names ...string) StaticCatalog {
	c := make(StaticCatalog, len(names))
	for i, n := range names {
		c[i] = Source{Name: n, Index: uint32(i)}
	}
	return c
}

// Sorted returns sources ordered by name.
func Sorted(sources []Source) []Source {
	out := append([]Source(nil), sources...)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// ForCatalog returns the named catalog. "auto" picks the platform default.
func ForCatalog(name string) (Catalog, error) {
	switch name {
	case "", "auto":
		return Default(), nil
	case "etw":
		return NewETWCatalog()
	case "perf":
		return NewPerfCatalog()
	default:
		return nil, fmt.Errorf("unknown counter catalog %q", name)
	}
}

// ErrUnsupported is returned for catalogs that do not exist on this platform.
var ErrUnsupported = errors.New("counter catalog not supported on this platform")
