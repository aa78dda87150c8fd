package counters

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"pmctrace/internal/pmc"
)

type brokenCatalog struct{}

func (brokenCatalog) Name() string              { return "broken" }
func (brokenCatalog) Sources() ([]Source, error) { return nil, errors.New("access denied") }

func TestResolve(t *testing.T) {
	cat := StaticCatalog{
		{Name: "Timer", Index: 0},
		{Name: "TotalIssues", Index: 2},
		{Name: "BranchInstructions", Index: 6},
		{Name: "BranchMispredictions", Index: 11},
	}

	m, err := Resolve(cat, []string{"TotalIssues", "BranchInstructions", "BranchMispredictions"})
	require.NoError(t, err)
	assert.True(t, m.Valid)
	assert.Equal(t, 3, m.Count)
	assert.Equal(t, []uint32{2, 6, 11}, m.Indices())
	assert.Equal(t, []string{"TotalIssues", "BranchInstructions", "BranchMispredictions"}, m.Names)
}

func TestResolveFailures(t *testing.T) {
	cat := NewStaticCatalog("TotalIssues", "BranchInstructions")

	tests := []struct {
		name    string
		cat     Catalog
		names   []string
		message string
	}{
		{"empty", cat, nil, "no counters requested"},
		{"too many", cat, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}, "at most 8 supported"},
		{"case sensitive", cat, []string{"totalissues"}, "PMC source mapping failed"},
		{"catalog error", brokenCatalog{}, []string{"TotalIssues"}, "PMC source mapping failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Resolve(tt.cat, tt.names)
			require.Error(t, err)
			assert.ErrorIs(t, err, pmc.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.message)
			assert.False(t, m.Valid)
		})
	}
}

func TestResolveReportsEveryMissingName(t *testing.T) {
	_, err := Resolve(NewStaticCatalog("TotalIssues"), []string{"CacheMisses", "TotalIssues", "DcacheMisses"})
	require.Error(t, err)

	var perr *pmc.Error
	require.ErrorAs(t, err, &perr)
	assert.Len(t, multierr.Errors(perr.Err), 2)
	assert.Contains(t, err.Error(), `"CacheMisses"`)
	assert.Contains(t, err.Error(), `"DcacheMisses"`)
}

func TestSorted(t *testing.T) {
	in := NewStaticCatalog("b", "A", "c")
	out := Sorted(in)
	assert.Equal(t, []string{"A", "b", "c"}, []string{out[0].Name, out[1].Name, out[2].Name})
	assert.Equal(t, "b", in[0].Name)
}

func TestForCatalogUnknown(t *testing.T) {
	_, err := ForCatalog("papi")
	assert.ErrorContains(t, err, `unknown counter catalog "papi"`)
}
