package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmctrace/internal/pmc"
)

type fakeSession struct {
	stats   pmc.Stats
	latched bool
}

func (f *fakeSession) Stats() pmc.Stats { return f.stats }
func (f *fakeSession) HasError() bool   { return f.latched }

func TestEngineCollector(t *testing.T) {
	c := NewEngineCollector()
	assert.Equal(t, 0, testutil.CollectAndCount(c))

	c.Add("s1", &fakeSession{
		stats: pmc.Stats{
			MarkerOpens:      3,
			MarkerCloses:     2,
			ThreadSwitches:   5,
			RegionsCompleted: 2,
			Suspended:        1,
			Errors:           1,
		},
		latched: true,
	})

	expected := `
# HELP pmctrace_regions_completed_total Regions whose close marker was applied.
# TYPE pmctrace_regions_completed_total counter
pmctrace_regions_completed_total{session="s1"} 2
# HELP pmctrace_regions_suspended Regions currently waiting for their thread to be switched back in.
# TYPE pmctrace_regions_suspended gauge
pmctrace_regions_suspended{session="s1"} 1
# HELP pmctrace_error_latched 1 once the session has latched an error.
# TYPE pmctrace_error_latched gauge
pmctrace_error_latched{session="s1"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"pmctrace_regions_completed_total", "pmctrace_regions_suspended", "pmctrace_error_latched"))

	events := `
# HELP pmctrace_events_total Events handled by the correlation engine, by kind.
# TYPE pmctrace_events_total counter
pmctrace_events_total{kind="marker_close",session="s1"} 2
pmctrace_events_total{kind="marker_open",session="s1"} 3
pmctrace_events_total{kind="syscall_enter",session="s1"} 0
pmctrace_events_total{kind="syscall_exit",session="s1"} 0
pmctrace_events_total{kind="thread_switch",session="s1"} 5
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(events), "pmctrace_events_total"))

	c.Add("s2", &fakeSession{})
	assert.Equal(t, 2*13, testutil.CollectAndCount(c))

	c.Remove("s1")
	c.Remove("s2")
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestEngineCollectorRegisters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewEngineCollector()))
}
