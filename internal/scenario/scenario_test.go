package scenario

import (
	"path/filepath"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"pmctrace/internal/maps"
)

var quiet = log.Logger{Level: log.PanicLevel}

func TestTestdataScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.toml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		sc, err := Load(file)
		require.NoError(t, err, file)

		for _, table := range maps.Names() {
			t.Run(sc.Name+"/"+table, func(t *testing.T) {
				res, err := Run(sc, RunOptions{RegionTable: table, DiagnosticBytes: 64 * 1024, Logger: quiet})
				require.NoError(t, err)
				assert.NoError(t, sc.Check(res), res.DiagnosticLog)
			})
		}
	}
}

func TestCheckReportsEveryMismatch(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "interleaved.toml"))
	require.NoError(t, err)
	res, err := Run(sc, RunOptions{Logger: quiet})
	require.NoError(t, err)
	require.NoError(t, sc.Check(res))

	a := res.Regions["a"]
	a.Totals.Counters[0]++
	a.Totals.ContextSwitchCount = 4
	res.Regions["a"] = a
	res.Regions["b"] = RegionResult{}

	err = sc.Check(res)
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 3)
	assert.ErrorContains(t, errs[0], `region "a": counters = [81], want [80]`)
	assert.ErrorContains(t, errs[1], `region "a": context switches = 4, want 1`)
	assert.ErrorContains(t, errs[2], `region "b": complete = false, want true`)
}

func TestCheckErrorExpectation(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "single_thread.toml"))
	require.NoError(t, err)
	res, err := Run(sc, RunOptions{Logger: quiet})
	require.NoError(t, err)

	sc.Error = &ErrorExpectation{Kind: "protocol", Message: "no syscall enter"}
	assert.ErrorContains(t, sc.Check(res), "expected a protocol error, none was latched")
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"unknown op", "[[step]]\nop = \"jump\"\n", `unknown op "jump"`},
		{"close before open", "[[step]]\nop = \"close\"\nregion = \"a\"\n", "closed before it was opened"},
		{"open without region", "[[step]]\nop = \"open\"\n", "open needs a region"},
		{"too many counters", "counters = 9\n", "counters must be within 1..8"},
		{"no cpus", "cpus = 0\n", "cpus must be at least 1"},
		{"unknown provider", "[[step]]\nop = \"raw\"\nprovider = \"disk\"\n", `unknown provider "disk"`},
		{"expectation without region", "[expect.z]\ncycles = 1\n", `region "z" that is never opened`},
		{"expectation width", "[[step]]\nop = \"open\"\nregion = \"a\"\n[expect.a]\ncounters = [1, 2]\n", "lists 2 counters"},
		{"bad error kind", "[expect_error]\nkind = \"fatal\"\n", `expect_error.kind "fatal"`},
		{"unknown key", "cores = 2\n", "unknown scenario keys"},
		{"bad toml", "cpus = [\n", "failed to parse scenario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestRegionsInOpenOrder(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "nested.toml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, sc.Regions())
}

func TestRunReopenBusyRegion(t *testing.T) {
	sc, err := Parse([]byte(`
[[step]]
op = "open"
region = "a"

[[step]]
op = "open"
region = "a"
`))
	require.NoError(t, err)
	_, err = Run(sc, RunOptions{Logger: quiet})
	assert.ErrorContains(t, err, "step 2 (open)")
}
