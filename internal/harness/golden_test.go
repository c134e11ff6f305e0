package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceJSON_Deterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "bulk_partial_failure.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := TraceJSON(s.Name, first)
	require.NoError(t, err)
	b, err := TraceJSON(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Contains(t, string(a), `"scenario_name":"bulk_partial_failure"`)
	assert.Contains(t, string(a), `"sink":["bulk_save"]`)
}

func TestRunWithGolden_CheckedInTrace(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "change_then_cancel.yaml"))
	require.NoError(t, err)

	// Compares against testdata/golden/change_then_cancel.golden.
	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRunWithGolden_MatchesRecordedTrace(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "add_new_then_save.yaml"))
	require.NoError(t, err)

	dir := t.TempDir()
	recorded, err := Run(s)
	require.NoError(t, err)
	traceJSON, err := TraceJSON(s.Name, recorded)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir(dir), goldie.WithNameSuffix(".golden"))
	require.NoError(t, g.Update(t, s.Name, traceJSON))

	data, err := os.ReadFile(filepath.Join(dir, s.Name+".golden"))
	require.NoError(t, err)
	assert.Equal(t, string(traceJSON), string(data))

	result, err := RunWithGolden(t, s, goldie.WithFixtureDir(dir))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestAssertGolden_UsesScenarioName(t *testing.T) {
	dir := t.TempDir()
	result := NewResult()
	result.Trace = append(result.Trace, TraceEvent{Step: 0, Action: ActionReload, Version: 1})

	traceJSON, err := TraceJSON("named", result)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "named.golden"), traceJSON, 0644))

	require.NoError(t, AssertGolden(t, "named", result, goldie.WithFixtureDir(dir)))
}
