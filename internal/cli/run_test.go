package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: create_row
description: "A new row is created in the store"
steps:
  - { action: add_new }
  - { action: change, key: new-1, field: name, value: Widget }
  - { action: save, key: new-1 }
expect:
  rows:
    r1: { lifecycle: idle, new: false, current: { name: Widget } }
  stored:
    - { id: r1, name: Widget }
`

const failingScenario = `
name: wrong_expectation
description: "Expects a lifecycle the row never reaches"
records:
  - { id: r1, price: 1 }
steps:
  - { action: change, key: r1, field: price, value: 2 }
expect:
  rows:
    r1: { lifecycle: idle }
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRun_AllPass(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "create.yaml", passingScenario)

	out, err := execute(t, "run", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ create_row")
	assert.Contains(t, out, "Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "All scenarios passed")
}

func TestRun_FailureExitCode(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a_create.yaml", passingScenario)
	writeScenario(t, dir, "b_wrong.yaml", failingScenario)

	out, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ create_row")
	assert.Contains(t, out, "✗ wrong_expectation")
	assert.Contains(t, out, "Expectation failed: row lifecycle r1")
	assert.Contains(t, out, "Summary: 1 passed, 1 failed, 2 total")
}

func TestRun_JSON(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "create.yaml", passingScenario)

	out, err := execute(t, "run", "--format", "json", file)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "create_row", resp.Data.Scenarios[0].Name)
	assert.Equal(t, file, resp.Data.Scenarios[0].File)
}

func TestRun_JSONFailure(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, err := execute(t, "run", "--format", "json", file)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenario, resp.Error.Code)
}

func TestRun_MissingPath(t *testing.T) {
	out, err := execute(t, "run", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E_NOT_FOUND")
}

func TestRun_LoadErrorFailsScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")

	out, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestRun_Filter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "create.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, err := execute(t, "run", "--filter", "cr*", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")

	_, err = execute(t, "run", "--filter", "[", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_GoldenUpdateThenMatch(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "create.yaml", passingScenario)

	out, err := execute(t, "run", "--update", file)
	require.NoError(t, err)
	assert.Contains(t, out, "create_row (golden updated)")

	golden := filepath.Join(dir, "golden", "create.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"create_row"`)

	_, err = execute(t, "run", file)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"create_row","trace":[]}`), 0644))
	out, err = execute(t, "run", file)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestRun_EmptyDirectory(t *testing.T) {
	out, err := execute(t, "run", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "golden", "save.golden"), goldenFilePath(filepath.Join("a", "b", "save.yaml")))
}
