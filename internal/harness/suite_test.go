package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	files, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, files)

	single, err := FindScenarios(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "notes.txt")}, single)
}

func TestFindScenarios_Missing(t *testing.T) {
	_, err := FindScenarios(filepath.Join(t.TempDir(), "gone"))
	var nf *ScenarioNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Contains(t, nf.Error(), "does not exist")
}

func TestRunSuite_RecordsLoadFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_ok.yaml"), []byte(minimalScenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_broken.yaml"), []byte("name: [unclosed"), 0o644))

	results, err := RunSuite(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Passed())
	assert.Equal(t, "minimal", results[0].Name)

	assert.False(t, results[1].Passed())
	assert.Contains(t, results[1].Err, "failed to parse YAML")
}

func TestRunSuite_Testdata(t *testing.T) {
	results, err := RunSuite(context.Background(), "testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.True(t, r.Passed(), "%s: %s %v", r.Path, r.Err, r.Result)
	}
}
