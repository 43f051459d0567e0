package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one advance"
start: 2026-03-02T09:00:00Z
steps:
  - advance: 1d
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "1d", s.Steps[0].Advance)
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nstart: 2026-03-02\nsteps: [{advance: 1d}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nstart: 2026-03-02\nsteps: [{advance: 1d}]\n",
			want: "description is required",
		},
		{
			name: "bad start",
			yaml: "name: n\ndescription: d\nstart: soon\nsteps: [{advance: 1d}]\n",
			want: "start",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\nstart: 2026-03-02\n",
			want: "steps list is required",
		},
		{
			name: "empty step",
			yaml: "name: n\ndescription: d\nstart: 2026-03-02\nsteps: [{error: STATE}]\n",
			want: "steps[0]: no operation set",
		},
		{
			name: "two operations",
			yaml: "name: n\ndescription: d\nstart: 2026-03-02\nsteps: [{advance: 1d, checkoff: p}]\n",
			want: "exactly one operation per step",
		},
		{
			name: "bad offset",
			yaml: "name: n\ndescription: d\nstart: 2026-03-02\nsteps: [{advance: tomorrow}]\n",
			want: "invalid duration",
		},
		{
			name: "edit without deadline",
			yaml: "name: n\ndescription: d\nstart: 2026-03-02\nsteps: [{resolve: {goal: p, as: edit}}]\n",
			want: "edit needs a deadline",
		},
		{
			name: "unknown resolution",
			yaml: "name: n\ndescription: d\nstart: 2026-03-02\nsteps: [{resolve: {goal: p, as: maybe}}]\n",
			want: `unknown resolution "maybe"`,
		},
		{
			name: "missing goal",
			yaml: "name: n\ndescription: d\nstart: 2026-03-02\nsteps: [{ack: {index: 1}}]\n",
			want: "ack: goal is required",
		},
		{
			name: "unknown error code",
			yaml: "name: n\ndescription: d\nstart: 2026-03-02\nsteps: [{advance: 1d, error: OOPS}]\n",
			want: `unknown error code "OOPS"`,
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nstart: 2026-03-02\nsteps: [{advance: 1d}]\nassertions: [{type: vibes}]\n",
			want: `unknown assertion type "vibes"`,
		},
		{
			name: "runs without count",
			yaml: "name: n\ndescription: d\nstart: 2026-03-02\nsteps: [{advance: 1d}]\nassertions: [{type: runs, goal: p}]\n",
			want: "count must be set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesPlanFile(t *testing.T) {
	dir := t.TempDir()
	plan := `goal: g: {title: "G", start: "2026-03-02", deadline: "2026-03-09"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plan.cue"), []byte(plan), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s.yaml"), []byte(minimalScenario+"plan_file: plan.cue\n"), 0o644))

	s, err := LoadScenario(filepath.Join(dir, "s.yaml"))
	require.NoError(t, err)
	assert.Equal(t, plan, s.Plan)
	assert.Equal(t, filepath.Join(dir, "plan.cue"), s.PlanFile)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Testdata(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		_, err := LoadScenario(f)
		assert.NoError(t, err, f)
	}
}
