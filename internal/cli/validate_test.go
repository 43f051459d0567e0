package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/goalclock/internal/compiler"
)

func TestValidateValidPlan(t *testing.T) {
	env := newCLIEnv(t)
	path := env.writeFile(t, "plan.cue", parentChildPlan)

	out := env.mustRun(t, NewValidateCommand, path)
	assert.Contains(t, out, "✓ Plan valid (2 goal(s), 0 recurrence(s))")
}

func TestValidateValidPlanJSON(t *testing.T) {
	env := newCLIEnv(t)
	env.opts.Format = "json"
	path := env.writeFile(t, "plan.cue", parentChildPlan)

	out := env.mustRun(t, NewValidateCommand, path)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, float64(2), data["goals"])
}

func TestValidateDatesOutOfOrder(t *testing.T) {
	env := newCLIEnv(t)
	path := env.writeFile(t, "plan.cue", `goal: a: {title: "A", start: "2026-03-10", deadline: "2026-03-02"}`)

	out, err := env.run(t, NewValidateCommand, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrCodeDates)
}

func TestValidateSyntaxError(t *testing.T) {
	env := newCLIEnv(t)
	path := env.writeFile(t, "plan.cue", `goal: a: {title: "A"`)

	out, err := env.run(t, NewValidateCommand, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, compiler.ErrCodeCUE)
	assert.Contains(t, out, "line ")
}

func TestValidateErrorsJSON(t *testing.T) {
	env := newCLIEnv(t)
	env.opts.Format = "json"
	path := env.writeFile(t, "plan.cue", `goal: a: {title: "A", start: "2026-03-10", deadline: "2026-03-02"}`)

	out, err := env.run(t, NewValidateCommand, path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrCodeDates, resp.Error.Code)
}

func TestValidateMissingFile(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, NewValidateCommand, filepath.Join(env.dir, "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read plan")
}
