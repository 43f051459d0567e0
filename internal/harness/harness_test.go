package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runYAML(t *testing.T, src string) *Result {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, f := range files {
		t.Run(f, func(t *testing.T) {
			s, err := LoadScenario(f)
			require.NoError(t, err)

			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
			assert.Len(t, result.Trace, len(s.Steps))
		})
	}
}

func TestRun_QueueOrderTrace(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/queue_order.yaml")
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	first := result.Trace[0]
	assert.Equal(t, "advance", first.Op)
	assert.Equal(t, "6d", first.At)
	assert.Empty(t, first.Effects)

	second := result.Trace[1]
	assert.Equal(t, "7d", second.At)
	assert.Contains(t, second.Effects, "queue c,p")

	refused := result.Trace[2]
	assert.Equal(t, "resolve", refused.Op)
	assert.Equal(t, "p", refused.Goal)
	assert.Equal(t, "STATE", refused.Error)

	assert.Equal(t, []string{"status c resolved-success"}, result.Trace[3].Effects)
	assert.Equal(t, []string{"status p resolved-failure"}, result.Trace[4].Effects)
}

func TestRun_SpawnedInstancesAreNamed(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/weekly_omission.yaml")
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	spawned := func(step int) []string {
		var out []string
		for _, e := range result.Trace[step].Effects {
			if strings.HasPrefix(e, "spawned") {
				out = append(out, e)
			}
		}
		return out
	}

	// The second instance waits until the expired first one is resolved.
	assert.Equal(t, []string{"spawned review#0"}, spawned(0))
	assert.Empty(t, spawned(1))
	assert.Equal(t, []string{"spawned review#2"}, spawned(3))
	assert.Empty(t, spawned(4))
}

func TestRun_CascadeDeleteNotices(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/cascade_delete.yaml")
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	effects := result.Trace[1].Effects
	assert.Contains(t, effects, "removed house")
	assert.Contains(t, effects, "removed kitchen")
	assert.Contains(t, effects, "removed tiles")
	assert.Contains(t, effects, "notice kitchen on_finally: return the tile samples")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	result := runYAML(t, `
name: refused
description: "checking off an unknown goal"
start: 2026-03-02T09:00:00Z
steps:
  - checkoff: ghost
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `unknown goal "ghost"`)
	assert.Equal(t, "HARNESS", result.Trace[0].Error)
}

func TestRun_ExpectedErrorThatSucceedsFails(t *testing.T) {
	result := runYAML(t, `
name: too_lenient
description: "an advance never fails"
start: 2026-03-02T09:00:00Z
steps:
  - advance: 1d
    error: STATE
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected STATE error, got success")
}

func TestRun_WrongErrorCodeFails(t *testing.T) {
	result := runYAML(t, `
name: wrong_code
description: "deleting a parent without cascade is a state error"
start: 2026-03-02T09:00:00Z
plan: |
  goal: a: {title: "A", start: "2026-03-02", deadline: "2026-03-30"}
  goal: b: {title: "B", parent: "a", start: "2026-03-02", deadline: "2026-03-20"}
steps:
  - delete: {goal: a}
    error: CONFLICT
`)
	assert.False(t, result.Pass)
	assert.Equal(t, "STATE", result.Trace[0].Error)
}

func TestRun_InvalidPlan(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_plan
description: "deadline before start"
start: 2026-03-02T09:00:00Z
plan: |
  goal: a: {title: "A", start: "2026-03-10", deadline: "2026-03-02"}
steps:
  - advance: 1d
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply plan")
}

func TestRun_ActionNameTaken(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: dup_action
description: "built-in names are taken"
start: 2026-03-02T09:00:00Z
actions: [extend_deadline]
steps:
  - advance: 1d
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register action")
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "0s", formatOffset(0))
	assert.Equal(t, "2d", formatOffset(48*60*60*1e9))
	assert.Equal(t, "36h0m0s", formatOffset(36*60*60*1e9))
}
