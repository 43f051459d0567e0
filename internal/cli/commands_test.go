package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportCommand(t *testing.T) {
	env := newCLIEnv(t)
	path := env.writeFile(t, "plan.cue", parentChildPlan)

	out := env.mustRun(t, NewImportCommand, path)
	assert.Contains(t, out, "Imported 2 goal(s), 0 recurrence(s)")
	assert.Contains(t, out, "goal c = g-2")
	assert.Contains(t, out, "goal p = g-1")
}

func TestImportCommandInvalidPlanCreatesNothing(t *testing.T) {
	env := newCLIEnv(t)
	path := env.writeFile(t, "plan.cue", `goal: a: {title: "A", start: "2026-03-10", deadline: "2026-03-02"}`)

	out, err := env.run(t, NewImportCommand, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")

	out = env.mustRun(t, NewGoalCommand, "list")
	assert.Contains(t, out, "No goals.")
}

func TestGoalListFilters(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, parentChildPlan)

	out := env.mustRun(t, NewGoalCommand, "list")
	assert.Contains(t, out, "g-1")
	assert.Contains(t, out, "Parent")
	assert.Contains(t, out, "Child")

	out = env.mustRun(t, NewGoalCommand, "list", "--roots")
	assert.Contains(t, out, "Parent")
	assert.NotContains(t, out, "Child")

	out = env.mustRun(t, NewGoalCommand, "list", "--status", "dead")
	assert.Contains(t, out, "No goals.")

	out = env.mustRun(t, NewGoalCommand, "list", "--from", "2026-03-15", "--to", "2026-03-20")
	assert.Contains(t, out, "Parent")
	assert.NotContains(t, out, "Child")

	_, err := env.run(t, NewGoalCommand, "list", "--status", "sleeping")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown status "sleeping"`)
}

func TestGoalShowJSON(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, parentChildPlan)
	env.opts.Format = "json"

	out := env.mustRun(t, NewGoalCommand, "show", "g-2")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	goal, ok := data["goal"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "g-2", goal["id"])
	assert.Equal(t, "g-1", goal["parent_id"])
	assert.Equal(t, "active", goal["status"])
}

func TestGoalShowUnknown(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, NewGoalCommand, "show", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]")
}

func TestAdvanceQueueAndResolve(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, parentChildPlan)

	out := env.mustRun(t, NewAdvanceCommand)
	assert.Contains(t, out, "Nothing needs attention.")

	env.clock.Set(t0.Add(8 * 24 * time.Hour))
	out = env.mustRun(t, NewAdvanceCommand)
	assert.Contains(t, out, "Now: 2026-03-10 09:00")
	assert.Contains(t, out, "Resolution queue (1):")
	assert.Contains(t, out, "g-2  expired 2026-03-10 00:00  Child")

	// Active goals are frozen while the queue holds an expired goal.
	out, err := env.run(t, NewGoalCommand, "checkoff", "g-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [STATE]")

	// Only queued goals can be resolved.
	out, err = env.run(t, NewQueueCommand, "resolve", "g-1", "success")
	require.Error(t, err)
	assert.Contains(t, out, "Error [CONFLICT]")

	out = env.mustRun(t, NewQueueCommand, "resolve", "g-2", "success")
	assert.Contains(t, out, "g-2 is resolved-success")

	out = env.mustRun(t, NewQueueCommand, "list")
	assert.Contains(t, out, "Queue is empty.")
}

func TestAdvanceAtJSON(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, parentChildPlan)
	env.opts.Format = "json"

	out := env.mustRun(t, NewAdvanceCommand, "--at", "2026-03-11")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2026-03-11T00:00:00Z", data["now"])
	queue, ok := data["queue"].([]any)
	require.True(t, ok)
	require.Len(t, queue, 1)
	assert.Equal(t, "g-2", queue[0].(map[string]any)["goal_id"])
}

func TestAdvanceBadTime(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, NewAdvanceCommand, "--at", "next tuesday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueueResolveEdit(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, parentChildPlan)
	env.clock.Set(t0.Add(8 * 24 * time.Hour))
	env.mustRun(t, NewAdvanceCommand)

	_, err := env.run(t, NewQueueCommand, "resolve", "g-2", "edit")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "edit needs --deadline or --no-deadline")

	_, err = env.run(t, NewQueueCommand, "resolve", "g-2", "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown resolution "maybe"`)

	env.mustRun(t, NewQueueCommand, "resolve", "g-2", "edit", "--deadline", "2026-03-20")

	out := env.mustRun(t, NewQueueCommand, "list")
	assert.Contains(t, out, "Queue is empty.")
	out = env.mustRun(t, NewGoalCommand, "show", "g-2")
	assert.Contains(t, out, "Deadline: 2026-03-20 00:00")
}

func TestCheckOffAndAcknowledge(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, parentChildPlan)

	out := env.mustRun(t, NewGoalCommand, "checkoff", "g-1")
	assert.Contains(t, out, "g-1 is pending-finalization")
	assert.Contains(t, out, "g-1#1  on_finally: debrief  (blocking)")
	assert.Contains(t, out, "killed g-2")

	out = env.mustRun(t, NewAckCommand)
	assert.Contains(t, out, "g-1#1  on_finally: debrief")

	out = env.mustRun(t, NewGoalCommand, "show", "g-1")
	assert.Contains(t, out, "Awaiting acknowledgment:")

	out = env.mustRun(t, NewAckCommand, "g-1", "1")
	assert.Contains(t, out, "Acknowledged g-1#1: debrief")
	assert.Contains(t, out, "g-1 is resolved-success")

	out = env.mustRun(t, NewAckCommand)
	assert.Contains(t, out, "Nothing to acknowledge.")

	out = env.mustRun(t, NewGoalCommand, "show", "g-2")
	assert.Contains(t, out, "Status:   dead")
}

func TestAckArgs(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, NewAckCommand, "g-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 0 or 2 arg(s)")

	_, err = env.run(t, NewAckCommand, "g-1", "zero")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGoalDelete(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, parentChildPlan)

	out, err := env.run(t, NewGoalCommand, "delete", "g-1")
	require.Error(t, err)
	assert.Contains(t, out, "Error [STATE]")

	out = env.mustRun(t, NewGoalCommand, "delete", "g-1", "--cascade")
	assert.Contains(t, out, "Removed g-1, g-2")

	out = env.mustRun(t, NewGoalCommand, "list")
	assert.Contains(t, out, "No goals.")
}

func TestGoalFeed(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, `
goal: study: {
	title:         "Study"
	kind:          "time"
	start:         "2026-03-02"
	deadline:      "2026-03-09"
	criteria_time: "2h"
}
`)

	out := env.mustRun(t, NewGoalCommand, "feed", "g-1", "90m")
	assert.Contains(t, out, "g-1: 1h30m0s of 2h0m0s")
	assert.NotContains(t, out, "criteria met")

	out = env.mustRun(t, NewGoalCommand, "feed", "g-1", "30m")
	assert.Contains(t, out, "criteria met")

	_, err := env.run(t, NewGoalCommand, "feed", "g-1", "a while")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGoalCheck(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, `
goal: paper: {
	title:     "Paper"
	start:     "2026-03-02"
	deadline:  "2026-03-09"
	checklist: ["outline", "draft"]
}
`)

	out := env.mustRun(t, NewGoalCommand, "check", "g-1", "0")
	assert.Contains(t, out, "[x] 0. outline")
	assert.Contains(t, out, "[ ] 1. draft")

	out = env.mustRun(t, NewGoalCommand, "check", "g-1", "0", "--undo")
	assert.Contains(t, out, "[ ] 0. outline")

	out, err := env.run(t, NewGoalCommand, "check", "g-1", "5")
	require.Error(t, err)
	assert.Contains(t, out, "Error [VALIDATION]")
}

func TestLogCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, `
goal: exercise: {
	title:    "Exercise"
	kind:     "window"
	start:    "2026-03-02"
	deadline: "2026-04-01"
	window: {duration: "7d", threshold: 3, interval: "1d"}
}
goal: chores: {
	title:    "Chores"
	start:    "2026-03-02"
	deadline: "2026-04-01"
}
`)

	out := env.mustRun(t, NewLogCommand, "g-1", "1")
	assert.Contains(t, out, "Logged 1 on g-1 at 2026-03-02 09:00")

	out = env.mustRun(t, NewLogCommand, "g-1", "2.5", "--at", "2026-03-02T08:00:00Z")
	assert.Contains(t, out, "Logged 2.5 on g-1 at 2026-03-02 08:00")

	out, err := env.run(t, NewLogCommand, "g-2", "1")
	require.Error(t, err)
	assert.Contains(t, out, "Error [VALIDATION]")

	_, err = env.run(t, NewLogCommand, "g-1", "lots")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDraftCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, `
goal: trip: {
	title:     "Plan trip"
	draft:     true
	tentative: "2026-03-03"
}
`)

	out := env.mustRun(t, NewDraftCommand, "due")
	assert.Contains(t, out, "g-1  tentative 2026-03-03 00:00  Plan trip")

	out = env.mustRun(t, NewDraftCommand, "due", "--lead", "1h")
	assert.Contains(t, out, "No drafts due.")

	out = env.mustRun(t, NewDraftCommand, "promote", "g-1", "--start", "2026-03-03", "--deadline", "2026-03-10")
	assert.Contains(t, out, "Promoted g-1")
	assert.Contains(t, out, "active")

	out = env.mustRun(t, NewDraftCommand, "revert", "g-1", "--tentative", "2026-04-01")
	assert.Contains(t, out, "Reverted g-1 to draft")

	out = env.mustRun(t, NewGoalCommand, "show", "g-1")
	assert.Contains(t, out, "Tentative: 2026-04-01 00:00")

	_, err := env.run(t, NewDraftCommand, "promote", "g-1", "--start", "someday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecurrenceList(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, NewRecurrenceCommand, "list")
	assert.Contains(t, out, "No recurrences.")

	env.importPlan(t, `
goal: fit: {title: "Fitness", start: "2026-03-02", deadline: "2026-06-01"}
recurrence: run: {
	parent: "fit"
	anchor: "2026-03-02T09:00:00Z"
	every: {unit: "week"}
	count: 4
	template: {title: "Weekly run", deadline_offset: "2d"}
}
`)

	out = env.mustRun(t, NewRecurrenceCommand, "list")
	assert.Contains(t, out, "g-2")
	assert.Contains(t, out, "every 1 week")
	assert.Contains(t, out, "4 times")
	assert.Contains(t, out, "Weekly run")

	out = env.mustRun(t, NewAdvanceCommand)
	assert.Contains(t, out, "Spawned: g-3")

	out = env.mustRun(t, NewRecurrenceCommand, "list")
	assert.Contains(t, out, "spawned through 2026-03-02 09:00")
}

func TestPurgeCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.importPlan(t, `goal: done: {title: "Done soon", start: "2026-03-02", deadline: "2026-03-09"}`)

	out := env.mustRun(t, NewPurgeCommand)
	assert.Contains(t, out, "Retention is disabled")

	env.mustRun(t, NewGoalCommand, "checkoff", "g-1")
	env.clock.Advance(3 * 24 * time.Hour)

	out = env.mustRun(t, NewPurgeCommand, "--older-than", "5d")
	assert.Contains(t, out, "Purged 0 goal(s)")

	out = env.mustRun(t, NewPurgeCommand, "--older-than", "1d")
	assert.Contains(t, out, "Purged 1 goal(s)")

	out = env.mustRun(t, NewGoalCommand, "list")
	assert.Contains(t, out, "No goals.")
}
