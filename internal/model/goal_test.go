package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestComputeTightlyBound(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		goal Goal
		want bool
	}{
		{"time exact", Goal{Kind: KindTime, StartDate: start, Deadline: ptr(start.Add(time.Hour)), CriteriaTime: time.Hour}, true},
		{"event exact", Goal{Kind: KindEvent, StartDate: start, Deadline: ptr(start.Add(time.Hour)), CriteriaTime: time.Hour}, true},
		{"time loose", Goal{Kind: KindTime, StartDate: start, Deadline: ptr(start.Add(2 * time.Hour)), CriteriaTime: time.Hour}, false},
		{"no deadline", Goal{Kind: KindTime, StartDate: start, CriteriaTime: time.Hour}, false},
		{"task kind", Goal{Kind: KindTask, StartDate: start, Deadline: ptr(start.Add(time.Hour)), CriteriaTime: time.Hour}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.goal.ComputeTightlyBound())
		})
	}
}

func TestCriteriaMet(t *testing.T) {
	timed := Goal{Kind: KindTime, CriteriaTime: time.Hour, Progress: Progress{Accumulated: 59 * time.Minute}}
	assert.False(t, timed.CriteriaMet())
	timed.Progress.Accumulated = time.Hour
	assert.True(t, timed.CriteriaMet())

	task := Goal{Kind: KindTask}
	assert.False(t, task.CriteriaMet(), "empty checklist is never met")
	task.Progress.Checklist = []ChecklistItem{{Text: "a", Done: true}, {Text: "b"}}
	assert.False(t, task.CriteriaMet())
	task.Progress.Checklist[1].Done = true
	assert.True(t, task.CriteriaMet())

	assert.False(t, (&Goal{Kind: KindWindow}).CriteriaMet())
}

func TestExpiredAt(t *testing.T) {
	dl := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g := Goal{Deadline: &dl}
	assert.False(t, g.ExpiredAt(dl.Add(-time.Nanosecond)))
	assert.True(t, g.ExpiredAt(dl))
	assert.False(t, (&Goal{}).ExpiredAt(dl), "deadline-less goals never expire")
}

func TestGoalPatchApply(t *testing.T) {
	dl := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g := Goal{Title: "old", Deadline: &dl, Progress: Progress{Checklist: []ChecklistItem{{Text: "x"}}}}

	out := GoalPatch{Title: ptr("new"), ClearDeadline: true}.Apply(g)
	assert.Equal(t, "new", out.Title)
	assert.Nil(t, out.Deadline)
	assert.Equal(t, "old", g.Title)
	require.NotNil(t, g.Deadline)

	later := dl.Add(time.Hour)
	out = GoalPatch{Deadline: &later}.Apply(g)
	assert.Equal(t, later, *out.Deadline)
	assert.Equal(t, dl, *g.Deadline)
}

func TestGoalCloneDoesNotAlias(t *testing.T) {
	g := Goal{
		ChildIDs:  []string{"a"},
		Progress:  Progress{Checklist: []ChecklistItem{{Text: "x"}}},
		Callbacks: CallbackSets{OnFinally: []Callback{Automatic("feed_time", map[string]string{"amount": "1h"})}},
	}
	c := g.Clone()
	c.ChildIDs[0] = "b"
	c.Progress.Checklist[0].Done = true
	c.Callbacks.OnFinally[0].Params["amount"] = "2h"

	assert.Equal(t, "a", g.ChildIDs[0])
	assert.False(t, g.Progress.Checklist[0].Done)
	assert.Equal(t, "1h", g.Callbacks.OnFinally[0].Params["amount"])
}

func TestSetForOutcome(t *testing.T) {
	set, ok := SetForOutcome(OutcomeSuccess)
	assert.True(t, ok)
	assert.Equal(t, SetSuccess, set)

	set, ok = SetForOutcome(OutcomeFailure)
	assert.True(t, ok)
	assert.Equal(t, SetFailure, set)

	_, ok = SetForOutcome(OutcomeKilled)
	assert.False(t, ok)
}
