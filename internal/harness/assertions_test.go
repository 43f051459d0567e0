package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const assertionPlan = `
name: assertions
description: "failing assertions are reported, passing ones are not"
start: 2026-03-02T09:00:00Z
plan: |
  goal: g: {title: "G", start: "2026-03-02T09:00:00Z", deadline: "2026-03-04T09:00:00Z"}
  goal: w: {
      title: "W"
      kind:  "window"
      start: "2026-03-02T09:00:00Z"
      window: {duration: "1d", threshold: 2, interval: "1d"}
  }
steps:
  - advance: 3d
assertions:
`

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion string
		fails     string
	}{
		{name: "status holds", assertion: "{type: status, goal: g, status: active}"},
		{name: "status differs", assertion: "{type: status, goal: g, status: dead}", fails: "Expected: dead"},
		{name: "queue holds", assertion: "{type: queue, goals: [g]}"},
		{name: "queue differs", assertion: "{type: queue, goals: []}", fails: "assertion failed: queue"},
		{name: "deadline holds", assertion: "{type: deadline, goal: g, at: 2d}"},
		{name: "deadline differs", assertion: "{type: deadline, goal: g, at: 3d}", fails: "assertion failed: deadline g"},
		{name: "maintained", assertion: "{type: maintained, goal: w, at: 1d, maintained: false}"},
		{name: "maintained differs", assertion: "{type: maintained, goal: w, at: 1d, maintained: true}", fails: "sum 0 of 2"},
		{name: "runs", assertion: "{type: runs, goal: g, count: 0}"},
		{name: "acks differ", assertion: "{type: acks, goal: g, count: 1}", fails: "Actual: 0"},
		{name: "absent fails for live goal", assertion: "{type: absent, goal: g}", fails: "exists"},
		{name: "absent holds for unknown label", assertion: "{type: absent, goal: nobody}"},
		{name: "unknown goal", assertion: "{type: status, goal: nobody, status: active}", fails: `unknown goal "nobody"`},
		{name: "unknown recurrence", assertion: "{type: instances, recurrence: nightly}", fails: `unknown recurrence "nightly"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseScenario([]byte(assertionPlan + "  - " + tt.assertion + "\n"))
			require.NoError(t, err)

			result, err := Run(context.Background(), s)
			require.NoError(t, err)

			if tt.fails == "" {
				assert.True(t, result.Pass, result.Errors)
				return
			}
			require.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.fails)
		})
	}
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{Type: "status", Goal: "g", Expected: "active", Actual: "dead"}
	assert.Equal(t, "assertion failed: status g\n  Expected: active\n  Actual: dead", err.Error())
}
