package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/goalclock/internal/engine"
	"github.com/roach88/goalclock/internal/model"
)

// Assertion checks the session state after the last step.
type Assertion struct {
	// Type selects the check: status, queue, instances, maintained, runs,
	// acks, absent, deadline.
	Type string `yaml:"type"`

	Goal string `yaml:"goal,omitempty"`

	// Status is the expected goal status (status).
	Status string `yaml:"status,omitempty"`

	// Goals is the expected resolution queue order (queue).
	Goals []string `yaml:"goals,omitempty"`

	// Recurrence and Indices name the expected spawned occurrences (instances).
	Recurrence string `yaml:"recurrence,omitempty"`
	Indices    []int  `yaml:"indices,omitempty"`

	// At is an offset from the scenario start (maintained, deadline).
	At         string `yaml:"at,omitempty"`
	Maintained *bool  `yaml:"maintained,omitempty"`

	// Set narrows runs to one callback set; Count is the expected number of
	// automatic runs (runs) or open acknowledgments (acks).
	Set   string `yaml:"set,omitempty"`
	Count *int   `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus     = "status"
	AssertQueue      = "queue"
	AssertInstances  = "instances"
	AssertMaintained = "maintained"
	AssertRuns       = "runs"
	AssertAcks       = "acks"
	AssertAbsent     = "absent"
	AssertDeadline   = "deadline"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Goal     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s", e.Type)
	if e.Goal != "" {
		fmt.Fprintf(&buf, " %s", e.Goal)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

func validateAssertion(a Assertion) error {
	needGoal := func() error {
		if a.Goal == "" {
			return fmt.Errorf("goal is required for %s", a.Type)
		}
		return nil
	}
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertStatus:
		if a.Status == "" {
			return fmt.Errorf("status is required for status")
		}
		return needGoal()
	case AssertQueue:
		return nil
	case AssertInstances:
		if a.Recurrence == "" {
			return fmt.Errorf("recurrence is required for instances")
		}
		return nil
	case AssertMaintained:
		if a.At == "" || a.Maintained == nil {
			return fmt.Errorf("at and maintained are required for maintained")
		}
		return needGoal()
	case AssertRuns, AssertAcks:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("count must be set and non-negative for %s", a.Type)
		}
		return needGoal()
	case AssertAbsent:
		return needGoal()
	case AssertDeadline:
		if a.At == "" {
			return fmt.Errorf("at is required for deadline")
		}
		return needGoal()
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// EvaluateAssertions checks every assertion against the session and
// returns one message per failure.
func EvaluateAssertions(ctx context.Context, h *Harness, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	fail := func(expected, actual any) error {
		return &AssertionError{Type: a.Type, Goal: a.Goal, Expected: fmt.Sprint(expected), Actual: fmt.Sprint(actual)}
	}

	switch a.Type {
	case AssertQueue:
		entries, err := h.engine.ResolutionQueue(ctx)
		if err != nil {
			return err
		}
		got := make([]string, len(entries))
		for i, e := range entries {
			got[i] = h.Name(ctx, e.GoalID)
		}
		want := a.Goals
		if want == nil {
			want = []string{}
		}
		if !reflect.DeepEqual(want, got) {
			return fail(want, got)
		}
		return nil

	case AssertInstances:
		got, err := h.instanceIndices(ctx, a.Recurrence)
		if err != nil {
			return err
		}
		want := a.Indices
		if want == nil {
			want = []int{}
		}
		if !reflect.DeepEqual(want, got) {
			return fail(want, got)
		}
		return nil

	case AssertAbsent:
		id, err := h.Lookup(ctx, a.Goal)
		if err != nil {
			return nil
		}
		_, err = h.engine.Goal(ctx, id)
		if engine.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		return fail("no such goal", "goal "+id+" exists")
	}

	id, err := h.Lookup(ctx, a.Goal)
	if err != nil {
		return err
	}

	switch a.Type {
	case AssertStatus:
		g, err := h.engine.Goal(ctx, id)
		if err != nil {
			return err
		}
		if string(g.Status) != a.Status {
			return fail(a.Status, g.Status)
		}

	case AssertDeadline:
		g, err := h.engine.Goal(ctx, id)
		if err != nil {
			return err
		}
		want := h.at(a.At)
		if g.Deadline == nil {
			return fail(want, "no deadline")
		}
		if !g.Deadline.Equal(want) {
			return fail(want, *g.Deadline)
		}

	case AssertMaintained:
		ev, err := h.engine.Evaluate(ctx, id, h.at(a.At))
		if err != nil {
			return err
		}
		if ev.Maintained != *a.Maintained {
			return fail(
				fmt.Sprintf("maintained=%t", *a.Maintained),
				fmt.Sprintf("maintained=%t (sum %s of %s)", ev.Maintained, formatFloat(ev.Sum), formatFloat(ev.Threshold)),
			)
		}

	case AssertRuns:
		runs, err := h.engine.CallbackRuns(ctx, id)
		if err != nil {
			return err
		}
		n := 0
		for _, r := range runs {
			if a.Set == "" || string(r.Set) == a.Set {
				n++
			}
		}
		if n != *a.Count {
			return fail(*a.Count, n)
		}

	case AssertAcks:
		acks, err := h.engine.PendingAcks(ctx)
		if err != nil {
			return err
		}
		n := 0
		for _, ack := range acks {
			if ack.GoalID == id && !ack.Acknowledged && (a.Set == "" || ack.Set == model.SetName(a.Set)) {
				n++
			}
		}
		if n != *a.Count {
			return fail(*a.Count, n)
		}
	}
	return nil
}
