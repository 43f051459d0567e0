package compiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/goalclock/internal/model"
)

func day(n int) time.Time {
	return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func ptr(t time.Time) *time.Time { return &t }

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_ParentBounds(t *testing.T) {
	plan := &Plan{Goals: []PlanGoal{
		{Label: "p", Draft: model.GoalDraft{Title: "p", Kind: model.KindTask, Status: model.StatusActive, StartDate: day(0), Deadline: ptr(day(10))}},
		{Label: "late", Parent: "p", Draft: model.GoalDraft{Title: "late", Kind: model.KindTask, Status: model.StatusActive, StartDate: day(1), Deadline: ptr(day(11))}},
		{Label: "early", Parent: "p", Draft: model.GoalDraft{Title: "early", Kind: model.KindTask, Status: model.StatusActive, StartDate: day(-1), Deadline: ptr(day(2))}},
		{Label: "fine", Parent: "p", Draft: model.GoalDraft{Title: "fine", Kind: model.KindTask, Status: model.StatusActive, StartDate: day(1), Deadline: ptr(day(10))}},
	}}

	errs := Validate(plan)
	require.Len(t, errs, 2)
	assert.Equal(t, "goal.late.deadline", errs[0].Field)
	assert.Equal(t, "goal.early.start", errs[1].Field)
	assert.Equal(t, []string{ErrCodeParent, ErrCodeParent}, codes(errs))
}

func TestValidate_Dates(t *testing.T) {
	plan := &Plan{Goals: []PlanGoal{
		{Label: "x", Line: 3, Draft: model.GoalDraft{Title: "x", Kind: model.KindTask, Status: model.StatusActive, StartDate: day(5), Deadline: ptr(day(1))}},
		{Label: "d", Draft: model.GoalDraft{Title: "d", Kind: model.KindTask, Status: model.StatusDraft, StartDate: day(5), Deadline: ptr(day(1))}},
	}}

	errs := Validate(plan)
	require.Len(t, errs, 1, "drafts are exempt")
	assert.Equal(t, ErrCodeDates, errs[0].Code)
	assert.Equal(t, 3, errs[0].Line)
	assert.Contains(t, errs[0].Error(), "line 3")
}

func TestValidate_Shape(t *testing.T) {
	plan := &Plan{
		Goals: []PlanGoal{
			{Label: "blank", Draft: model.GoalDraft{Title: "", Kind: model.KindTask}},
		},
		Recurrences: []PlanRecurrence{
			{Label: "r", Draft: model.RecurrenceDraft{
				Anchor:   day(0),
				Rule:     model.RuleSpec{Type: model.RuleWeekdays, Weekdays: []string{"funday"}},
				End:      model.EndCondition{Type: model.EndNone},
				Template: model.Template{Title: "t", Kind: model.KindTask},
			}},
		},
	}

	errs := Validate(plan)
	require.Len(t, errs, 2)
	assert.Equal(t, "goal.blank.title", errs[0].Field)
	assert.Equal(t, ErrCodeShape, errs[0].Code)
	assert.Equal(t, "violates required", errs[0].Message)
	assert.Equal(t, ErrCodeRule, errs[1].Code)
}
