package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStructAcceptsDraft(t *testing.T) {
	d := GoalDraft{
		Title: "Write report",
		Kind:  KindTask,
		Callbacks: CallbackSets{
			OnSuccess: []Callback{Manual("celebrate")},
			OnFinally: []Callback{Automatic("extend_deadline", map[string]string{"by": "1h"})},
		},
	}
	assert.NoError(t, ValidateStruct(d))
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	d := GoalDraft{
		Title:  "  ",
		Kind:   "chore",
		Window: &WindowSpec{Duration: 0, Threshold: 1, Mode: EvalInterval, Interval: time.Hour},
		Callbacks: CallbackSets{
			OnFailure: []Callback{{Kind: CallbackManual}},
		},
	}
	err := ValidateStruct(d)
	require.Error(t, err)

	var se *ShapeError
	require.True(t, errors.As(err, &se))
	assert.ElementsMatch(t,
		[]string{"title", "kind", "window.duration", "callbacks.on_failure[0].text"},
		se.Fields())
}

func TestValidateStructRecurrenceDraft(t *testing.T) {
	d := RecurrenceDraft{
		Anchor:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Rule:     RuleSpec{Type: RuleEvery, Unit: "week"},
		End:      EndCondition{Type: EndDate},
		Template: Template{Title: "Gym", Kind: KindTask},
	}
	err := ValidateStruct(d)
	var se *ShapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"end.until"}, se.Fields())
}
