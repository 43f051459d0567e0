package compiler

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/goalclock/internal/model"
)

// Validate checks a compiled plan without a store: struct rules on every
// draft, start before deadline, and bounds against parents declared in the
// same plan. Returns all findings (does not fail-fast). Rules that need
// existing goals are left to the engine at import time.
func Validate(plan *Plan) []ValidationError {
	var errs []ValidationError

	byLabel := make(map[string]PlanGoal, len(plan.Goals))
	for _, g := range plan.Goals {
		byLabel[g.Label] = g
	}

	for _, g := range plan.Goals {
		field := "goal." + g.Label
		errs = append(errs, shapeErrors(field, g.Line, g.Draft)...)

		d := g.Draft
		if d.Status == model.StatusDraft {
			continue
		}
		if d.Deadline != nil && !d.StartDate.IsZero() && d.StartDate.After(*d.Deadline) {
			errs = append(errs, ValidationError{
				Field:   field + ".deadline",
				Message: fmt.Sprintf("start %s is after deadline %s", stamp(d.StartDate), stamp(*d.Deadline)),
				Code:    ErrCodeDates,
				Line:    g.Line,
			})
		}
		parent, ok := byLabel[g.Parent]
		if !ok || parent.Draft.Status == model.StatusDraft {
			continue
		}
		pd := parent.Draft
		if !d.StartDate.IsZero() && !pd.StartDate.IsZero() && d.StartDate.Before(pd.StartDate) {
			errs = append(errs, ValidationError{
				Field:   field + ".start",
				Message: fmt.Sprintf("starts before parent %s", parent.Label),
				Code:    ErrCodeParent,
				Line:    g.Line,
			})
		}
		if d.Deadline != nil && pd.Deadline != nil && d.Deadline.After(*pd.Deadline) {
			errs = append(errs, ValidationError{
				Field:   field + ".deadline",
				Message: fmt.Sprintf("deadline is after parent %s deadline", parent.Label),
				Code:    ErrCodeParent,
				Line:    g.Line,
			})
		}
	}

	for _, r := range plan.Recurrences {
		field := "recurrence." + r.Label
		errs = append(errs, shapeErrors(field, r.Line, r.Draft)...)
		if _, err := r.Draft.Rule.Build(r.Draft.Anchor); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: ErrCodeRule, Line: r.Line})
		}
	}

	return errs
}

func shapeErrors(field string, line int, v any) []ValidationError {
	err := model.ValidateStruct(v)
	if err == nil {
		return nil
	}
	var se *model.ShapeError
	if !errors.As(err, &se) {
		return []ValidationError{{Field: field, Message: err.Error(), Code: ErrCodeShape, Line: line}}
	}
	out := make([]ValidationError, 0, len(se.Issues))
	for _, is := range se.Issues {
		rule := is.Rule
		if is.Param != "" {
			rule += "=" + is.Param
		}
		out = append(out, ValidationError{
			Field:   field + "." + is.Field,
			Message: "violates " + rule,
			Code:    ErrCodeShape,
			Line:    line,
		})
	}
	return out
}

func stamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
