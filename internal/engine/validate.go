package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// checkGoal enforces the write-time invariants on a goal about to be
// inserted or updated. It normalizes the title and derives TightlyBound
// in place. Drafts are exempt from the date invariants.
func (e *Engine) checkGoal(ctx context.Context, tx *store.Tx, g *model.Goal, existing bool) error {
	g.Title = model.NormalizeTitle(g.Title)
	if strings.TrimSpace(g.Title) == "" {
		return validationError(g.ID, InvariantShape, "title must not be empty", "title")
	}

	if err := checkCriteria(g); err != nil {
		return err
	}
	if err := e.checkCallbacks(g.ID, g.Callbacks); err != nil {
		return err
	}

	var parent *model.Goal
	if g.ParentID != "" {
		p, err := e.checkParent(ctx, tx, g.ID, g.ParentID)
		if err != nil {
			return err
		}
		parent = &p
	}

	if g.Status != model.StatusDraft {
		if g.Deadline != nil && g.StartDate.After(*g.Deadline) {
			return validationError(g.ID, InvariantDates,
				fmt.Sprintf("start %s is after deadline %s", g.StartDate.Format(timeLayout), g.Deadline.Format(timeLayout)),
				"start_date", "deadline")
		}
		if parent != nil && parent.Status != model.StatusDraft {
			if err := checkWithinParent(g, parent); err != nil {
				return err
			}
		}
	}

	if existing {
		if err := e.checkChildren(ctx, tx, g); err != nil {
			return err
		}
	}
	if err := e.checkChecklistLinks(ctx, tx, g); err != nil {
		return err
	}

	g.TightlyBound = g.ComputeTightlyBound()
	return nil
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func checkCriteria(g *model.Goal) error {
	if g.Kind.IsTimeBased() && g.CriteriaTime <= 0 {
		return validationError(g.ID, InvariantCriteria,
			fmt.Sprintf("%s goal needs a positive criteria time", g.Kind), "criteria_time")
	}
	if g.Kind == model.KindWindow {
		if g.Window == nil {
			return validationError(g.ID, InvariantWindowNumeric, "window goal needs a window spec", "window")
		}
		if g.Window.Mode == "" {
			g.Window.Mode = model.EvalContinuous
		}
		if err := model.ValidateStruct(*g.Window); err != nil {
			return shapeError(g.ID, err)
		}
	} else if g.Window != nil {
		return validationError(g.ID, InvariantCriteria, "only window goals carry a window spec", "window")
	}
	return nil
}

// checkCallbacks verifies every automatic callback names a registered
// action with acceptable parameters.
func (e *Engine) checkCallbacks(id string, sets model.CallbackSets) error {
	for _, name := range []model.SetName{model.SetSuccess, model.SetFailure, model.SetFinally} {
		for i, cb := range sets.Set(name) {
			if err := model.ValidateStruct(cb); err != nil {
				return shapeError(id, err)
			}
			if cb.Kind != model.CallbackAutomatic {
				continue
			}
			field := fmt.Sprintf("callbacks.%s[%d]", name, i)
			action, ok := e.actions.Lookup(cb.Action)
			if !ok {
				return validationError(id, InvariantAction, fmt.Sprintf("unknown action %q", cb.Action), field)
			}
			if action.Validate != nil {
				if err := action.Validate(cb.Params); err != nil {
					return validationError(id, InvariantAction, fmt.Sprintf("%s: %v", cb.Action, err), field)
				}
			}
		}
	}
	return nil
}

// checkParent loads the parent and rejects terminal or finalizing parents
// and cycles.
func (e *Engine) checkParent(ctx context.Context, tx *store.Tx, id, parentID string) (model.Goal, error) {
	if parentID == id && id != "" {
		return model.Goal{}, validationError(id, InvariantTree, "goal cannot be its own parent", "parent_id")
	}
	parent, err := tx.GetGoal(ctx, parentID)
	if err != nil {
		return model.Goal{}, notFound(err, "parent goal", parentID)
	}
	if parent.Status.IsTerminal() || parent.Status == model.StatusPendingFinalization {
		return model.Goal{}, stateError(id, "parent %s is %s", parentID, parent.Status)
	}
	if id == "" {
		return parent, nil
	}
	// Walk up from the parent; meeting id means the new parent is a descendant.
	for cur := parent; cur.ParentID != ""; {
		if cur.ParentID == id {
			return model.Goal{}, validationError(id, InvariantTree, "parent is a descendant of the goal", "parent_id")
		}
		cur, err = tx.GetGoal(ctx, cur.ParentID)
		if err != nil {
			return model.Goal{}, err
		}
	}
	return parent, nil
}

func checkWithinParent(g, parent *model.Goal) error {
	if g.StartDate.Before(parent.StartDate) {
		return validationError(g.ID, InvariantParentBounds,
			fmt.Sprintf("start %s is before parent start %s", g.StartDate.Format(timeLayout), parent.StartDate.Format(timeLayout)),
			"start_date")
	}
	if g.Deadline != nil && parent.Deadline != nil && g.Deadline.After(*parent.Deadline) {
		return validationError(g.ID, InvariantParentBounds,
			fmt.Sprintf("deadline %s is after parent deadline %s", g.Deadline.Format(timeLayout), parent.Deadline.Format(timeLayout)),
			"deadline")
	}
	return nil
}

// checkChildren rejects an edit that shrinks a goal's bounds below any of
// its live, dated children.
func (e *Engine) checkChildren(ctx context.Context, tx *store.Tx, g *model.Goal) error {
	if g.Status == model.StatusDraft {
		return nil
	}
	children, err := tx.QueryGoals(ctx, model.GoalFilter{ParentID: g.ID})
	if err != nil {
		return err
	}
	for i := range children {
		c := &children[i]
		if c.Status == model.StatusDraft || c.Status.IsTerminal() {
			continue
		}
		if err := checkWithinParent(c, g); err != nil {
			return validationError(g.ID, InvariantChildBounds,
				fmt.Sprintf("bounds would exclude child %s", c.ID), "start_date", "deadline")
		}
	}
	return nil
}

func (e *Engine) checkChecklistLinks(ctx context.Context, tx *store.Tx, g *model.Goal) error {
	for i, item := range g.Progress.Checklist {
		if item.LinkedGoalID == "" {
			continue
		}
		field := fmt.Sprintf("checklist[%d].linked_goal_id", i)
		if g.Kind != model.KindTask {
			return validationError(g.ID, InvariantCriteria, "only task goals link checklist items", field)
		}
		child, err := tx.GetGoal(ctx, item.LinkedGoalID)
		if err != nil {
			if IsNotFound(notFound(err, "goal", item.LinkedGoalID)) {
				return validationError(g.ID, InvariantTree, "linked goal does not exist", field)
			}
			return err
		}
		if child.ParentID != g.ID || g.ID == "" {
			return validationError(g.ID, InvariantTree, "linked goal is not a child", field)
		}
	}
	return nil
}
