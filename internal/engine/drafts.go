package engine

import (
	"context"
	"time"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// DraftPromoter watches draft goals and moves them in and out of the
// active set. Drafts are exempt from the date invariants until promoted.
type DraftPromoter struct {
	e *Engine
}

func dueWithin(g model.Goal, now time.Time, lead time.Duration) bool {
	return g.TentativeDate != nil && g.TentativeDate.Sub(now) <= lead
}

// Due lists drafts whose tentative date is within lead of now.
func (p *DraftPromoter) Due(ctx context.Context, tx *store.Tx, now time.Time, lead time.Duration) ([]model.Goal, error) {
	drafts, err := tx.QueryGoals(ctx, model.GoalFilter{Statuses: []model.Status{model.StatusDraft}})
	if err != nil {
		return nil, err
	}
	var out []model.Goal
	for _, g := range drafts {
		if dueWithin(g, now, lead) {
			out = append(out, g)
		}
	}
	return out, nil
}

// Scan is Due plus flagging each returned draft as PromotionDue.
func (p *DraftPromoter) Scan(ctx context.Context, tx *store.Tx, now time.Time, lead time.Duration) ([]model.Goal, error) {
	due, err := p.Due(ctx, tx, now, lead)
	if err != nil {
		return nil, err
	}
	for i := range due {
		if due[i].PromotionDue {
			continue
		}
		due[i].PromotionDue = true
		if err := p.e.Goals.save(ctx, tx, due[i]); err != nil {
			return nil, err
		}
	}
	return due, nil
}

// Promote makes a draft active with concrete dates and rechecks the date
// invariants.
func (p *DraftPromoter) Promote(ctx context.Context, tx *store.Tx, id string, start time.Time, deadline *time.Time) (model.Goal, error) {
	g, err := p.e.Goals.Get(ctx, tx, id)
	if err != nil {
		return model.Goal{}, err
	}
	if g.Status != model.StatusDraft {
		return model.Goal{}, stateError(id, "cannot promote a %s goal", g.Status)
	}

	g.Status = model.StatusActive
	g.StartDate = start.UTC()
	g.Deadline = nil
	if deadline != nil {
		dl := deadline.UTC()
		g.Deadline = &dl
	} else if g.Kind == model.KindEvent {
		dl := g.StartDate.Add(g.CriteriaTime)
		g.Deadline = &dl
	}
	g.TentativeDate = nil
	g.PromotionDue = false

	if err := p.e.checkGoal(ctx, tx, &g, true); err != nil {
		return model.Goal{}, err
	}
	return g, p.e.Goals.save(ctx, tx, g)
}

// RevertToDraft takes an active goal back to draft. A queued goal must be
// resolved instead.
func (p *DraftPromoter) RevertToDraft(ctx context.Context, tx *store.Tx, id string, tentative *time.Time) (model.Goal, error) {
	g, err := p.e.Goals.Get(ctx, tx, id)
	if err != nil {
		return model.Goal{}, err
	}
	if g.Status != model.StatusActive {
		return model.Goal{}, stateError(id, "cannot revert a %s goal to draft", g.Status)
	}
	queued, err := tx.IsQueued(ctx, id)
	if err != nil {
		return model.Goal{}, err
	}
	if queued {
		return model.Goal{}, conflictError(id, "goal is in the resolution queue; resolve it instead")
	}

	g.Status = model.StatusDraft
	td := g.StartDate
	if tentative != nil {
		td = tentative.UTC()
	}
	g.TentativeDate = &td
	g.TightlyBound = false
	return g, p.e.Goals.save(ctx, tx, g)
}
