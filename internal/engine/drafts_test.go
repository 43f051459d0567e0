package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/goalclock/internal/model"
)

func draft(title string, tentative time.Time) model.GoalDraft {
	return model.GoalDraft{
		Title:         title,
		Kind:          model.KindTask,
		Status:        model.StatusDraft,
		TentativeDate: &tentative,
	}
}

func TestDraftPromoter_DraftsSkipDateInvariants(t *testing.T) {
	f := newFixture(t)
	d := draft("plan trip", at(10*day))
	d.StartDate = at(5 * day)
	d.Deadline = ptr(at(day))

	id := f.create(t, d)
	assert.Equal(t, model.StatusDraft, f.goal(t, id).Status)
}

func TestDraftPromoter_ScanFlagsDueDrafts(t *testing.T) {
	f := newFixture(t, WithDraftLead(2*day))
	soon := f.create(t, draft("soon", at(2*day)))
	f.create(t, draft("later", at(5*day)))
	f.create(t, model.GoalDraft{Title: "undated", Kind: model.KindTask, Status: model.StatusDraft})

	due, err := f.e.DraftsDue(f.ctx, t0, day)
	require.NoError(t, err)
	assert.Empty(t, due)

	att := f.advance(t, t0)
	require.Len(t, att.DraftsDue, 1)
	assert.Equal(t, soon, att.DraftsDue[0].ID)
	assert.True(t, f.goal(t, soon).PromotionDue)
}

func TestDraftPromoter_Promote(t *testing.T) {
	f := newFixture(t)
	parent := f.create(t, taskDraft("parent", t0, ptr(at(10*day))))
	d := draft("child", at(2*day))
	d.ParentID = parent
	id := f.create(t, d)

	_, err := f.e.Promote(f.ctx, id, at(2*day), ptr(at(12*day)))
	assert.Equal(t, InvariantParentBounds, InvariantOf(err))
	assert.Equal(t, model.StatusDraft, f.goal(t, id).Status)

	_, err = f.e.Promote(f.ctx, id, at(3*day), ptr(at(2*day)))
	assert.Equal(t, InvariantDates, InvariantOf(err))

	g, err := f.e.Promote(f.ctx, id, at(2*day), ptr(at(4*day)))
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, g.Status)
	assert.Nil(t, g.TentativeDate)
	assert.False(t, g.PromotionDue)

	_, err = f.e.Promote(f.ctx, id, at(2*day), nil)
	assert.True(t, IsState(err))
}

func TestDraftPromoter_PromoteEventDerivesDeadline(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, model.GoalDraft{Title: "gig", Kind: model.KindEvent, Status: model.StatusDraft, CriteriaTime: 3 * time.Hour})

	g, err := f.e.Promote(f.ctx, id, at(day), nil)
	require.NoError(t, err)
	assert.Equal(t, at(day+3*time.Hour), *g.Deadline)
	assert.True(t, g.TightlyBound)
}

func TestDraftPromoter_RevertToDraft(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, taskDraft("a", at(day), ptr(at(2*day))))

	g, err := f.e.RevertToDraft(f.ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, g.Status)
	assert.Equal(t, at(day), *g.TentativeDate)

	_, err = f.e.RevertToDraft(f.ctx, id, nil)
	assert.True(t, IsState(err))

	// Drafts never expire.
	att := f.advance(t, at(3*day))
	assert.Empty(t, att.Queue)
}

func TestDraftPromoter_RevertQueuedGoal(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, taskDraft("a", t0, ptr(at(day))))
	f.advance(t, at(day))

	_, err := f.e.RevertToDraft(f.ctx, id, ptr(at(5*day)))
	assert.True(t, IsState(err), "the liveness guard refuses while the queue is non-empty")
}
