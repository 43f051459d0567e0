package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// begin moves an active goal to pending-finalization with the given
// outcome, runs its outcome set plus on_finally, and finalizes it when no
// blocking acknowledgment is left open. With killNow the descendants die
// before the goal's own callbacks run; otherwise they die at finalization.
func (q *ResolutionQueue) begin(ctx context.Context, tx *store.Tx, g model.Goal, outcome model.Outcome, killNow bool) (ResolveResult, error) {
	if _, err := tx.Dequeue(ctx, g.ID); err != nil {
		return ResolveResult{}, err
	}
	g.Status = model.StatusPendingFinalization
	g.Outcome = outcome
	if err := q.e.Goals.save(ctx, tx, g); err != nil {
		return ResolveResult{}, err
	}

	res := ResolveResult{GoalID: g.ID, Status: g.Status}
	if killNow {
		killed, err := q.killChildren(ctx, tx, g.ID, &res)
		if err != nil {
			return ResolveResult{}, err
		}
		res.Killed = killed
	}

	sets := []model.SetName{model.SetFinally}
	if set, ok := model.SetForOutcome(outcome); ok {
		sets = []model.SetName{set, model.SetFinally}
	}
	exec, err := q.e.Callbacks.Execute(ctx, tx, g, Trigger{
		Event:    EventResolution,
		Sets:     sets,
		Blocking: true,
	})
	if err != nil {
		return ResolveResult{}, err
	}
	res.Results = append(res.Results, exec.Results...)
	res.Pending = append(res.Pending, exec.Pending...)

	switch outcome {
	case model.OutcomeSuccess:
		if err := q.tickParent(ctx, tx, g); err != nil {
			return ResolveResult{}, err
		}
	case model.OutcomeFailure:
		if extendedParent(g, exec.Results) {
			id, err := q.e.Recurrences.Respawn(ctx, tx, g.RecurrenceID, q.e.wall.Now())
			if err != nil {
				return ResolveResult{}, err
			}
			res.Respawned = id
		}
	}

	fin, err := q.tryFinalize(ctx, tx, g.ID)
	if err != nil {
		return ResolveResult{}, err
	}
	res.merge(fin)
	return res, nil
}

// extendedParent reports whether a failed recurring subgoal's on_failure
// automation pushed out the parent's deadline.
func extendedParent(g model.Goal, results []model.ActionResult) bool {
	if g.RecurrenceID == "" || g.ParentID == "" {
		return false
	}
	for _, r := range results {
		if r.Set == model.SetFailure && r.Action == ActionExtendDeadline &&
			r.Data["status"] == statusApplied && r.Data["target"] == g.ParentID {
			return true
		}
	}
	return false
}

// tryFinalize moves a pending-finalization goal to its terminal status
// once every blocking acknowledgment has landed, then kills its live
// descendants. A goal in any other status is returned unchanged.
func (q *ResolutionQueue) tryFinalize(ctx context.Context, tx *store.Tx, id string) (ResolveResult, error) {
	g, err := q.e.Goals.Get(ctx, tx, id)
	if err != nil {
		return ResolveResult{}, err
	}
	res := ResolveResult{GoalID: id, Status: g.Status}
	if g.Status != model.StatusPendingFinalization {
		return res, nil
	}
	open, err := tx.OpenBlockingAcks(ctx, id)
	if err != nil {
		return ResolveResult{}, err
	}
	if open > 0 {
		return res, nil
	}

	switch g.Outcome {
	case model.OutcomeSuccess:
		g.Status = model.StatusResolvedSuccess
	case model.OutcomeFailure:
		g.Status = model.StatusResolvedFailure
	default:
		g.Status = model.StatusDead
	}
	if err := q.e.Goals.save(ctx, tx, g); err != nil {
		return ResolveResult{}, err
	}
	res.Status = g.Status
	res.Finalized = true

	killed, err := q.killChildren(ctx, tx, id, &res)
	if err != nil {
		return ResolveResult{}, err
	}
	res.Killed = append(res.Killed, killed...)

	slog.Debug("goal finalized", "id", id, "status", g.Status, "killed", len(killed))
	return res, nil
}

// killChildren kills every live descendant of id, deepest first. Results
// of their on_finally automations are appended to res.
func (q *ResolutionQueue) killChildren(ctx context.Context, tx *store.Tx, id string, res *ResolveResult) ([]string, error) {
	g, err := q.e.Goals.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	var killed []string
	for _, childID := range g.ChildIDs {
		ids, err := q.kill(ctx, tx, childID, res)
		if err != nil {
			return nil, err
		}
		killed = append(killed, ids...)
	}
	return killed, nil
}

// kill takes one goal and its subtree to dead. A live goal passes through
// pending-finalization with the killed outcome and runs only on_finally.
// Manual on_finally callbacks of killed goals never block.
func (q *ResolutionQueue) kill(ctx context.Context, tx *store.Tx, id string, res *ResolveResult) ([]string, error) {
	g, err := q.e.Goals.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if g.Status.IsTerminal() {
		return nil, nil
	}

	killed, err := q.killChildren(ctx, tx, id, res)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Dequeue(ctx, id); err != nil {
		return nil, err
	}

	if g.Status == model.StatusPendingFinalization {
		// Already resolved; its own callbacks ran. Stop waiting for acks.
		if err := tx.ReleaseBlocking(ctx, id); err != nil {
			return nil, err
		}
	} else {
		g.Status = model.StatusPendingFinalization
		g.Outcome = model.OutcomeKilled
		if err := q.e.Goals.save(ctx, tx, g); err != nil {
			return nil, err
		}
		exec, err := q.e.Callbacks.Execute(ctx, tx, g, Trigger{
			Event: EventKilled,
			Sets:  []model.SetName{model.SetFinally},
		})
		if err != nil {
			return nil, err
		}
		res.Results = append(res.Results, exec.Results...)
		res.Pending = append(res.Pending, exec.Pending...)
	}

	// Actions may have rewritten the goal.
	if g, err = q.e.Goals.Get(ctx, tx, id); err != nil {
		return nil, err
	}
	g.Status = model.StatusDead
	if err := q.e.Goals.save(ctx, tx, g); err != nil {
		return nil, err
	}
	slog.Debug("goal killed", "id", id)
	return append(killed, id), nil
}

// tickParent marks the parent's checklist items linked to g as done.
func (q *ResolutionQueue) tickParent(ctx context.Context, tx *store.Tx, g model.Goal) error {
	if g.ParentID == "" {
		return nil
	}
	parent, err := q.e.Goals.Get(ctx, tx, g.ParentID)
	if err != nil {
		return err
	}
	if parent.Status.IsTerminal() {
		return nil
	}
	changed := false
	for i, item := range parent.Progress.Checklist {
		if item.LinkedGoalID == g.ID && !item.Done {
			parent.Progress.Checklist[i].Done = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return q.e.Goals.save(ctx, tx, parent)
}
