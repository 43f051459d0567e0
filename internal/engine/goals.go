package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// EventDeleted keys on_finally callbacks run by a cascade delete.
const EventDeleted = "deleted"

// GoalStore is the authoritative repository of goal records. It enforces
// the structural invariants on every write.
type GoalStore struct {
	e *Engine
}

// DeleteResult reports what a delete removed and which on_finally
// callbacks of the removed descendants ran.
type DeleteResult struct {
	Removed []string             `json:"removed"`
	Results []model.ActionResult `json:"results,omitempty"`

	// Notices are manual on_finally callbacks of removed goals. Their
	// records are gone, so they cannot be acknowledged; they are shown once.
	Notices []model.PendingAck `json:"notices,omitempty"`
}

// Create validates a draft and inserts it with a fresh id.
func (s *GoalStore) Create(ctx context.Context, tx *store.Tx, d model.GoalDraft) (string, error) {
	return s.create(ctx, tx, s.e.ids.Generate(), d)
}

func (s *GoalStore) create(ctx context.Context, tx *store.Tx, id string, d model.GoalDraft) (string, error) {
	if err := model.ValidateStruct(d); err != nil {
		return "", shapeError(id, err)
	}
	if d.Status == "" {
		d.Status = model.StatusActive
	}

	now := s.e.wall.Now()
	g := model.Goal{
		ID:              id,
		Title:           d.Title,
		Kind:            d.Kind,
		Status:          d.Status,
		StartDate:       d.StartDate.UTC(),
		CriteriaTime:    d.CriteriaTime,
		ParentID:        d.ParentID,
		Callbacks:       d.Callbacks.Clone(),
		RecurrenceID:    d.RecurrenceID,
		OccurrenceIndex: d.OccurrenceIndex,
		TemplateHash:    d.TemplateHash,
		Progress:        model.Progress{Checklist: append([]model.ChecklistItem(nil), d.Checklist...)},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if g.StartDate.IsZero() {
		g.StartDate = now
	}
	if d.Deadline != nil {
		dl := d.Deadline.UTC()
		g.Deadline = &dl
	} else if g.Kind == model.KindEvent && g.Status != model.StatusDraft {
		// Events are tightly bound: the deadline follows from the criteria.
		dl := g.StartDate.Add(g.CriteriaTime)
		g.Deadline = &dl
	}
	if d.TentativeDate != nil {
		td := d.TentativeDate.UTC()
		g.TentativeDate = &td
	}
	if d.Window != nil {
		w := *d.Window
		g.Window = &w
	}

	if err := s.e.checkGoal(ctx, tx, &g, false); err != nil {
		return "", err
	}

	g.Seq = s.e.clock.Next()
	if err := tx.InsertGoal(ctx, g); err != nil {
		return "", err
	}
	slog.Debug("goal inserted", "id", g.ID, "status", g.Status, "parent", g.ParentID, "seq", g.Seq)
	return g.ID, nil
}

// Get reads a goal.
func (s *GoalStore) Get(ctx context.Context, tx *store.Tx, id string) (model.Goal, error) {
	g, err := tx.GetGoal(ctx, id)
	if err != nil {
		return model.Goal{}, notFound(err, "goal", id)
	}
	return g, nil
}

// Update applies a patch to a draft or active goal and revalidates it.
func (s *GoalStore) Update(ctx context.Context, tx *store.Tx, id string, p model.GoalPatch) (model.Goal, error) {
	cur, err := s.Get(ctx, tx, id)
	if err != nil {
		return model.Goal{}, err
	}
	if cur.Status.IsTerminal() || cur.Status == model.StatusPendingFinalization {
		return model.Goal{}, stateError(id, "cannot edit a %s goal", cur.Status)
	}
	if p.Callbacks != nil {
		if err := model.ValidateStruct(*p.Callbacks); err != nil {
			return model.Goal{}, shapeError(id, err)
		}
	}

	g := p.Apply(cur)
	g.StartDate = g.StartDate.UTC()
	if g.Deadline != nil {
		dl := g.Deadline.UTC()
		g.Deadline = &dl
	}
	if err := s.e.checkGoal(ctx, tx, &g, true); err != nil {
		return model.Goal{}, err
	}
	return g, s.save(ctx, tx, g)
}

// save stamps UpdatedAt and writes the goal.
func (s *GoalStore) save(ctx context.Context, tx *store.Tx, g model.Goal) error {
	g.UpdatedAt = s.e.wall.Now()
	if err := tx.UpdateGoal(ctx, g); err != nil {
		return notFound(err, "goal", g.ID)
	}
	return nil
}

// Query lists goals matching the filter in creation order.
func (s *GoalStore) Query(ctx context.Context, tx *store.Tx, f model.GoalFilter) ([]model.Goal, error) {
	return tx.QueryGoals(ctx, f)
}

// subtree returns the goal's descendants, parents before children.
func (s *GoalStore) subtree(ctx context.Context, tx *store.Tx, root model.Goal) ([]model.Goal, error) {
	var out []model.Goal
	frontier := root.ChildIDs
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			g, err := s.Get(ctx, tx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
			next = append(next, g.ChildIDs...)
		}
		frontier = next
	}
	return out, nil
}

// Delete removes a goal. Without cascade, a goal with children is refused.
// With cascade, every live descendant runs its on_finally automatic
// callbacks before the subtree is removed; success and failure sets never
// run.
func (s *GoalStore) Delete(ctx context.Context, tx *store.Tx, id string, cascade bool) (DeleteResult, error) {
	root, err := s.Get(ctx, tx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	if len(root.ChildIDs) > 0 && !cascade {
		return DeleteResult{}, stateError(id, "goal has %d children; delete with cascade", len(root.ChildIDs))
	}

	descendants, err := s.subtree(ctx, tx, root)
	if err != nil {
		return DeleteResult{}, err
	}

	res := DeleteResult{Removed: []string{root.ID}}
	for _, d := range descendants {
		res.Removed = append(res.Removed, d.ID)
		if d.Status.IsTerminal() {
			continue
		}
		exec, err := s.e.Callbacks.Execute(ctx, tx, d, Trigger{
			Event:      EventDeleted,
			Sets:       []model.SetName{model.SetFinally},
			SkipManual: true,
		})
		if err != nil {
			return DeleteResult{}, err
		}
		res.Results = append(res.Results, exec.Results...)
		for i, cb := range d.Callbacks.OnFinally {
			if cb.Kind != model.CallbackManual {
				continue
			}
			res.Notices = append(res.Notices, model.PendingAck{
				GoalID:        d.ID,
				Event:         EventDeleted,
				Set:           model.SetFinally,
				CallbackIndex: i,
				Text:          cb.Text,
			})
		}
	}

	if err := s.unlinkFromParent(ctx, tx, root, res.Removed); err != nil {
		return DeleteResult{}, err
	}
	if err := tx.DeleteGoals(ctx, res.Removed); err != nil {
		return DeleteResult{}, err
	}
	slog.Debug("goal subtree deleted", "id", id, "removed", len(res.Removed))
	return res, nil
}

// unlinkFromParent clears checklist links on the surviving parent that
// point at removed goals.
func (s *GoalStore) unlinkFromParent(ctx context.Context, tx *store.Tx, root model.Goal, removed []string) error {
	if root.ParentID == "" {
		return nil
	}
	parent, err := s.Get(ctx, tx, root.ParentID)
	if err != nil {
		return err
	}
	gone := make(map[string]bool, len(removed))
	for _, id := range removed {
		gone[id] = true
	}
	changed := false
	for i, item := range parent.Progress.Checklist {
		if item.LinkedGoalID != "" && gone[item.LinkedGoalID] {
			parent.Progress.Checklist[i].LinkedGoalID = ""
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save(ctx, tx, parent)
}

// FeedTime adds worked time to a time-based goal's progress.
func (s *GoalStore) FeedTime(ctx context.Context, tx *store.Tx, id string, d time.Duration) (model.Goal, error) {
	g, err := s.Get(ctx, tx, id)
	if err != nil {
		return model.Goal{}, err
	}
	if !g.Kind.IsTimeBased() {
		return model.Goal{}, validationError(id, InvariantCriteria, fmt.Sprintf("cannot feed time to a %s goal", g.Kind), "kind")
	}
	if g.Status != model.StatusActive {
		return model.Goal{}, stateError(id, "cannot feed time to a %s goal", g.Status)
	}
	g.Progress.Accumulated += d
	if g.Progress.Accumulated < 0 {
		g.Progress.Accumulated = 0
	}
	return g, s.save(ctx, tx, g)
}

// CheckItem marks a checklist item of a task goal done or not done.
func (s *GoalStore) CheckItem(ctx context.Context, tx *store.Tx, id string, index int, done bool) (model.Goal, error) {
	g, err := s.Get(ctx, tx, id)
	if err != nil {
		return model.Goal{}, err
	}
	if g.Kind != model.KindTask {
		return model.Goal{}, validationError(id, InvariantCriteria, fmt.Sprintf("%s goals have no checklist", g.Kind), "kind")
	}
	if g.Status.IsTerminal() || g.Status == model.StatusPendingFinalization {
		return model.Goal{}, stateError(id, "cannot check items of a %s goal", g.Status)
	}
	if index < 0 || index >= len(g.Progress.Checklist) {
		return model.Goal{}, validationError(id, InvariantCriteria,
			fmt.Sprintf("checklist index %d out of range", index), "checklist")
	}
	g.Progress.Checklist[index].Done = done
	return g, s.save(ctx, tx, g)
}

// Purge deletes terminal goals last updated before the cutoff whose whole
// subtree is terminal too. Returns the number of goals removed.
func (s *GoalStore) Purge(ctx context.Context, tx *store.Tx, before time.Time) (int, error) {
	roots, err := tx.QueryGoals(ctx, model.GoalFilter{
		Statuses: []model.Status{model.StatusResolvedSuccess, model.StatusResolvedFailure, model.StatusDead},
	})
	if err != nil {
		return 0, err
	}

	purged := make(map[string]bool)
	var ids []string
	for _, g := range roots {
		if purged[g.ID] || !g.UpdatedAt.Before(before) {
			continue
		}
		descendants, err := s.subtree(ctx, tx, g)
		if err != nil {
			return 0, err
		}
		eligible := true
		for _, d := range descendants {
			if !d.Status.IsTerminal() || !d.UpdatedAt.Before(before) {
				eligible = false
				break
			}
		}
		if !eligible {
			continue
		}
		purged[g.ID] = true
		ids = append(ids, g.ID)
		for _, d := range descendants {
			if !purged[d.ID] {
				purged[d.ID] = true
				ids = append(ids, d.ID)
			}
		}
	}
	if err := tx.DeleteGoals(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}
