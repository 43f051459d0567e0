package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// ResolutionQueue holds expired goals awaiting a user decision.
//
// Queue membership lives in the resolution_queue table; its goal_id key
// keeps a goal from being queued twice. A queued goal stays active until
// it is resolved.
type ResolutionQueue struct {
	e *Engine
}

// QueueEntry is one goal awaiting resolution.
type QueueEntry struct {
	GoalID    string     `json:"goal_id"`
	Title     string     `json:"title"`
	Kind      model.Kind `json:"kind"`
	ParentID  string     `json:"parent_id,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	Seq       int64      `json:"seq"`

	// CriteriaMet hints whether progress already satisfies the criterion.
	CriteriaMet bool `json:"criteria_met"`

	depth int
}

// ResolutionKind selects what Resolve does with a queued goal.
type ResolutionKind string

const (
	ResolveSuccess ResolutionKind = "success"
	ResolveFailure ResolutionKind = "failure"
	ResolveEdit    ResolutionKind = "edit"
	ResolveDelete  ResolutionKind = "delete"
)

// Resolution is the user's decision for a queued goal. Patch is required
// for ResolveEdit.
type Resolution struct {
	Kind  ResolutionKind   `json:"kind"`
	Patch *model.GoalPatch `json:"patch,omitempty"`
}

// ResolveResult reports everything a resolution changed.
type ResolveResult struct {
	GoalID    string               `json:"goal_id"`
	Status    model.Status         `json:"status"`
	Finalized bool                 `json:"finalized"`
	Requeued  bool                 `json:"requeued,omitempty"`
	Results   []model.ActionResult `json:"results,omitempty"`
	Pending   []model.PendingAck   `json:"pending,omitempty"`
	Killed    []string             `json:"killed,omitempty"`
	Respawned string               `json:"respawned,omitempty"`
	Deleted   *DeleteResult        `json:"deleted,omitempty"`
}

func (r *ResolveResult) merge(other ResolveResult) {
	r.Results = append(r.Results, other.Results...)
	r.Pending = append(r.Pending, other.Pending...)
	r.Killed = append(r.Killed, other.Killed...)
	if other.Status != "" {
		r.Status = other.Status
	}
	r.Finalized = r.Finalized || other.Finalized
}

// EnqueueExpired queues every active goal whose deadline is at or before
// now. Returns the ids newly queued; goals already queued are skipped.
func (q *ResolutionQueue) EnqueueExpired(ctx context.Context, tx *store.Tx, now time.Time) ([]string, error) {
	expired, err := tx.ExpiredGoals(ctx, now)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, g := range expired {
		inserted, err := tx.Enqueue(ctx, g.ID, *g.Deadline, q.e.clock.Next())
		if err != nil {
			return nil, err
		}
		if inserted {
			slog.Debug("goal enqueued", "id", g.ID, "deadline", *g.Deadline)
			ids = append(ids, g.ID)
		}
	}
	return ids, nil
}

// Entries lists the queue in resolution order: ascending expiry; at equal
// expiry deeper goals first, so a subgoal always precedes its ancestors;
// then creation order.
func (q *ResolutionQueue) Entries(ctx context.Context, tx *store.Tx) ([]QueueEntry, error) {
	rows, err := tx.QueueRows(ctx)
	if err != nil {
		return nil, err
	}

	depths := make(map[string]int)
	entries := make([]QueueEntry, 0, len(rows))
	for _, row := range rows {
		g, err := q.e.Goals.Get(ctx, tx, row.GoalID)
		if err != nil {
			return nil, err
		}
		d, err := q.depth(ctx, tx, g, depths)
		if err != nil {
			return nil, err
		}
		entries = append(entries, QueueEntry{
			GoalID:      g.ID,
			Title:       g.Title,
			Kind:        g.Kind,
			ParentID:    g.ParentID,
			ExpiresAt:   row.ExpiresAt,
			Seq:         g.Seq,
			CriteriaMet: g.CriteriaMet(),
			depth:       d,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.ExpiresAt.Equal(b.ExpiresAt) {
			return a.ExpiresAt.Before(b.ExpiresAt)
		}
		if a.depth != b.depth {
			return a.depth > b.depth
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.GoalID < b.GoalID
	})
	return entries, nil
}

func (q *ResolutionQueue) depth(ctx context.Context, tx *store.Tx, g model.Goal, memo map[string]int) (int, error) {
	if d, ok := memo[g.ID]; ok {
		return d, nil
	}
	d := 0
	if g.ParentID != "" {
		parent, err := q.e.Goals.Get(ctx, tx, g.ParentID)
		if err != nil {
			return 0, err
		}
		pd, err := q.depth(ctx, tx, parent, memo)
		if err != nil {
			return 0, err
		}
		d = pd + 1
	}
	memo[g.ID] = d
	return d, nil
}

// Resolve applies the user's decision to a queued goal.
//
// Success and failure dequeue the goal, move it to pending-finalization and
// run the outcome's callback set plus on_finally. Edit dequeues, patches
// and re-enqueues the goal if it is still expired. Delete removes the goal
// and its subtree.
func (q *ResolutionQueue) Resolve(ctx context.Context, tx *store.Tx, id string, r Resolution) (ResolveResult, error) {
	g, err := q.e.Goals.Get(ctx, tx, id)
	if err != nil {
		return ResolveResult{}, err
	}
	queued, err := tx.IsQueued(ctx, id)
	if err != nil {
		return ResolveResult{}, err
	}
	if !queued {
		return ResolveResult{}, conflictError(id, "goal is not in the resolution queue")
	}
	if g.Status != model.StatusActive {
		return ResolveResult{}, stateError(id, "cannot resolve a %s goal", g.Status)
	}
	if err := q.requireDescendantsResolved(ctx, tx, g); err != nil {
		return ResolveResult{}, err
	}

	switch r.Kind {
	case ResolveSuccess:
		return q.begin(ctx, tx, g, model.OutcomeSuccess, false)
	case ResolveFailure:
		return q.begin(ctx, tx, g, model.OutcomeFailure, false)
	case ResolveEdit:
		return q.edit(ctx, tx, g, r.Patch)
	case ResolveDelete:
		del, err := q.e.Goals.Delete(ctx, tx, id, true)
		if err != nil {
			return ResolveResult{}, err
		}
		return ResolveResult{GoalID: id, Deleted: &del}, nil
	}
	return ResolveResult{}, validationError(id, InvariantShape, "unknown resolution "+string(r.Kind), "kind")
}

func (q *ResolutionQueue) requireDescendantsResolved(ctx context.Context, tx *store.Tx, g model.Goal) error {
	descendants, err := q.e.Goals.subtree(ctx, tx, g)
	if err != nil {
		return err
	}
	for _, d := range descendants {
		queued, err := tx.IsQueued(ctx, d.ID)
		if err != nil {
			return err
		}
		if queued {
			return stateError(g.ID, "descendant %s is still queued; resolve it first", d.ID)
		}
	}
	return nil
}

func (q *ResolutionQueue) edit(ctx context.Context, tx *store.Tx, g model.Goal, p *model.GoalPatch) (ResolveResult, error) {
	if p == nil {
		return ResolveResult{}, validationError(g.ID, InvariantShape, "edit resolution needs a patch", "patch")
	}
	if _, err := tx.Dequeue(ctx, g.ID); err != nil {
		return ResolveResult{}, err
	}
	updated, err := q.e.Goals.Update(ctx, tx, g.ID, *p)
	if err != nil {
		return ResolveResult{}, err
	}
	res := ResolveResult{GoalID: g.ID, Status: updated.Status}
	if updated.ExpiredAt(q.e.wall.Now()) {
		if _, err := tx.Enqueue(ctx, g.ID, *updated.Deadline, q.e.clock.Next()); err != nil {
			return ResolveResult{}, err
		}
		res.Requeued = true
	}
	return res, nil
}

// CheckOff resolves an active, unqueued goal as an early success.
// Its live descendants die at once.
func (q *ResolutionQueue) CheckOff(ctx context.Context, tx *store.Tx, id string) (ResolveResult, error) {
	g, err := q.e.Goals.Get(ctx, tx, id)
	if err != nil {
		return ResolveResult{}, err
	}
	if g.Status != model.StatusActive {
		return ResolveResult{}, stateError(id, "cannot check off a %s goal", g.Status)
	}
	queued, err := tx.IsQueued(ctx, id)
	if err != nil {
		return ResolveResult{}, err
	}
	if queued {
		return ResolveResult{}, conflictError(id, "goal is in the resolution queue; resolve it instead")
	}
	return q.begin(ctx, tx, g, model.OutcomeSuccess, true)
}
