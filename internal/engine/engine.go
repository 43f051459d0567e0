package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// DefaultDraftLead is how far ahead of a draft's tentative date Advance
// starts flagging it for promotion.
const DefaultDraftLead = 24 * time.Hour

// Engine owns one store for an application session and exposes the
// query, command and clock-advance API.
//
// Every public method runs in exactly one store transaction, so an
// operation either fully applies or leaves the store untouched. Components
// re-read the store on each call and keep no state across calls beyond the
// logical clock.
//
// Thread-safety model: the engine is a single writer. Callers must not
// invoke mutating methods concurrently.
type Engine struct {
	store     *store.Store
	clock     *Clock
	wall      WallClock
	ids       IDGenerator
	actions   *Registry
	draftLead time.Duration

	Goals       *GoalStore
	Recurrences *RecurrenceEngine
	Queue       *ResolutionQueue
	Maintenance *MaintenanceTracker
	Callbacks   *CallbackExecutor
	Drafts      *DraftPromoter
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithWallClock replaces the system clock. Tests use a fixed clock.
func WithWallClock(w WallClock) Option {
	return func(e *Engine) {
		e.wall = w
	}
}

// WithIDGenerator replaces the UUIDv7 id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithRegistry replaces the action registry. Use NewRegistry and Register
// to add actions on top of the built-ins.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		e.actions = r
	}
}

// WithDraftLead sets the promotion lead time used by Advance.
//
// Default: 24h (DefaultDraftLead)
func WithDraftLead(d time.Duration) Option {
	return func(e *Engine) {
		e.draftLead = d
	}
}

// New creates an Engine over an open store. The logical clock resumes
// after the highest seq already stored.
func New(ctx context.Context, s *store.Store, opts ...Option) (*Engine, error) {
	var maxSeq int64
	err := s.View(ctx, func(tx *store.Tx) error {
		var err error
		maxSeq, err = tx.MaxSeq(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resume clock: %w", err)
	}

	e := &Engine{
		store:     s,
		clock:     NewClockAt(maxSeq),
		wall:      SystemClock{},
		ids:       UUIDv7Generator{},
		actions:   NewRegistry(),
		draftLead: DefaultDraftLead,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.Goals = &GoalStore{e: e}
	e.Recurrences = &RecurrenceEngine{e: e}
	e.Queue = &ResolutionQueue{e: e}
	e.Maintenance = &MaintenanceTracker{e: e}
	e.Callbacks = &CallbackExecutor{e: e}
	e.Drafts = &DraftPromoter{e: e}
	return e, nil
}

// Registry returns the action registry.
func (e *Engine) Registry() *Registry {
	return e.actions
}

// Now returns the engine's wall-clock time.
func (e *Engine) Now() time.Time {
	return e.wall.Now()
}

// Attention aggregates everything an Advance call wants the user to see.
type Attention struct {
	Now       time.Time          `json:"now"`
	Spawned   []string           `json:"spawned,omitempty"`
	Enqueued  []string           `json:"enqueued,omitempty"`
	Queue     []QueueEntry       `json:"queue,omitempty"`
	Firings   []WindowFiring     `json:"firings,omitempty"`
	DraftsDue []model.Goal       `json:"drafts_due,omitempty"`
	Acks      []model.PendingAck `json:"acks,omitempty"`
}

// Empty reports whether nothing needs attention.
func (a Attention) Empty() bool {
	return len(a.Queue) == 0 && len(a.Firings) == 0 && len(a.DraftsDue) == 0 && len(a.Acks) == 0
}

// Advance is the clock-advance entry point the host calls on open or on a
// tick. In order it spawns due recurrence instances, enqueues expired goals,
// replays window goals up to now and flags drafts due for promotion.
//
// Advance is idempotent: calling it twice with the same now spawns,
// enqueues and fires nothing the second time.
func (e *Engine) Advance(ctx context.Context, now time.Time) (Attention, error) {
	att := Attention{Now: now}
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		recs, err := tx.ListRecurrences(ctx)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			ids, err := e.Recurrences.SpawnDue(ctx, tx, rec, now)
			if err != nil {
				return fmt.Errorf("spawn %s: %w", rec.ID, err)
			}
			att.Spawned = append(att.Spawned, ids...)
		}

		if att.Enqueued, err = e.Queue.EnqueueExpired(ctx, tx, now); err != nil {
			return err
		}

		windows, err := tx.QueryGoals(ctx, model.GoalFilter{
			Statuses: []model.Status{model.StatusActive},
			Kinds:    []model.Kind{model.KindWindow},
		})
		if err != nil {
			return err
		}
		for _, g := range windows {
			firings, err := e.Maintenance.CatchUp(ctx, tx, g.ID, now)
			if err != nil {
				return fmt.Errorf("catch up %s: %w", g.ID, err)
			}
			att.Firings = append(att.Firings, firings...)
		}

		if att.DraftsDue, err = e.Drafts.Scan(ctx, tx, now, e.draftLead); err != nil {
			return err
		}
		if att.Queue, err = e.Queue.Entries(ctx, tx); err != nil {
			return err
		}
		att.Acks, err = tx.OpenAcks(ctx)
		return err
	})
	if err != nil {
		return Attention{}, err
	}

	slog.Info("clock advanced",
		"now", now,
		"spawned", len(att.Spawned),
		"enqueued", len(att.Enqueued),
		"queue", len(att.Queue),
		"firings", len(att.Firings),
		"drafts_due", len(att.DraftsDue),
	)
	return att, nil
}

// requireDrained enforces the liveness contract: no command may touch an
// active goal while expired goals are still unresolved. Expirations at
// the current wall-clock time are enqueued first.
func (e *Engine) requireDrained(ctx context.Context, tx *store.Tx, id string) error {
	if _, err := e.Queue.EnqueueExpired(ctx, tx, e.wall.Now()); err != nil {
		return err
	}
	n, err := tx.QueueLen(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return stateError(id, "resolution queue has %d unresolved entries; resolve them first", n)
	}
	return nil
}

// guardGoal applies requireDrained when the goal is active.
func (e *Engine) guardGoal(ctx context.Context, tx *store.Tx, id string) (model.Goal, error) {
	g, err := e.Goals.Get(ctx, tx, id)
	if err != nil {
		return model.Goal{}, err
	}
	if g.Status == model.StatusActive {
		if err := e.requireDrained(ctx, tx, id); err != nil {
			return model.Goal{}, err
		}
	}
	return g, nil
}

// ---------------------------------------------------------------------------
// Command API

// CreateGoal creates a goal from a draft and returns its id.
func (e *Engine) CreateGoal(ctx context.Context, d model.GoalDraft) (string, error) {
	var id string
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if d.Status != model.StatusDraft {
			if err := e.requireDrained(ctx, tx, ""); err != nil {
				return err
			}
		}
		var err error
		id, err = e.Goals.Create(ctx, tx, d)
		return err
	})
	if err != nil {
		return "", err
	}
	slog.Info("goal created", "id", id, "kind", d.Kind)
	return id, nil
}

// UpdateGoal applies a patch to a goal.
func (e *Engine) UpdateGoal(ctx context.Context, id string, p model.GoalPatch) (model.Goal, error) {
	var g model.Goal
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if _, err := e.guardGoal(ctx, tx, id); err != nil {
			return err
		}
		var err error
		g, err = e.Goals.Update(ctx, tx, id, p)
		return err
	})
	return g, err
}

// DeleteGoal removes a goal. With cascade, descendants go too and run only
// their on_finally callbacks.
func (e *Engine) DeleteGoal(ctx context.Context, id string, cascade bool) (DeleteResult, error) {
	var res DeleteResult
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if _, err := e.guardGoal(ctx, tx, id); err != nil {
			return err
		}
		var err error
		res, err = e.Goals.Delete(ctx, tx, id, cascade)
		return err
	})
	if err != nil {
		return DeleteResult{}, err
	}
	slog.Info("goal deleted", "id", id, "removed", len(res.Removed))
	return res, nil
}

// FeedTime adds worked time to a time-based goal.
func (e *Engine) FeedTime(ctx context.Context, id string, d time.Duration) (model.Goal, error) {
	var g model.Goal
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if _, err := e.guardGoal(ctx, tx, id); err != nil {
			return err
		}
		var err error
		g, err = e.Goals.FeedTime(ctx, tx, id, d)
		return err
	})
	return g, err
}

// CheckItem sets a checklist item of a task-based goal.
func (e *Engine) CheckItem(ctx context.Context, id string, index int, done bool) (model.Goal, error) {
	var g model.Goal
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if _, err := e.guardGoal(ctx, tx, id); err != nil {
			return err
		}
		var err error
		g, err = e.Goals.CheckItem(ctx, tx, id, index, done)
		return err
	})
	return g, err
}

// CreateRecurrence creates a recurrence. Instances spawn on Advance.
func (e *Engine) CreateRecurrence(ctx context.Context, d model.RecurrenceDraft) (string, error) {
	var id string
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if err := e.requireDrained(ctx, tx, ""); err != nil {
			return err
		}
		var err error
		id, err = e.Recurrences.Create(ctx, tx, d)
		return err
	})
	if err != nil {
		return "", err
	}
	slog.Info("recurrence created", "id", id)
	return id, nil
}

// UpdateRecurrence edits a recurrence. Already spawned goals are unaffected.
func (e *Engine) UpdateRecurrence(ctx context.Context, id string, p model.RecurrencePatch) (model.Recurrence, error) {
	var r model.Recurrence
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if err := e.requireDrained(ctx, tx, id); err != nil {
			return err
		}
		var err error
		r, err = e.Recurrences.Update(ctx, tx, id, p)
		return err
	})
	return r, err
}

// Resolve applies an outcome to a queued goal. Expirations at the current
// wall-clock time are enqueued first.
func (e *Engine) Resolve(ctx context.Context, id string, r Resolution) (ResolveResult, error) {
	var res ResolveResult
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if _, err := e.Queue.EnqueueExpired(ctx, tx, e.wall.Now()); err != nil {
			return err
		}
		var err error
		res, err = e.Queue.Resolve(ctx, tx, id, r)
		return err
	})
	if err != nil {
		return ResolveResult{}, err
	}
	slog.Info("goal resolved", "id", id, "outcome", r.Kind, "status", res.Status)
	return res, nil
}

// CheckOff resolves an active goal as an early success.
func (e *Engine) CheckOff(ctx context.Context, id string) (ResolveResult, error) {
	var res ResolveResult
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if _, err := e.guardGoal(ctx, tx, id); err != nil {
			return err
		}
		var err error
		res, err = e.Queue.CheckOff(ctx, tx, id)
		return err
	})
	if err != nil {
		return ResolveResult{}, err
	}
	slog.Info("goal checked off", "id", id, "status", res.Status)
	return res, nil
}

// Acknowledge confirms a pending manual callback.
func (e *Engine) Acknowledge(ctx context.Context, goalID string, index int) (AckResult, error) {
	var res AckResult
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		var err error
		res, err = e.Callbacks.Acknowledge(ctx, tx, goalID, index)
		return err
	})
	return res, err
}

// Log appends a quantity to a window goal. The entry is replayed by the
// next Advance, together with any other entries backfilled before it.
func (e *Engine) Log(ctx context.Context, id string, ts time.Time, qty float64) error {
	return e.store.Atomic(ctx, func(tx *store.Tx) error {
		if _, err := e.guardGoal(ctx, tx, id); err != nil {
			return err
		}
		return e.Maintenance.Log(ctx, tx, id, ts, qty)
	})
}

// Promote turns a draft into an active goal with concrete dates.
func (e *Engine) Promote(ctx context.Context, id string, start time.Time, deadline *time.Time) (model.Goal, error) {
	var g model.Goal
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if err := e.requireDrained(ctx, tx, id); err != nil {
			return err
		}
		var err error
		g, err = e.Drafts.Promote(ctx, tx, id, start, deadline)
		return err
	})
	return g, err
}

// RevertToDraft turns an active goal back into a draft.
func (e *Engine) RevertToDraft(ctx context.Context, id string, tentative *time.Time) (model.Goal, error) {
	var g model.Goal
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		if _, err := e.guardGoal(ctx, tx, id); err != nil {
			return err
		}
		var err error
		g, err = e.Drafts.RevertToDraft(ctx, tx, id, tentative)
		return err
	})
	return g, err
}

// Purge deletes terminal goal trees last updated before the cutoff.
// Returns the number of goals removed.
func (e *Engine) Purge(ctx context.Context, before time.Time) (int, error) {
	var n int
	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		var err error
		n, err = e.Goals.Purge(ctx, tx, before)
		return err
	})
	if err != nil {
		return 0, err
	}
	slog.Info("purged terminal goals", "before", before, "removed", n)
	return n, nil
}

// ---------------------------------------------------------------------------
// Query API

// Goal returns one goal.
func (e *Engine) Goal(ctx context.Context, id string) (model.Goal, error) {
	var g model.Goal
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		g, err = e.Goals.Get(ctx, tx, id)
		return err
	})
	return g, err
}

// ListGoals lists goals by status, kind, time range, recurrence or parent.
func (e *Engine) ListGoals(ctx context.Context, f model.GoalFilter) ([]model.Goal, error) {
	var goals []model.Goal
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		goals, err = e.Goals.Query(ctx, tx, f)
		return err
	})
	return goals, err
}

// DeadlineLess lists live goals that have no deadline.
func (e *Engine) DeadlineLess(ctx context.Context) ([]model.Goal, error) {
	return e.ListGoals(ctx, model.GoalFilter{
		DeadlineLess: true,
		Statuses:     []model.Status{model.StatusDraft, model.StatusActive, model.StatusPendingFinalization},
	})
}

// ResolutionQueue lists the queue in resolution order.
func (e *Engine) ResolutionQueue(ctx context.Context) ([]QueueEntry, error) {
	var entries []QueueEntry
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		entries, err = e.Queue.Entries(ctx, tx)
		return err
	})
	return entries, err
}

// NeedingCatchUp lists window goals whose evaluation lags behind now.
func (e *Engine) NeedingCatchUp(ctx context.Context, now time.Time) ([]model.Goal, error) {
	var goals []model.Goal
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		goals, err = e.Maintenance.NeedingCatchUp(ctx, tx, now)
		return err
	})
	return goals, err
}

// DraftsDue lists drafts whose tentative date is within lead of now.
func (e *Engine) DraftsDue(ctx context.Context, now time.Time, lead time.Duration) ([]model.Goal, error) {
	var goals []model.Goal
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		goals, err = e.Drafts.Due(ctx, tx, now, lead)
		return err
	})
	return goals, err
}

// PendingAcks lists unacknowledged manual callbacks.
func (e *Engine) PendingAcks(ctx context.Context) ([]model.PendingAck, error) {
	var acks []model.PendingAck
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		acks, err = tx.OpenAcks(ctx)
		return err
	})
	return acks, err
}

// ListRecurrences lists all recurrences.
func (e *Engine) ListRecurrences(ctx context.Context) ([]model.Recurrence, error) {
	var recs []model.Recurrence
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		recs, err = tx.ListRecurrences(ctx)
		return err
	})
	return recs, err
}

// Evaluate computes a window goal's trailing sum at a point in time.
func (e *Engine) Evaluate(ctx context.Context, id string, at time.Time) (Evaluation, error) {
	var ev Evaluation
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		ev, err = e.Maintenance.Evaluate(ctx, tx, id, at)
		return err
	})
	return ev, err
}

// CallbackRuns lists a goal's automatic callback results.
func (e *Engine) CallbackRuns(ctx context.Context, id string) ([]store.CallbackRun, error) {
	var runs []store.CallbackRun
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		runs, err = tx.CallbackRuns(ctx, id)
		return err
	})
	return runs, err
}
