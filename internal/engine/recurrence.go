package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// RecurrenceEngine generates goal instances from recurrence rules.
//
// Spawning is idempotent: every spawned occurrence claims the
// (recurrence_id, occurrence_index) key in spawn_keys first, so a second
// SpawnDue with the same now spawns nothing.
type RecurrenceEngine struct {
	e *Engine
}

// Create validates a recurrence and stores it. Nothing is spawned until
// the next SpawnDue.
func (r *RecurrenceEngine) Create(ctx context.Context, tx *store.Tx, d model.RecurrenceDraft) (string, error) {
	id := r.e.ids.Generate()
	if err := model.ValidateStruct(d); err != nil {
		return "", shapeError(id, err)
	}

	now := r.e.wall.Now()
	rec := model.Recurrence{
		ID:        id,
		ParentID:  d.ParentID,
		Anchor:    d.Anchor.UTC(),
		Rule:      d.Rule,
		End:       d.End,
		Omissions: d.Omissions,
		Template:  d.Template,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rec.Anchor.IsZero() {
		rec.Anchor = now
	}
	if err := r.check(ctx, tx, &rec); err != nil {
		return "", err
	}

	rec.Seq = r.e.clock.Next()
	if err := tx.InsertRecurrence(ctx, rec); err != nil {
		return "", err
	}
	slog.Debug("recurrence inserted", "id", id, "parent", rec.ParentID, "rule", rec.Rule.Type)
	return id, nil
}

// check enforces rule, template and parent constraints and normalizes the
// template title in place.
func (r *RecurrenceEngine) check(ctx context.Context, tx *store.Tx, rec *model.Recurrence) error {
	if _, err := rec.Rule.Build(rec.Anchor); err != nil {
		return validationError(rec.ID, InvariantRecurrence, err.Error(), "rule")
	}
	if rec.End.Type == model.EndCount && rec.End.Count <= 0 {
		return validationError(rec.ID, InvariantRecurrence, "count end condition needs a positive count", "end.count")
	}

	t := &rec.Template
	t.Title = model.NormalizeTitle(t.Title)
	probe := model.Goal{ID: rec.ID, Title: t.Title, Kind: t.Kind, CriteriaTime: t.CriteriaTime, Window: t.Window}
	if err := checkCriteria(&probe); err != nil {
		return err
	}
	if t.Window != nil {
		t.Window.Mode = probe.Window.Mode
	}
	if t.DeadlineOffset != nil && *t.DeadlineOffset < 0 {
		return validationError(rec.ID, InvariantDates, "deadline offset must not be negative", "template.deadline_offset")
	}
	if err := r.e.checkCallbacks(rec.ID, t.Callbacks); err != nil {
		return err
	}

	if rec.ParentID == "" {
		return nil
	}
	parent, err := r.e.checkParent(ctx, tx, "", rec.ParentID)
	if err != nil {
		return err
	}
	if parent.Status != model.StatusDraft && rec.Anchor.Before(parent.StartDate) {
		return validationError(rec.ID, InvariantRecurrence,
			fmt.Sprintf("anchor %s is before parent start %s", rec.Anchor.Format(timeLayout), parent.StartDate.Format(timeLayout)),
			"anchor")
	}
	return nil
}

// Get reads a recurrence.
func (r *RecurrenceEngine) Get(ctx context.Context, tx *store.Tx, id string) (model.Recurrence, error) {
	rec, err := tx.GetRecurrence(ctx, id)
	if err != nil {
		return model.Recurrence{}, notFound(err, "recurrence", id)
	}
	return rec, nil
}

// Update edits a recurrence. Goals already spawned keep their snapshot.
func (r *RecurrenceEngine) Update(ctx context.Context, tx *store.Tx, id string, p model.RecurrencePatch) (model.Recurrence, error) {
	rec, err := r.Get(ctx, tx, id)
	if err != nil {
		return model.Recurrence{}, err
	}
	if p.Rule != nil {
		rec.Rule = *p.Rule
	}
	if p.End != nil {
		rec.End = *p.End
	}
	if p.Omissions != nil {
		rec.Omissions = *p.Omissions
	}
	if p.Template != nil {
		if err := model.ValidateStruct(*p.Template); err != nil {
			return model.Recurrence{}, shapeError(id, err)
		}
		rec.Template = *p.Template
	}
	if err := model.ValidateStruct(rec.Rule); err != nil {
		return model.Recurrence{}, shapeError(id, err)
	}
	if err := r.check(ctx, tx, &rec); err != nil {
		return model.Recurrence{}, err
	}
	rec.UpdatedAt = r.e.wall.Now()
	if err := tx.UpdateRecurrence(ctx, rec); err != nil {
		return model.Recurrence{}, notFound(err, "recurrence", id)
	}
	return rec, nil
}

// NextOccurrence returns the first non-omitted occurrence starting after
// the given time. ok is false when the end condition stops generation first.
func (r *RecurrenceEngine) NextOccurrence(rec model.Recurrence, after time.Time) (occ model.Occurrence, ok bool, err error) {
	err = rec.Walk(func(o model.Occurrence, omitted bool) bool {
		if omitted || !o.Start.After(after) {
			return true
		}
		occ, ok = o, true
		return false
	})
	return occ, ok, err
}

// spawnGate holds what SpawnDue and Respawn check before each occurrence.
type spawnGate struct {
	parent  *model.Goal
	spawned map[int]string
	active  []model.Goal
}

// gate returns ok=false when the parent cannot take new instances.
func (r *RecurrenceEngine) gate(ctx context.Context, tx *store.Tx, rec model.Recurrence) (spawnGate, bool, error) {
	var g spawnGate
	if rec.ParentID != "" {
		parent, err := r.e.Goals.Get(ctx, tx, rec.ParentID)
		if err != nil {
			return g, false, err
		}
		if parent.Status != model.StatusActive {
			return g, false, nil
		}
		g.parent = &parent
	}
	var err error
	if g.spawned, err = tx.SpawnedOccurrences(ctx, rec.ID); err != nil {
		return g, false, err
	}
	g.active, err = tx.QueryGoals(ctx, model.GoalFilter{
		RecurrenceID: rec.ID,
		Statuses:     []model.Status{model.StatusActive},
	})
	return g, err == nil, err
}

// blocked reports whether an earlier instance is still active. An expired
// instance waiting in the queue stays active until it is resolved, so it
// blocks too.
func (g *spawnGate) blocked() bool {
	return len(g.active) > 0
}

// fits reports whether the instance lies within the parent's bounds.
func (g *spawnGate) fits(d model.GoalDraft) bool {
	if g.parent == nil {
		return true
	}
	if d.StartDate.Before(g.parent.StartDate) {
		return false
	}
	return d.Deadline == nil || g.parent.Deadline == nil || !d.Deadline.After(*g.parent.Deadline)
}

// pastParent reports whether the occurrence starts after the parent's
// deadline. Later occurrences start later still.
func (g *spawnGate) pastParent(occ model.Occurrence) bool {
	return g.parent != nil && g.parent.Deadline != nil && occ.Start.After(*g.parent.Deadline)
}

// SpawnDue spawns every due occurrence of rec, that is every non-omitted,
// unspawned occurrence starting at or before now. Returns the new goal ids.
//
// Spawning stops at the first occurrence that would exceed the parent's
// deadline, or while an earlier instance is active, including one that
// expired and waits for resolution. A host that was away across several
// occurrences therefore gets them one at a time, each after the previous
// one is resolved.
func (r *RecurrenceEngine) SpawnDue(ctx context.Context, tx *store.Tx, rec model.Recurrence, now time.Time) ([]string, error) {
	gate, ok, err := r.gate(ctx, tx, rec)
	if err != nil || !ok {
		return nil, err
	}

	var (
		ids     []string
		walkErr error
	)
	err = rec.Walk(func(occ model.Occurrence, omitted bool) bool {
		if occ.Start.After(now) || gate.pastParent(occ) {
			return false
		}
		if omitted {
			return true
		}
		if _, done := gate.spawned[occ.Index]; done {
			return true
		}
		if gate.blocked() {
			return false
		}
		var id string
		id, walkErr = r.spawn(ctx, tx, &rec, &gate, occ)
		if walkErr != nil || id == "" {
			return false
		}
		ids = append(ids, id)
		return true
	})
	if err == nil {
		err = walkErr
	}
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		if err := tx.UpdateRecurrence(ctx, rec); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Respawn spawns the next unspawned occurrence starting after now, ahead
// of its start. Used when a failed instance bought its parent more time.
// Returns "" when no occurrence can be spawned.
func (r *RecurrenceEngine) Respawn(ctx context.Context, tx *store.Tx, recID string, now time.Time) (string, error) {
	rec, err := r.Get(ctx, tx, recID)
	if err != nil {
		return "", err
	}
	gate, ok, err := r.gate(ctx, tx, rec)
	if err != nil || !ok {
		return "", err
	}

	var (
		id      string
		walkErr error
	)
	err = rec.Walk(func(occ model.Occurrence, omitted bool) bool {
		if gate.pastParent(occ) {
			return false
		}
		if omitted || !occ.Start.After(now) {
			return true
		}
		if _, done := gate.spawned[occ.Index]; done {
			return true
		}
		if gate.blocked() {
			return false
		}
		id, walkErr = r.spawn(ctx, tx, &rec, &gate, occ)
		return false
	})
	if err == nil {
		err = walkErr
	}
	if err != nil || id == "" {
		return "", err
	}
	if err := tx.UpdateRecurrence(ctx, rec); err != nil {
		return "", err
	}
	slog.Debug("recurrence respawned", "recurrence", recID, "goal", id)
	return id, nil
}

// spawn claims the occurrence key and creates the instance. It returns ""
// without error when the instance does not fit the parent's bounds or the
// key was already claimed.
func (r *RecurrenceEngine) spawn(ctx context.Context, tx *store.Tx, rec *model.Recurrence, gate *spawnGate, occ model.Occurrence) (string, error) {
	draft := rec.Template.Instantiate(occ)
	draft.ParentID = rec.ParentID
	if !gate.fits(draft) {
		return "", nil
	}

	hash, err := model.TemplateHash(rec.Template)
	if err != nil {
		return "", err
	}
	draft.RecurrenceID = rec.ID
	draft.OccurrenceIndex = occ.Index
	draft.TemplateHash = hash

	id := r.e.ids.Generate()
	claimed, err := tx.ClaimOccurrence(ctx, rec.ID, occ.Index, id, r.e.clock.Next())
	if err != nil || !claimed {
		return "", err
	}
	if _, err := r.e.Goals.create(ctx, tx, id, draft); err != nil {
		return "", fmt.Errorf("spawn occurrence %d of %s: %w", occ.Index, rec.ID, err)
	}

	inst, err := r.e.Goals.Get(ctx, tx, id)
	if err != nil {
		return "", err
	}
	gate.spawned[occ.Index] = id
	gate.active = append(gate.active, inst)
	if rec.SpawnedThrough == nil || occ.Start.After(*rec.SpawnedThrough) {
		start := occ.Start
		rec.SpawnedThrough = &start
	}
	slog.Debug("recurrence instance spawned", "recurrence", rec.ID, "index", occ.Index, "goal", id)
	return id, nil
}
