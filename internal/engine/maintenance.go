package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// MaintenanceTracker evaluates window goals: a goal is maintained at time t
// when the quantities logged in (t-W, t] sum to at least the threshold.
//
// The state is piecewise constant between breakpoints (each log timestamp
// and each timestamp plus W). CatchUp replays those segments from the last
// evaluated time, so evaluation depends on elapsed wall-clock time only.
type MaintenanceTracker struct {
	e *Engine
}

// Evaluation is the window state at one instant.
type Evaluation struct {
	GoalID     string    `json:"goal_id"`
	At         time.Time `json:"at"`
	Sum        float64   `json:"sum"`
	Threshold  float64   `json:"threshold"`
	Maintained bool      `json:"maintained"`
}

// WindowFiring is one batch of callbacks fired during catch-up.
type WindowFiring struct {
	GoalID    string        `json:"goal_id"`
	Set       model.SetName `json:"set"`
	From      time.Time     `json:"from"`
	To        time.Time     `json:"to"`
	Units     float64       `json:"units"`
	Event     string        `json:"event"`
	Execution Execution     `json:"execution"`
}

func (m *MaintenanceTracker) windowGoal(ctx context.Context, tx *store.Tx, id string) (model.Goal, error) {
	g, err := m.e.Goals.Get(ctx, tx, id)
	if err != nil {
		return model.Goal{}, err
	}
	if g.Kind != model.KindWindow || g.Window == nil {
		return model.Goal{}, validationError(id, InvariantCriteria, fmt.Sprintf("%s goal has no window", g.Kind), "kind")
	}
	return g, nil
}

// Log appends a quantity without evaluating. Timestamps may lie in the
// past: entries after the last evaluated time are all replayed by the next
// CatchUp. Entries before it only affect evaluations from then on.
func (m *MaintenanceTracker) Log(ctx context.Context, tx *store.Tx, id string, ts time.Time, qty float64) error {
	if math.IsNaN(qty) || math.IsInf(qty, 0) {
		return validationError(id, InvariantWindowNumeric, "quantity must be a finite number", "quantity")
	}
	g, err := m.windowGoal(ctx, tx, id)
	if err != nil {
		return err
	}
	if g.Status.IsTerminal() || g.Status == model.StatusPendingFinalization {
		return stateError(id, "cannot log against a %s goal", g.Status)
	}
	return tx.AppendLog(ctx, model.LogEntry{
		GoalID:    id,
		Timestamp: ts.UTC(),
		Quantity:  qty,
		Seq:       m.e.clock.Next(),
	})
}

// Evaluate computes the trailing sum over (at-W, at].
func (m *MaintenanceTracker) Evaluate(ctx context.Context, tx *store.Tx, id string, at time.Time) (Evaluation, error) {
	g, err := m.windowGoal(ctx, tx, id)
	if err != nil {
		return Evaluation{}, err
	}
	entries, err := tx.LogEntries(ctx, id, at.Add(-g.Window.Duration), at)
	if err != nil {
		return Evaluation{}, err
	}
	sum := sumAt(entries, at, g.Window.Duration)
	return Evaluation{
		GoalID:     id,
		At:         at,
		Sum:        sum,
		Threshold:  g.Window.Threshold,
		Maintained: sum >= g.Window.Threshold,
	}, nil
}

func sumAt(entries []model.LogEntry, at time.Time, w time.Duration) float64 {
	from := at.Add(-w)
	var sum float64
	for _, e := range entries {
		if e.Timestamp.After(from) && !e.Timestamp.After(at) {
			sum += e.Quantity
		}
	}
	return sum
}

// evaluationEnd is where catch-up stops: now, or the deadline if earlier.
func evaluationEnd(g model.Goal, now time.Time) time.Time {
	if g.Deadline != nil && g.Deadline.Before(now) {
		return *g.Deadline
	}
	return now
}

// CatchUp replays an active window goal from its last evaluated time to
// now (capped at its deadline) and fires the callbacks owed for that span.
//
// Interval mode fires one callback per whole interval spent in one state,
// counted from the start of the current run. Continuous mode fires the
// automatic callbacks once per segment with units equal to the segment's
// length in intervals, and each manual callback once per run.
//
// Maintained spans fire on_success, unmaintained spans fire on_failure.
// Firings never block finalization.
func (m *MaintenanceTracker) CatchUp(ctx context.Context, tx *store.Tx, id string, now time.Time) ([]WindowFiring, error) {
	g, err := m.windowGoal(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if g.Status != model.StatusActive {
		return nil, nil
	}
	spec := *g.Window
	end := evaluationEnd(g, now)

	st, err := tx.GetWindowState(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		ev, err := m.Evaluate(ctx, tx, id, g.StartDate)
		if err != nil {
			return nil, err
		}
		st = model.WindowState{
			GoalID:           id,
			EvaluatedThrough: g.StartDate,
			Maintained:       ev.Maintained,
			RunStart:         g.StartDate,
		}
		if err := tx.PutWindowState(ctx, st); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	if !end.After(st.EvaluatedThrough) {
		return nil, nil
	}

	from := st.EvaluatedThrough
	entries, err := tx.LogEntries(ctx, id, from.Add(-spec.Duration), end)
	if err != nil {
		return nil, err
	}

	var firings []WindowFiring
	points := breakpoints(entries, spec.Duration, from, end)
	for i := 0; i+1 < len(points); i++ {
		a, b := points[i], points[i+1]
		maintained := sumAt(entries, a, spec.Duration) >= spec.Threshold
		if maintained != st.Maintained {
			st.Maintained = maintained
			st.RunStart = a
			st.Fired = 0
		}

		var fs []WindowFiring
		if spec.Mode == model.EvalInterval {
			fs, err = m.fireIntervals(ctx, tx, g, &st, b)
		} else {
			fs, err = m.fireContinuous(ctx, tx, g, &st, a, b)
		}
		if err != nil {
			return nil, err
		}
		firings = append(firings, fs...)
	}

	st.EvaluatedThrough = end
	if err := tx.PutWindowState(ctx, st); err != nil {
		return nil, err
	}
	if len(firings) > 0 {
		slog.Debug("window caught up", "id", id, "through", end, "firings", len(firings), "maintained", st.Maintained)
	}
	return firings, nil
}

// breakpoints returns from, every state change point strictly inside
// (from, end), and end, sorted and deduplicated.
func breakpoints(entries []model.LogEntry, w time.Duration, from, end time.Time) []time.Time {
	points := []time.Time{from, end}
	for _, e := range entries {
		for _, t := range []time.Time{e.Timestamp, e.Timestamp.Add(w)} {
			if t.After(from) && t.Before(end) {
				points = append(points, t)
			}
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })

	out := points[:1]
	for _, t := range points[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}

func stateSet(maintained bool) model.SetName {
	if maintained {
		return model.SetSuccess
	}
	return model.SetFailure
}

// fireIntervals fires every whole interval of the current run completed by
// `through` and not fired yet.
func (m *MaintenanceTracker) fireIntervals(ctx context.Context, tx *store.Tx, g model.Goal, st *model.WindowState, through time.Time) ([]WindowFiring, error) {
	interval := g.Window.Interval
	whole := int(through.Sub(st.RunStart) / interval)

	var firings []WindowFiring
	for k := st.Fired + 1; k <= whole; k++ {
		set := stateSet(st.Maintained)
		at := st.RunStart.Add(time.Duration(k) * interval)
		event := fmt.Sprintf("window:%d:%d", st.RunStart.UnixNano(), k)
		exec, err := m.e.Callbacks.Execute(ctx, tx, g, Trigger{
			Event: event,
			Sets:  []model.SetName{set},
			Units: 1,
			At:    at,
		})
		if err != nil {
			return nil, err
		}
		firings = append(firings, WindowFiring{
			GoalID:    g.ID,
			Set:       set,
			From:      at.Add(-interval),
			To:        at,
			Units:     1,
			Event:     event,
			Execution: exec,
		})
		st.Fired = k
	}
	return firings, nil
}

// fireContinuous fires automatic callbacks for the segment [a, b) and the
// run's manual callbacks once.
func (m *MaintenanceTracker) fireContinuous(ctx context.Context, tx *store.Tx, g model.Goal, st *model.WindowState, a, b time.Time) ([]WindowFiring, error) {
	set := stateSet(st.Maintained)
	units := float64(b.Sub(a)) / float64(g.Window.Interval)
	event := fmt.Sprintf("window:%d-%d", a.UnixNano(), b.UnixNano())

	exec, err := m.e.Callbacks.Execute(ctx, tx, g, Trigger{
		Event:      event,
		Sets:       []model.SetName{set},
		Units:      units,
		At:         b,
		SkipManual: true,
	})
	if err != nil {
		return nil, err
	}
	if st.Fired == 0 {
		manual, err := m.e.Callbacks.Execute(ctx, tx, g, Trigger{
			Event:         fmt.Sprintf("window-run:%d", st.RunStart.UnixNano()),
			Sets:          []model.SetName{set},
			At:            a,
			SkipAutomatic: true,
		})
		if err != nil {
			return nil, err
		}
		exec.Pending = manual.Pending
		st.Fired = 1
	}
	if len(exec.Results) == 0 && len(exec.Pending) == 0 {
		return nil, nil
	}
	return []WindowFiring{{
		GoalID:    g.ID,
		Set:       set,
		From:      a,
		To:        b,
		Units:     units,
		Event:     event,
		Execution: exec,
	}}, nil
}

// NeedingCatchUp lists active window goals whose evaluation lags behind now.
func (m *MaintenanceTracker) NeedingCatchUp(ctx context.Context, tx *store.Tx, now time.Time) ([]model.Goal, error) {
	goals, err := tx.QueryGoals(ctx, model.GoalFilter{
		Statuses: []model.Status{model.StatusActive},
		Kinds:    []model.Kind{model.KindWindow},
	})
	if err != nil {
		return nil, err
	}
	var out []model.Goal
	for _, g := range goals {
		end := evaluationEnd(g, now)
		st, err := tx.GetWindowState(ctx, g.ID)
		if errors.Is(err, store.ErrNotFound) {
			if end.After(g.StartDate) {
				out = append(out, g)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if end.After(st.EvaluatedThrough) {
			out = append(out, g)
		}
	}
	return out, nil
}
