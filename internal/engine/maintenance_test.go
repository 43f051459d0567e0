package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/goalclock/internal/model"
)

func windowDraft(spec model.WindowSpec, cbs model.CallbackSets) model.GoalDraft {
	return model.GoalDraft{
		Title:     "practice",
		Kind:      model.KindWindow,
		StartDate: t0,
		Window:    &spec,
		Callbacks: cbs,
	}
}

func TestMaintenance_TrailingWindowSum(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, windowDraft(model.WindowSpec{
		Duration:  7 * day,
		Threshold: 5,
		Mode:      model.EvalContinuous,
		Interval:  day,
	}, model.CallbackSets{}))

	err := f.e.Log(f.ctx, id, t0, 3)
	require.NoError(t, err)
	f.clock.Set(at(6 * day))
	err = f.e.Log(f.ctx, id, at(6*day), 2)
	require.NoError(t, err)

	ev, err := f.e.Evaluate(f.ctx, id, at(6*day))
	require.NoError(t, err)
	assert.Equal(t, 5.0, ev.Sum)
	assert.True(t, ev.Maintained)

	ev, err = f.e.Evaluate(f.ctx, id, at(7*day))
	require.NoError(t, err)
	assert.Equal(t, 2.0, ev.Sum)
	assert.False(t, ev.Maintained)
}

func TestMaintenance_IntervalModeFiresWholeIntervalsOnly(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, windowDraft(model.WindowSpec{
		Duration:  day,
		Threshold: 1,
		Mode:      model.EvalInterval,
		Interval:  day,
	}, model.CallbackSets{OnFailure: []model.Callback{model.Manual("missed a day")}}))

	att := f.advance(t, at(23*time.Hour))
	assert.Empty(t, att.Firings)

	att = f.advance(t, at(day))
	require.Len(t, att.Firings, 1)
	firing := att.Firings[0]
	assert.Equal(t, id, firing.GoalID)
	assert.Equal(t, model.SetFailure, firing.Set)
	assert.Equal(t, t0, firing.From)
	assert.Equal(t, at(day), firing.To)
	require.Len(t, firing.Execution.Pending, 1)
	assert.False(t, firing.Execution.Pending[0].Blocking)

	att = f.advance(t, at(day))
	assert.Empty(t, att.Firings)
	assert.Len(t, att.Acks, 1)
}

func TestMaintenance_IntervalRunResetsOnStateChange(t *testing.T) {
	var good, bad []float64
	f := newFixture(t, WithRegistry(registryWith(t,
		countingAction("good", &good),
		countingAction("bad", &bad),
	)))
	id := f.create(t, windowDraft(model.WindowSpec{
		Duration:  2 * day,
		Threshold: 1,
		Mode:      model.EvalInterval,
		Interval:  day,
	}, model.CallbackSets{
		OnSuccess: []model.Callback{model.Automatic("good", nil)},
		OnFailure: []model.Callback{model.Automatic("bad", nil)},
	}))

	f.advance(t, at(day))
	assert.Len(t, bad, 1)

	f.clock.Set(at(36 * time.Hour))
	err := f.e.Log(f.ctx, id, at(36*time.Hour), 1)
	require.NoError(t, err)

	f.advance(t, at(3*day))
	assert.Len(t, bad, 1, "half a day unmaintained is not a whole interval")
	assert.Len(t, good, 1)

	// Maintained until the entry leaves the window at 3d12h.
	f.advance(t, at(4*day))
	assert.Len(t, good, 2)
	assert.Len(t, bad, 1)
}

func TestMaintenance_BackfilledEntriesReplayOnAdvance(t *testing.T) {
	var good, bad []float64
	f := newFixture(t, WithRegistry(registryWith(t,
		countingAction("good", &good),
		countingAction("bad", &bad),
	)))
	id := f.create(t, windowDraft(model.WindowSpec{
		Duration:  day,
		Threshold: 1,
		Mode:      model.EvalInterval,
		Interval:  day,
	}, model.CallbackSets{
		OnSuccess: []model.Callback{model.Automatic("good", nil)},
		OnFailure: []model.Callback{model.Automatic("bad", nil)},
	}))

	// The host was away for three days and backfills out of order.
	f.clock.Set(at(3 * day))
	for _, h := range []time.Duration{60, 12, 36} {
		require.NoError(t, f.e.Log(f.ctx, id, at(h*time.Hour), 1))
	}

	ev, err := f.e.Evaluate(f.ctx, id, at(2*day))
	require.NoError(t, err)
	assert.True(t, ev.Maintained)

	att := f.advance(t, at(3*day))
	assert.Empty(t, bad, "only twelve hours were ever unmaintained")
	assert.Len(t, good, 2)
	for _, firing := range att.Firings {
		assert.Equal(t, model.SetSuccess, firing.Set)
	}

	// An entry older than the evaluated span does not revisit fired callbacks.
	require.NoError(t, f.e.Log(f.ctx, id, at(time.Hour), 5))
	f.advance(t, at(3*day))
	assert.Len(t, good, 2)
	assert.Empty(t, bad)
}

func TestMaintenance_ContinuousModeFractionalUnits(t *testing.T) {
	var units []float64
	f := newFixture(t, WithRegistry(registryWith(t, countingAction("count", &units))))
	id := f.create(t, windowDraft(model.WindowSpec{
		Duration:  day,
		Threshold: 1,
		Mode:      model.EvalContinuous,
		Interval:  time.Hour,
	}, model.CallbackSets{
		OnFailure: []model.Callback{model.Automatic("count", nil), model.Manual("nudge")},
	}))

	att := f.advance(t, at(90*time.Minute))
	require.Len(t, att.Firings, 1)
	assert.InDelta(t, 1.5, att.Firings[0].Units, 1e-9)
	assert.Len(t, att.Firings[0].Execution.Pending, 1)

	att = f.advance(t, at(3*time.Hour))
	require.Len(t, att.Firings, 1)
	assert.Empty(t, att.Firings[0].Execution.Pending, "manual callbacks fire once per run")
	assert.InDeltaSlice(t, []float64{1.5, 1.5}, units, 1e-9)

	err := f.e.Log(f.ctx, id, at(3*time.Hour), 2)
	require.NoError(t, err)
	f.advance(t, at(4*time.Hour))
	assert.Len(t, units, 2, "maintained spans fire on_success")
}

func TestMaintenance_StopsAtDeadline(t *testing.T) {
	var units []float64
	f := newFixture(t, WithRegistry(registryWith(t, countingAction("count", &units))))
	d := windowDraft(model.WindowSpec{
		Duration:  day,
		Threshold: 1,
		Mode:      model.EvalContinuous,
		Interval:  time.Hour,
	}, model.CallbackSets{OnFailure: []model.Callback{model.Automatic("count", nil)}})
	d.Deadline = ptr(at(2 * time.Hour))
	id := f.create(t, d)

	att := f.advance(t, at(5*time.Hour))
	assert.InDeltaSlice(t, []float64{2}, units, 1e-9)
	assert.Equal(t, []string{id}, att.Enqueued)
}

func TestMaintenance_LogValidation(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, windowDraft(model.WindowSpec{Duration: day, Threshold: 1, Interval: time.Hour}, model.CallbackSets{}))
	assert.Equal(t, model.EvalContinuous, f.goal(t, id).Window.Mode)

	err := f.e.Log(f.ctx, id, t0, math.NaN())
	assert.True(t, IsValidation(err))
	assert.Equal(t, InvariantWindowNumeric, InvariantOf(err))

	err = f.e.Log(f.ctx, id, t0, math.Inf(1))
	assert.Equal(t, InvariantWindowNumeric, InvariantOf(err))

	task := f.create(t, taskDraft("task", t0, nil))
	err = f.e.Log(f.ctx, task, t0, 1)
	assert.True(t, IsValidation(err))

	err = f.e.Log(f.ctx, "missing", t0, 1)
	assert.True(t, IsNotFound(err))
}

func TestMaintenance_NeedingCatchUp(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, windowDraft(model.WindowSpec{Duration: day, Threshold: 1, Interval: time.Hour}, model.CallbackSets{}))

	goals, err := f.e.NeedingCatchUp(f.ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, goals)

	goals, err = f.e.NeedingCatchUp(f.ctx, at(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids(goals))

	f.advance(t, at(time.Hour))
	goals, err = f.e.NeedingCatchUp(f.ctx, at(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, goals)
}
