package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
	"github.com/roach88/goalclock/internal/testutil"
)

const day = 24 * time.Hour

// t0 is a Monday.
var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func ptr(t time.Time) *time.Time { return &t }

func dur(d time.Duration) *time.Duration { return &d }

type fixture struct {
	ctx   context.Context
	e     *Engine
	clock *testutil.FixedClock
	store *store.Store
}

// newFixture opens a fresh store in t.TempDir() with a fixed clock at t0
// and sequential ids g-1, g-2, ...
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "goalclock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewFixedClock(t0)
	opts = append([]Option{
		WithWallClock(clock),
		WithIDGenerator(testutil.NewSequentialIDs("g")),
	}, opts...)

	e, err := New(context.Background(), s, opts...)
	require.NoError(t, err)
	return &fixture{ctx: context.Background(), e: e, clock: clock, store: s}
}

func (f *fixture) create(t *testing.T, d model.GoalDraft) string {
	t.Helper()
	id, err := f.e.CreateGoal(f.ctx, d)
	require.NoError(t, err)
	return id
}

func (f *fixture) goal(t *testing.T, id string) model.Goal {
	t.Helper()
	g, err := f.e.Goal(f.ctx, id)
	require.NoError(t, err)
	return g
}

// advance moves the wall clock to now and runs Advance.
func (f *fixture) advance(t *testing.T, now time.Time) Attention {
	t.Helper()
	f.clock.Set(now)
	att, err := f.e.Advance(f.ctx, now)
	require.NoError(t, err)
	return att
}

func taskDraft(title string, start time.Time, deadline *time.Time) model.GoalDraft {
	return model.GoalDraft{Title: title, Kind: model.KindTask, StartDate: start, Deadline: deadline}
}

// countingAction records the units of every run.
func countingAction(name string, units *[]float64) Action {
	return Action{
		Name: name,
		Run: func(ctx context.Context, ac ActionContext) (map[string]string, error) {
			*units = append(*units, ac.Units)
			return map[string]string{"status": statusApplied}, nil
		},
	}
}

func registryWith(t *testing.T, actions ...Action) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, a := range actions {
		require.NoError(t, r.Register(a))
	}
	return r
}
