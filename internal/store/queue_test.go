package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/goalclock/internal/model"
)

func TestEnqueueRejectsDuplicates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAtomic(t, s, func(tx *Tx) error {
		if err := tx.InsertGoal(ctx, testGoal("g1", "", 1)); err != nil {
			return err
		}
		inserted, err := tx.Enqueue(ctx, "g1", testEpoch, 2)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = tx.Enqueue(ctx, "g1", testEpoch, 3)
		require.NoError(t, err)
		assert.False(t, inserted)

		n, err := tx.QueueLen(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	})
}

func TestQueueRowsOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAtomic(t, s, func(tx *Tx) error {
		for _, g := range []model.Goal{testGoal("a", "", 1), testGoal("b", "", 2), testGoal("c", "", 3)} {
			if err := tx.InsertGoal(ctx, g); err != nil {
				return err
			}
		}
		// c expires first; a and b tie and fall back to creation order.
		for _, q := range []struct {
			id string
			at time.Time
		}{{"b", testEpoch.Add(time.Hour)}, {"a", testEpoch.Add(time.Hour)}, {"c", testEpoch}} {
			if _, err := tx.Enqueue(ctx, q.id, q.at, 10); err != nil {
				return err
			}
		}
		return nil
	})

	mustAtomic(t, s, func(tx *Tx) error {
		rows, err := tx.QueueRows(ctx)
		require.NoError(t, err)
		var ids []string
		for _, r := range rows {
			ids = append(ids, r.GoalID)
		}
		assert.Equal(t, []string{"c", "a", "b"}, ids)

		removed, err := tx.Dequeue(ctx, "a")
		require.NoError(t, err)
		assert.True(t, removed)
		queued, err := tx.IsQueued(ctx, "a")
		require.NoError(t, err)
		assert.False(t, queued)

		removed, err = tx.Dequeue(ctx, "a")
		require.NoError(t, err)
		assert.False(t, removed)
		return nil
	})
}
