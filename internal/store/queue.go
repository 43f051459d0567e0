package store

import (
	"context"
	"fmt"
	"time"
)

// QueueRow is a raw resolution queue entry. Ordering is applied by the
// engine, which needs the goal tree to place descendants first.
type QueueRow struct {
	GoalID    string
	ExpiresAt time.Time
	Seq       int64
}

// Enqueue inserts a queue entry. The goal_id primary key makes a second
// insert for the same goal a no-op reported as inserted=false.
func (t *Tx) Enqueue(ctx context.Context, goalID string, expiresAt time.Time, seq int64) (inserted bool, err error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO resolution_queue (goal_id, expires_at, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(goal_id) DO NOTHING
	`, goalID, toNanos(expiresAt), seq)
	if err != nil {
		return false, fmt.Errorf("enqueue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue: rows affected: %w", err)
	}
	return n == 1, nil
}

// Dequeue removes a goal's entry and reports whether one existed.
func (t *Tx) Dequeue(ctx context.Context, goalID string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM resolution_queue WHERE goal_id = ?`, goalID)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dequeue: rows affected: %w", err)
	}
	return n == 1, nil
}

// IsQueued reports whether the goal has a queue entry.
func (t *Tx) IsQueued(ctx context.Context, goalID string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM resolution_queue WHERE goal_id = ?`, goalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is queued: %w", err)
	}
	return n > 0, nil
}

// QueueLen counts queue entries.
func (t *Tx) QueueLen(ctx context.Context) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM resolution_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue len: %w", err)
	}
	return n, nil
}

// QueueRows returns every entry ordered by expiry, then creation order.
func (t *Tx) QueueRows(ctx context.Context) ([]QueueRow, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT q.goal_id, q.expires_at, g.seq
		FROM resolution_queue q JOIN goals g ON g.id = q.goal_id
		ORDER BY q.expires_at ASC, g.seq ASC, q.goal_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("queue rows: %w", err)
	}
	defer rows.Close()

	var out []QueueRow
	for rows.Next() {
		var (
			r       QueueRow
			expires int64
		)
		if err := rows.Scan(&r.GoalID, &expires, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		r.ExpiresAt = fromNanos(expires)
		out = append(out, r)
	}
	return out, rows.Err()
}
