package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/goalclock/internal/model"
)

const ackColumns = `goal_id, ack_index, event, set_name, cb_index, text, blocking, acknowledged`

// InsertAck registers a manual callback as pending acknowledgment and
// assigns it the goal's next ack index. The (goal, event, set, callback
// index) key makes re-registration a no-op that returns the existing ack.
func (t *Tx) InsertAck(ctx context.Context, ack model.PendingAck, seq int64) (model.PendingAck, bool, error) {
	var next int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(ack_index), 0) + 1 FROM pending_acks WHERE goal_id = ?
	`, ack.GoalID).Scan(&next)
	if err != nil {
		return model.PendingAck{}, false, fmt.Errorf("insert ack: next index: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO pending_acks (`+ackColumns+`, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(goal_id, event, set_name, cb_index) DO NOTHING
	`, ack.GoalID, next, ack.Event, string(ack.Set), ack.CallbackIndex, ack.Text, boolInt(ack.Blocking), seq)
	if err != nil {
		return model.PendingAck{}, false, fmt.Errorf("insert ack: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.PendingAck{}, false, fmt.Errorf("insert ack: rows affected: %w", err)
	}
	if n == 1 {
		ack.Index = next
		ack.Acknowledged = false
		return ack, true, nil
	}

	row := t.tx.QueryRowContext(ctx, `
		SELECT `+ackColumns+` FROM pending_acks
		WHERE goal_id = ? AND event = ? AND set_name = ? AND cb_index = ?
	`, ack.GoalID, ack.Event, string(ack.Set), ack.CallbackIndex)
	existing, err := scanAck(row)
	if err != nil {
		return model.PendingAck{}, false, fmt.Errorf("insert ack: read existing: %w", err)
	}
	return existing, false, nil
}

// GetAck reads one acknowledgment by goal and ack index.
func (t *Tx) GetAck(ctx context.Context, goalID string, index int) (model.PendingAck, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+ackColumns+` FROM pending_acks WHERE goal_id = ? AND ack_index = ?
	`, goalID, index)
	ack, err := scanAck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PendingAck{}, fmt.Errorf("ack %s/%d: %w", goalID, index, ErrNotFound)
	}
	if err != nil {
		return model.PendingAck{}, fmt.Errorf("get ack: %w", err)
	}
	return ack, nil
}

// MarkAcknowledged flags an acknowledgment as done.
func (t *Tx) MarkAcknowledged(ctx context.Context, goalID string, index int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE pending_acks SET acknowledged = 1 WHERE goal_id = ? AND ack_index = ?
	`, goalID, index)
	if err != nil {
		return fmt.Errorf("mark acknowledged: %w", err)
	}
	return nil
}

// ReleaseBlocking turns a goal's open blocking acks into notices.
func (t *Tx) ReleaseBlocking(ctx context.Context, goalID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE pending_acks SET blocking = 0 WHERE goal_id = ? AND acknowledged = 0
	`, goalID)
	if err != nil {
		return fmt.Errorf("release blocking acks: %w", err)
	}
	return nil
}

// OpenBlockingAcks counts unacknowledged acks that hold the goal in
// pending-finalization.
func (t *Tx) OpenBlockingAcks(ctx context.Context, goalID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_acks WHERE goal_id = ? AND blocking = 1 AND acknowledged = 0
	`, goalID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("open blocking acks: %w", err)
	}
	return n, nil
}

// OpenAcks lists every unacknowledged ack in registration order.
func (t *Tx) OpenAcks(ctx context.Context) ([]model.PendingAck, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+ackColumns+` FROM pending_acks
		WHERE acknowledged = 0
		ORDER BY seq ASC, goal_id COLLATE BINARY ASC, ack_index ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("open acks: %w", err)
	}
	defer rows.Close()

	var out []model.PendingAck
	for rows.Next() {
		ack, err := scanAck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ack: %w", err)
		}
		out = append(out, ack)
	}
	return out, rows.Err()
}

func scanAck(s scanner) (model.PendingAck, error) {
	var (
		ack                    model.PendingAck
		set                    string
		blocking, acknowledged int
	)
	err := s.Scan(&ack.GoalID, &ack.Index, &ack.Event, &set, &ack.CallbackIndex, &ack.Text, &blocking, &acknowledged)
	if err != nil {
		return model.PendingAck{}, err
	}
	ack.Set = model.SetName(set)
	ack.Blocking = blocking != 0
	ack.Acknowledged = acknowledged != 0
	return ack, nil
}
