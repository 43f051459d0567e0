package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/goalclock/internal/model"
)

// AppendLog adds a quantity entry to a window goal's log.
func (t *Tx) AppendLog(ctx context.Context, e model.LogEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO window_log (goal_id, ts, quantity, seq) VALUES (?, ?, ?, ?)
	`, e.GoalID, toNanos(e.Timestamp), e.Quantity, e.Seq)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// LogEntries returns a goal's entries with after < ts <= through, oldest first.
func (t *Tx) LogEntries(ctx context.Context, goalID string, after, through time.Time) ([]model.LogEntry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT ts, quantity, seq FROM window_log
		WHERE goal_id = ? AND ts > ? AND ts <= ?
		ORDER BY ts ASC, seq ASC
	`, goalID, after.UnixNano(), through.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("log entries: %w", err)
	}
	defer rows.Close()

	var out []model.LogEntry
	for rows.Next() {
		e := model.LogEntry{GoalID: goalID}
		var ts int64
		if err := rows.Scan(&ts, &e.Quantity, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Timestamp = fromNanos(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetWindowState reads a goal's replay cursor. Returns ErrNotFound before
// the first evaluation.
func (t *Tx) GetWindowState(ctx context.Context, goalID string) (model.WindowState, error) {
	st := model.WindowState{GoalID: goalID}
	var through, runStart int64
	var maintained int
	err := t.tx.QueryRowContext(ctx, `
		SELECT evaluated_through, maintained, run_start, fired FROM window_state WHERE goal_id = ?
	`, goalID).Scan(&through, &maintained, &runStart, &st.Fired)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WindowState{}, fmt.Errorf("window state %s: %w", goalID, ErrNotFound)
	}
	if err != nil {
		return model.WindowState{}, fmt.Errorf("get window state: %w", err)
	}
	st.EvaluatedThrough = fromNanos(through)
	st.Maintained = maintained != 0
	st.RunStart = fromNanos(runStart)
	return st, nil
}

// PutWindowState upserts a goal's replay cursor.
func (t *Tx) PutWindowState(ctx context.Context, st model.WindowState) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO window_state (goal_id, evaluated_through, maintained, run_start, fired)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(goal_id) DO UPDATE SET
			evaluated_through = excluded.evaluated_through,
			maintained = excluded.maintained,
			run_start = excluded.run_start,
			fired = excluded.fired
	`, st.GoalID, toNanos(st.EvaluatedThrough), boolInt(st.Maintained), toNanos(st.RunStart), st.Fired)
	if err != nil {
		return fmt.Errorf("put window state: %w", err)
	}
	return nil
}
