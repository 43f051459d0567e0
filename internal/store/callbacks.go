package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/goalclock/internal/model"
)

// CallbackRun is the idempotency record of one automatic callback execution.
// Key: (GoalID, Event, Set, Index).
type CallbackRun struct {
	GoalID string
	Event  string
	Set    model.SetName
	Index  int
	Action string
	Result map[string]string
	Seq    int64
}

// ClaimCallbackRun claims the run key before its handler executes.
// A retry of the same key reports claimed=false; the caller then reads
// the stored result instead of running the action again.
func (t *Tx) ClaimCallbackRun(ctx context.Context, run CallbackRun) (claimed bool, err error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO callback_runs (goal_id, event, set_name, idx, action, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(goal_id, event, set_name, idx) DO NOTHING
	`, run.GoalID, run.Event, string(run.Set), run.Index, run.Action, run.Seq)
	if err != nil {
		return false, fmt.Errorf("claim callback run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim callback run: rows affected: %w", err)
	}
	return n == 1, nil
}

// SetCallbackResult stores the machine-readable result of a claimed run.
func (t *Tx) SetCallbackResult(ctx context.Context, run CallbackRun) error {
	result, err := marshalColumn("result", run.Result)
	if err != nil {
		return fmt.Errorf("set callback result: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		UPDATE callback_runs SET result = ?
		WHERE goal_id = ? AND event = ? AND set_name = ? AND idx = ?
	`, result, run.GoalID, run.Event, string(run.Set), run.Index)
	if err != nil {
		return fmt.Errorf("set callback result: %w", err)
	}
	return nil
}

// GetCallbackRun reads a run by key.
func (t *Tx) GetCallbackRun(ctx context.Context, goalID, event string, set model.SetName, index int) (CallbackRun, error) {
	run := CallbackRun{GoalID: goalID, Event: event, Set: set, Index: index}
	var result string
	err := t.tx.QueryRowContext(ctx, `
		SELECT action, result, seq FROM callback_runs
		WHERE goal_id = ? AND event = ? AND set_name = ? AND idx = ?
	`, goalID, event, string(set), index).Scan(&run.Action, &result, &run.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return CallbackRun{}, fmt.Errorf("callback run %s/%s/%s/%d: %w", goalID, event, set, index, ErrNotFound)
	}
	if err != nil {
		return CallbackRun{}, fmt.Errorf("get callback run: %w", err)
	}
	if err := unmarshalColumn("result", result, &run.Result); err != nil {
		return CallbackRun{}, err
	}
	return run, nil
}

// CallbackRuns lists a goal's runs in execution order.
func (t *Tx) CallbackRuns(ctx context.Context, goalID string) ([]CallbackRun, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT event, set_name, idx, action, result, seq FROM callback_runs
		WHERE goal_id = ?
		ORDER BY seq ASC, idx ASC
	`, goalID)
	if err != nil {
		return nil, fmt.Errorf("callback runs: %w", err)
	}
	defer rows.Close()

	var out []CallbackRun
	for rows.Next() {
		run := CallbackRun{GoalID: goalID}
		var set, result string
		if err := rows.Scan(&run.Event, &set, &run.Index, &run.Action, &result, &run.Seq); err != nil {
			return nil, fmt.Errorf("scan callback run: %w", err)
		}
		run.Set = model.SetName(set)
		if err := unmarshalColumn("result", result, &run.Result); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
