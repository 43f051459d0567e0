package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/goalclock/internal/model"
)

const goalColumns = `id, parent_id, title, kind, status, start_date, deadline, tentative_date,
	criteria_time, tightly_bound, recurrence_id, occurrence_index, template_hash,
	callbacks, progress, window_spec, outcome, promotion_due, seq, created_at, updated_at`

// InsertGoal writes a new goal row. The id must not exist.
func (t *Tx) InsertGoal(ctx context.Context, g model.Goal) error {
	args, err := goalArgs(g)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

// UpdateGoal overwrites every mutable column of an existing goal.
// Returns ErrNotFound if the id has no row.
func (t *Tx) UpdateGoal(ctx context.Context, g model.Goal) error {
	callbacks, err := marshalColumn("callbacks", g.Callbacks)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	progress, err := marshalColumn("progress", g.Progress)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	window, err := marshalOptional("window", g.Window)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE goals SET
			parent_id = ?, title = ?, status = ?, start_date = ?, deadline = ?,
			tentative_date = ?, criteria_time = ?, tightly_bound = ?, callbacks = ?,
			progress = ?, window_spec = ?, outcome = ?, promotion_due = ?, updated_at = ?
		WHERE id = ?
	`,
		nullString(g.ParentID), g.Title, string(g.Status), toNanos(g.StartDate), nullNanos(g.Deadline),
		nullNanos(g.TentativeDate), int64(g.CriteriaTime), boolInt(g.TightlyBound), callbacks,
		progress, window, string(g.Outcome), boolInt(g.PromotionDue), toNanos(g.UpdatedAt),
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update goal: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update goal %s: %w", g.ID, ErrNotFound)
	}
	return nil
}

// GetGoal reads one goal with its ChildIDs populated.
func (t *Tx) GetGoal(ctx context.Context, id string) (model.Goal, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Goal{}, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Goal{}, fmt.Errorf("get goal %s: %w", id, err)
	}
	if g.ChildIDs, err = t.childIDs(ctx, id); err != nil {
		return model.Goal{}, err
	}
	return g, nil
}

// QueryGoals returns goals matching the filter in creation order.
func (t *Tx) QueryGoals(ctx context.Context, f model.GoalFilter) ([]model.Goal, error) {
	where, args := compileGoalFilter(f)
	query := `SELECT ` + goalColumns + ` FROM goals` + where + ` ORDER BY seq ASC, id COLLATE BINARY ASC`
	return t.queryGoals(ctx, query, args...)
}

// ExpiredGoals returns active goals whose deadline is at or before now.
func (t *Tx) ExpiredGoals(ctx context.Context, now time.Time) ([]model.Goal, error) {
	return t.queryGoals(ctx, `
		SELECT `+goalColumns+` FROM goals
		WHERE status = ? AND deadline IS NOT NULL AND deadline <= ?
		ORDER BY deadline ASC, seq ASC, id COLLATE BINARY ASC
	`, string(model.StatusActive), toNanos(now))
}

// DeleteGoals removes goals by id. Rows that reference them (children,
// queue entries, acknowledgments, logs, recurrences) go with them.
func (t *Tx) DeleteGoals(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM goals WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete goals: %w", err)
	}
	return nil
}

func (t *Tx) queryGoals(ctx context.Context, query string, args ...any) ([]model.Goal, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	rows.Close()

	// The single connection is free again; fill in children.
	for i := range goals {
		if goals[i].ChildIDs, err = t.childIDs(ctx, goals[i].ID); err != nil {
			return nil, err
		}
	}
	return goals, nil
}

func (t *Tx) childIDs(ctx context.Context, id string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id FROM goals WHERE parent_id = ? ORDER BY seq ASC, id COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("child ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("scan child id: %w", err)
		}
		ids = append(ids, child)
	}
	return ids, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(s scanner) (model.Goal, error) {
	var (
		g                              model.Goal
		parentID, recurrenceID, window sql.NullString
		kind, status, outcome          string
		start, created, updated        int64
		deadline, tentative            sql.NullInt64
		criteria                       int64
		tight, promotionDue            int
		callbacks, progress            string
	)
	err := s.Scan(
		&g.ID, &parentID, &g.Title, &kind, &status, &start, &deadline, &tentative,
		&criteria, &tight, &recurrenceID, &g.OccurrenceIndex, &g.TemplateHash,
		&callbacks, &progress, &window, &outcome, &promotionDue, &g.Seq, &created, &updated,
	)
	if err != nil {
		return model.Goal{}, err
	}
	g.ParentID = parentID.String
	g.RecurrenceID = recurrenceID.String
	g.Kind = model.Kind(kind)
	g.Status = model.Status(status)
	g.Outcome = model.Outcome(outcome)
	g.StartDate = fromNanos(start)
	g.Deadline = timePtr(deadline)
	g.TentativeDate = timePtr(tentative)
	g.CriteriaTime = time.Duration(criteria)
	g.TightlyBound = tight != 0
	g.PromotionDue = promotionDue != 0
	g.CreatedAt = fromNanos(created)
	g.UpdatedAt = fromNanos(updated)
	if err := unmarshalColumn("callbacks", callbacks, &g.Callbacks); err != nil {
		return model.Goal{}, err
	}
	if err := unmarshalColumn("progress", progress, &g.Progress); err != nil {
		return model.Goal{}, err
	}
	if window.Valid {
		g.Window = &model.WindowSpec{}
		if err := unmarshalColumn("window", window.String, g.Window); err != nil {
			return model.Goal{}, err
		}
	}
	return g, nil
}

func goalArgs(g model.Goal) ([]any, error) {
	callbacks, err := marshalColumn("callbacks", g.Callbacks)
	if err != nil {
		return nil, err
	}
	progress, err := marshalColumn("progress", g.Progress)
	if err != nil {
		return nil, err
	}
	window, err := marshalOptional("window", g.Window)
	if err != nil {
		return nil, err
	}
	return []any{
		g.ID, nullString(g.ParentID), g.Title, string(g.Kind), string(g.Status),
		toNanos(g.StartDate), nullNanos(g.Deadline), nullNanos(g.TentativeDate),
		int64(g.CriteriaTime), boolInt(g.TightlyBound), nullString(g.RecurrenceID),
		g.OccurrenceIndex, g.TemplateHash, callbacks, progress, window,
		string(g.Outcome), boolInt(g.PromotionDue), g.Seq, toNanos(g.CreatedAt), toNanos(g.UpdatedAt),
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
