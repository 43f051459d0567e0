package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/goalclock/internal/model"
)

const recurrenceColumns = `id, parent_id, anchor, rule, end_condition, omissions, template,
	spawned_through, seq, created_at, updated_at`

// InsertRecurrence writes a new recurrence row.
func (t *Tx) InsertRecurrence(ctx context.Context, r model.Recurrence) error {
	cols, err := recurrenceJSON(r)
	if err != nil {
		return fmt.Errorf("insert recurrence: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO recurrences (`+recurrenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, nullString(r.ParentID), toNanos(r.Anchor), cols[0], cols[1], cols[2], cols[3],
		nullNanos(r.SpawnedThrough), r.Seq, toNanos(r.CreatedAt), toNanos(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert recurrence: %w", err)
	}
	return nil
}

// UpdateRecurrence overwrites rule, end condition, omissions, template and
// the spawn watermark. Returns ErrNotFound if the id has no row.
func (t *Tx) UpdateRecurrence(ctx context.Context, r model.Recurrence) error {
	cols, err := recurrenceJSON(r)
	if err != nil {
		return fmt.Errorf("update recurrence: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE recurrences SET
			rule = ?, end_condition = ?, omissions = ?, template = ?,
			spawned_through = ?, updated_at = ?
		WHERE id = ?
	`, cols[0], cols[1], cols[2], cols[3], nullNanos(r.SpawnedThrough), toNanos(r.UpdatedAt), r.ID)
	if err != nil {
		return fmt.Errorf("update recurrence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update recurrence: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update recurrence %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

// GetRecurrence reads one recurrence.
func (t *Tx) GetRecurrence(ctx context.Context, id string) (model.Recurrence, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+recurrenceColumns+` FROM recurrences WHERE id = ?`, id)
	r, err := scanRecurrence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Recurrence{}, fmt.Errorf("recurrence %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Recurrence{}, fmt.Errorf("get recurrence %s: %w", id, err)
	}
	return r, nil
}

// ListRecurrences returns every recurrence in creation order.
func (t *Tx) ListRecurrences(ctx context.Context) ([]model.Recurrence, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+recurrenceColumns+` FROM recurrences ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list recurrences: %w", err)
	}
	defer rows.Close()

	var out []model.Recurrence
	for rows.Next() {
		r, err := scanRecurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurrence: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClaimOccurrence records that an occurrence is being spawned as goalID.
// It uses ON CONFLICT DO NOTHING so that a second claim of the same
// (recurrence_id, occurrence_index) reports claimed=false and writes nothing.
func (t *Tx) ClaimOccurrence(ctx context.Context, recurrenceID string, index int, goalID string, seq int64) (claimed bool, err error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO spawn_keys (recurrence_id, occurrence_index, goal_id, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(recurrence_id, occurrence_index) DO NOTHING
	`, recurrenceID, index, goalID, seq)
	if err != nil {
		return false, fmt.Errorf("claim occurrence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim occurrence: rows affected: %w", err)
	}
	return n == 1, nil
}

// SpawnedOccurrences maps claimed occurrence indices to the goal ids they
// were spawned as. The goal may since have been deleted.
func (t *Tx) SpawnedOccurrences(ctx context.Context, recurrenceID string) (map[int]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT occurrence_index, goal_id FROM spawn_keys
		WHERE recurrence_id = ?
		ORDER BY occurrence_index ASC
	`, recurrenceID)
	if err != nil {
		return nil, fmt.Errorf("spawned occurrences: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var (
			idx    int
			goalID string
		)
		if err := rows.Scan(&idx, &goalID); err != nil {
			return nil, fmt.Errorf("scan spawn key: %w", err)
		}
		out[idx] = goalID
	}
	return out, rows.Err()
}

func recurrenceJSON(r model.Recurrence) ([4]string, error) {
	var cols [4]string
	var err error
	if cols[0], err = marshalColumn("rule", r.Rule); err != nil {
		return cols, err
	}
	if cols[1], err = marshalColumn("end_condition", r.End); err != nil {
		return cols, err
	}
	if cols[2], err = marshalColumn("omissions", r.Omissions); err != nil {
		return cols, err
	}
	if cols[3], err = marshalColumn("template", r.Template); err != nil {
		return cols, err
	}
	return cols, nil
}

func scanRecurrence(s scanner) (model.Recurrence, error) {
	var (
		r                              model.Recurrence
		parentID                       sql.NullString
		anchor, created, updated       int64
		rule, end, omissions, template string
		spawnedThrough                 sql.NullInt64
	)
	err := s.Scan(&r.ID, &parentID, &anchor, &rule, &end, &omissions, &template,
		&spawnedThrough, &r.Seq, &created, &updated)
	if err != nil {
		return model.Recurrence{}, err
	}
	r.ParentID = parentID.String
	r.Anchor = fromNanos(anchor)
	r.SpawnedThrough = timePtr(spawnedThrough)
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	if err := unmarshalColumn("rule", rule, &r.Rule); err != nil {
		return model.Recurrence{}, err
	}
	if err := unmarshalColumn("end_condition", end, &r.End); err != nil {
		return model.Recurrence{}, err
	}
	if err := unmarshalColumn("omissions", omissions, &r.Omissions); err != nil {
		return model.Recurrence{}, err
	}
	if err := unmarshalColumn("template", template, &r.Template); err != nil {
		return model.Recurrence{}, err
	}
	return r, nil
}
