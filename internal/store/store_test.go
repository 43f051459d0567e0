package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roach88/goalclock/internal/model"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{
		"goals", "recurrences", "spawn_keys", "resolution_queue",
		"callback_runs", "pending_acks", "window_log", "window_state",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestAtomic_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(tx *Tx) error {
		if err := tx.InsertGoal(ctx, testGoal("g1", "", 1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic() error = %v, want boom", err)
	}

	err = s.View(ctx, func(tx *Tx) error {
		_, err := tx.GetGoal(ctx, "g1")
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("goal survived rollback: err = %v", err)
	}
}

func TestMaxSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAtomic(t, s, func(tx *Tx) error {
		seq, err := tx.MaxSeq(ctx)
		if err != nil {
			return err
		}
		if seq != 0 {
			t.Errorf("empty store MaxSeq = %d, want 0", seq)
		}
		if err := tx.InsertGoal(ctx, testGoal("g1", "", 3)); err != nil {
			return err
		}
		_, err = tx.Enqueue(ctx, "g1", time.Now(), 7)
		return err
	})

	mustAtomic(t, s, func(tx *Tx) error {
		seq, err := tx.MaxSeq(ctx)
		if err != nil {
			return err
		}
		if seq != 7 {
			t.Errorf("MaxSeq = %d, want 7", seq)
		}
		return nil
	})
}

func TestForeignKeyCascade(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAtomic(t, s, func(tx *Tx) error {
		for _, g := range []model.Goal{testGoal("root", "", 1), testGoal("child", "root", 2), testGoal("grandchild", "child", 3)} {
			if err := tx.InsertGoal(ctx, g); err != nil {
				return err
			}
		}
		if _, err := tx.Enqueue(ctx, "grandchild", time.Now(), 4); err != nil {
			return err
		}
		return tx.DeleteGoals(ctx, []string{"root"})
	})

	mustAtomic(t, s, func(tx *Tx) error {
		goals, err := tx.QueryGoals(ctx, model.GoalFilter{})
		if err != nil {
			return err
		}
		if len(goals) != 0 {
			t.Errorf("expected cascade to remove all goals, %d left", len(goals))
		}
		n, err := tx.QueueLen(ctx)
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("queue entry survived cascade")
		}
		return nil
	})
}

func TestOrderedReadsBreakTiesByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Empty tables still have to parse every ORDER BY.
	mustAtomic(t, s, func(tx *Tx) error {
		if _, err := tx.QueryGoals(ctx, model.GoalFilter{}); err != nil {
			return err
		}
		if _, err := tx.ExpiredGoals(ctx, testEpoch); err != nil {
			return err
		}
		if _, err := tx.QueueRows(ctx); err != nil {
			return err
		}
		if _, err := tx.ListRecurrences(ctx); err != nil {
			return err
		}
		_, err := tx.OpenAcks(ctx)
		return err
	})

	// Same seq and deadline: id decides, byte-wise.
	mustAtomic(t, s, func(tx *Tx) error {
		for _, id := range []string{"b", "a", "B"} {
			if err := tx.InsertGoal(ctx, testGoal(id, "", 1)); err != nil {
				return err
			}
			if _, err := tx.Enqueue(ctx, id, testEpoch, 2); err != nil {
				return err
			}
		}
		return nil
	})

	mustAtomic(t, s, func(tx *Tx) error {
		goals, err := tx.QueryGoals(ctx, model.GoalFilter{})
		if err != nil {
			return err
		}
		var ids []string
		for _, g := range goals {
			ids = append(ids, g.ID)
		}
		if got := strings.Join(ids, ","); got != "B,a,b" {
			t.Errorf("QueryGoals order = %s, want B,a,b", got)
		}

		expired, err := tx.ExpiredGoals(ctx, testEpoch.Add(48*time.Hour))
		if err != nil {
			return err
		}
		if len(expired) != 3 || expired[0].ID != "B" {
			t.Errorf("ExpiredGoals returned %d goals, first %v", len(expired), expired)
		}

		rows, err := tx.QueueRows(ctx)
		if err != nil {
			return err
		}
		if len(rows) != 3 || rows[0].GoalID != "B" || rows[2].GoalID != "b" {
			t.Errorf("QueueRows order = %+v", rows)
		}
		return nil
	})
}
