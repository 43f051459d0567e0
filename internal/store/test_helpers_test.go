package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/goalclock/internal/model"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustAtomic runs fn in a transaction and fails the test on error.
func mustAtomic(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	if err := s.Atomic(context.Background(), fn); err != nil {
		t.Fatalf("Atomic() failed: %v", err)
	}
}

// testGoal creates an active task goal with minimal required fields.
func testGoal(id, parentID string, seq int64) model.Goal {
	deadline := testEpoch.Add(24 * time.Hour)
	return model.Goal{
		ID:        id,
		ParentID:  parentID,
		Title:     "goal " + id,
		Kind:      model.KindTask,
		Status:    model.StatusActive,
		StartDate: testEpoch,
		Deadline:  &deadline,
		Seq:       seq,
		CreatedAt: testEpoch,
		UpdatedAt: testEpoch,
	}
}
