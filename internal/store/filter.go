package store

import (
	"strings"

	"github.com/roach88/goalclock/internal/model"
)

// compileGoalFilter converts a GoalFilter to a parameterized WHERE clause.
// Values are always bound, never interpolated.
func compileGoalFilter(f model.GoalFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if len(f.Kinds) > 0 {
		clauses = append(clauses, "kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	if f.RecurrenceID != "" {
		clauses = append(clauses, "recurrence_id = ?")
		args = append(args, f.RecurrenceID)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "parent_id = ?")
		args = append(args, f.ParentID)
	}
	if f.RootsOnly {
		clauses = append(clauses, "parent_id IS NULL")
	}
	if f.DeadlineLess {
		clauses = append(clauses, "deadline IS NULL")
	}
	// [start, deadline] intersects [From, To]; a missing deadline is open-ended.
	if f.From != nil {
		clauses = append(clauses, "(deadline IS NULL OR deadline >= ?)")
		args = append(args, toNanos(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "start_date <= ?")
		args = append(args, toNanos(*f.To))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
