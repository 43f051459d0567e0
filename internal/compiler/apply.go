package compiler

import (
	"context"
	"fmt"

	"github.com/roach88/goalclock/internal/engine"
)

// Applied maps plan labels to the ids the engine assigned.
type Applied struct {
	Goals       map[string]string `json:"goals"`
	Recurrences map[string]string `json:"recurrences"`
}

// Ref resolves a plan label to its id. Unknown labels are returned as is,
// so a parent naming an existing goal id passes through.
func (a Applied) Ref(label string) string {
	if id, ok := a.Goals[label]; ok {
		return id
	}
	return label
}

// Apply creates the plan's goals in order, parents first, then its
// recurrences. Each creation is its own transaction: on error, goals
// created before the failing one remain and are reported in Applied.
func Apply(ctx context.Context, e *engine.Engine, plan *Plan) (Applied, error) {
	out := Applied{
		Goals:       make(map[string]string, len(plan.Goals)),
		Recurrences: make(map[string]string, len(plan.Recurrences)),
	}
	for _, g := range plan.Goals {
		d := g.Draft
		if g.Parent != "" {
			d.ParentID = out.Ref(g.Parent)
		}
		id, err := e.CreateGoal(ctx, d)
		if err != nil {
			return out, fmt.Errorf("goal %q: %w", g.Label, err)
		}
		out.Goals[g.Label] = id
	}
	for _, r := range plan.Recurrences {
		d := r.Draft
		if r.Parent != "" {
			d.ParentID = out.Ref(r.Parent)
		}
		id, err := e.CreateRecurrence(ctx, d)
		if err != nil {
			return out, fmt.Errorf("recurrence %q: %w", r.Label, err)
		}
		out.Recurrences[r.Label] = id
	}
	return out, nil
}
