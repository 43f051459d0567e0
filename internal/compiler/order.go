package compiler

import (
	"fmt"
	"strings"
)

// orderGoals sorts goals so every parent declared in the plan precedes its
// children. Declaration order is kept otherwise. A parent chain that loops
// back on itself is an error.
func orderGoals(goals []PlanGoal) ([]PlanGoal, error) {
	byLabel := make(map[string]int, len(goals))
	for i, g := range goals {
		byLabel[g.Label] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(goals))
	out := make([]PlanGoal, 0, len(goals))

	var visit func(i int, path []string) error
	visit = func(i int, path []string) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			cycle := append(path, goals[i].Label)
			return &CompileError{
				Code:    ErrCodeParentCycle,
				Field:   "goal." + goals[i].Label + ".parent",
				Message: fmt.Sprintf("parent cycle: %s", strings.Join(cycle, " -> ")),
			}
		}
		state[i] = visiting
		if p, ok := byLabel[goals[i].Parent]; ok {
			if err := visit(p, append(path, goals[i].Label)); err != nil {
				return err
			}
		}
		state[i] = done
		out = append(out, goals[i])
		return nil
	}

	for i := range goals {
		if err := visit(i, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}
