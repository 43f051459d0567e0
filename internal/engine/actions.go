package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// Built-in action names.
const (
	ActionExtendDeadline = "extend_deadline"
	ActionCreateGoal     = "create_goal"
	ActionFeedTime       = "feed_time"
)

const statusApplied = "applied"

// ActionContext is passed to an action handler.
type ActionContext struct {
	Engine *Engine
	Tx     *store.Tx

	// Goal is the goal whose callback fired, as it was when the trigger
	// started.
	Goal   model.Goal
	Params map[string]string

	// Units scales rate-aware actions: fractional intervals for continuous
	// window firings, 1 otherwise.
	Units float64
	At    time.Time
}

// Action is a registered automatic callback.
//
// Validate checks parameters when a goal or template naming the action is
// written. Run returns a machine-readable result map; it should carry a
// "status" key. An engine Error from Run is recorded as a rejected result.
type Action struct {
	Name     string
	Validate func(params map[string]string) error
	Run      func(ctx context.Context, ac ActionContext) (map[string]string, error)
}

// Registry maps action names to handlers.
type Registry struct {
	actions map[string]Action
}

// NewRegistry returns a registry holding the built-in actions.
func NewRegistry() *Registry {
	r := &Registry{actions: make(map[string]Action)}
	for _, a := range []Action{extendDeadlineAction(), createGoalAction(), feedTimeAction()} {
		r.actions[a.Name] = a
	}
	return r
}

// Register adds an action. Names must be unique.
func (r *Registry) Register(a Action) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("action name is empty")
	}
	if a.Run == nil {
		return fmt.Errorf("action %s has no handler", a.Name)
	}
	if _, ok := r.actions[a.Name]; ok {
		return fmt.Errorf("action %s already registered", a.Name)
	}
	r.actions[a.Name] = a
	return nil
}

// Lookup returns the named action.
func (r *Registry) Lookup(name string) (Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Names lists registered actions in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Parameter helpers

func durationParam(params map[string]string, key string, required bool) (time.Duration, error) {
	raw, ok := params[key]
	if !ok || raw == "" {
		if required {
			return 0, fmt.Errorf("missing %s", key)
		}
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func positiveDuration(params map[string]string, key string) (time.Duration, error) {
	d, err := durationParam(params, key, true)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func targetParam(params map[string]string) (string, error) {
	switch t := params["target"]; t {
	case "", "self":
		return "self", nil
	case "parent":
		return t, nil
	default:
		return "", fmt.Errorf("target must be self or parent, got %q", t)
	}
}

func scale(d time.Duration, units float64) time.Duration {
	return time.Duration(float64(d) * units)
}

// resolveTarget loads the goal an action applies to.
func resolveTarget(ctx context.Context, ac ActionContext) (model.Goal, error) {
	target, _ := targetParam(ac.Params)
	id := ac.Goal.ID
	if target == "parent" {
		if ac.Goal.ParentID == "" {
			return model.Goal{}, stateError(ac.Goal.ID, "goal has no parent")
		}
		id = ac.Goal.ParentID
	}
	g, err := ac.Engine.Goals.Get(ctx, ac.Tx, id)
	if err != nil {
		return model.Goal{}, err
	}
	if g.Status.IsTerminal() {
		return model.Goal{}, stateError(id, "target is %s", g.Status)
	}
	return g, nil
}

// ---------------------------------------------------------------------------
// Built-ins

// extendDeadlineAction pushes a goal's deadline out by "by", scaled by the
// trigger units. The target leaves the queue when it is no longer expired.
func extendDeadlineAction() Action {
	return Action{
		Name: ActionExtendDeadline,
		Validate: func(params map[string]string) error {
			if _, err := positiveDuration(params, "by"); err != nil {
				return err
			}
			_, err := targetParam(params)
			return err
		},
		Run: func(ctx context.Context, ac ActionContext) (map[string]string, error) {
			by, _ := positiveDuration(ac.Params, "by")
			by = scale(by, ac.Units)

			g, err := resolveTarget(ctx, ac)
			if err != nil {
				return nil, err
			}
			if g.Deadline == nil {
				return nil, stateError(g.ID, "target has no deadline")
			}
			dl := g.Deadline.Add(by)
			g.Deadline = &dl

			e := ac.Engine
			if err := e.checkGoal(ctx, ac.Tx, &g, true); err != nil {
				return nil, err
			}
			if err := e.Goals.save(ctx, ac.Tx, g); err != nil {
				return nil, err
			}
			if !g.ExpiredAt(e.wall.Now()) {
				if _, err := ac.Tx.Dequeue(ctx, g.ID); err != nil {
					return nil, err
				}
			}
			return map[string]string{
				"status":   statusApplied,
				"target":   g.ID,
				"by":       by.String(),
				"deadline": dl.Format(time.RFC3339),
			}, nil
		},
	}
}

// createGoalAction creates a goal with dates relative to the trigger time.
// Params: title, kind (default task), start_offset, deadline_offset,
// criteria_time, parent (none, self or parent).
func createGoalAction() Action {
	return Action{
		Name: ActionCreateGoal,
		Validate: func(params map[string]string) error {
			if strings.TrimSpace(params["title"]) == "" {
				return fmt.Errorf("missing title")
			}
			switch model.Kind(params["kind"]) {
			case "", model.KindTask, model.KindTime, model.KindEvent:
			default:
				return fmt.Errorf("kind %q cannot be created by an action", params["kind"])
			}
			for _, key := range []string{"start_offset", "deadline_offset", "criteria_time"} {
				if _, err := durationParam(params, key, false); err != nil {
					return err
				}
			}
			switch params["parent"] {
			case "", "none", "self", "parent":
			default:
				return fmt.Errorf("parent must be none, self or parent, got %q", params["parent"])
			}
			return nil
		},
		Run: func(ctx context.Context, ac ActionContext) (map[string]string, error) {
			kind := model.Kind(ac.Params["kind"])
			if kind == "" {
				kind = model.KindTask
			}
			startOffset, _ := durationParam(ac.Params, "start_offset", false)
			criteria, _ := durationParam(ac.Params, "criteria_time", false)

			d := model.GoalDraft{
				Title:        ac.Params["title"],
				Kind:         kind,
				Status:       model.StatusActive,
				StartDate:    ac.At.Add(startOffset),
				CriteriaTime: criteria,
			}
			if raw := ac.Params["deadline_offset"]; raw != "" {
				off, _ := durationParam(ac.Params, "deadline_offset", false)
				dl := d.StartDate.Add(off)
				d.Deadline = &dl
			}
			switch ac.Params["parent"] {
			case "self":
				d.ParentID = ac.Goal.ID
			case "parent":
				d.ParentID = ac.Goal.ParentID
			}

			id, err := ac.Engine.Goals.Create(ctx, ac.Tx, d)
			if err != nil {
				return nil, err
			}
			return map[string]string{"status": statusApplied, "goal_id": id}, nil
		},
	}
}

// feedTimeAction adds worked time to a time-based goal, scaled by the
// trigger units.
func feedTimeAction() Action {
	return Action{
		Name: ActionFeedTime,
		Validate: func(params map[string]string) error {
			if _, err := positiveDuration(params, "amount"); err != nil {
				return err
			}
			_, err := targetParam(params)
			return err
		},
		Run: func(ctx context.Context, ac ActionContext) (map[string]string, error) {
			amount, _ := positiveDuration(ac.Params, "amount")
			amount = scale(amount, ac.Units)

			g, err := resolveTarget(ctx, ac)
			if err != nil {
				return nil, err
			}
			g, err = ac.Engine.Goals.FeedTime(ctx, ac.Tx, g.ID, amount)
			if err != nil {
				return nil, err
			}
			return map[string]string{
				"status":      statusApplied,
				"target":      g.ID,
				"amount":      amount.String(),
				"accumulated": g.Progress.Accumulated.String(),
			}, nil
		},
	}
}
