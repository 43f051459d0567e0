package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// Events that key callback runs and acknowledgments. Window firings use
// generated keys, see MaintenanceTracker.
const (
	EventResolution = "resolution"
	EventKilled     = "killed"
)

// CallbackExecutor runs automatic callbacks through the action registry
// and registers manual callbacks as pending acknowledgments.
type CallbackExecutor struct {
	e *Engine
}

// Trigger describes one callback execution request.
type Trigger struct {
	// Event is part of the idempotency key. Re-executing the same event
	// replays stored results instead of running actions again.
	Event string

	// Sets lists the callback sets to run, in order.
	Sets []model.SetName

	// Blocking acks hold the goal in pending-finalization until confirmed.
	Blocking bool

	// Units scales rate-aware actions. Zero means 1.
	Units float64

	// At is the logical time of the trigger. Zero means the wall clock.
	At time.Time

	SkipManual    bool
	SkipAutomatic bool
}

// Execution is the result of one Execute call.
type Execution struct {
	Results []model.ActionResult `json:"results,omitempty"`
	Pending []model.PendingAck   `json:"pending,omitempty"`
}

// Execute partitions the goal's callbacks in the requested sets.
//
// For each automatic callback:
//  1. Claim the (goal, event, set, index) run key
//  2. If already claimed, return the stored result marked as a replay
//  3. Otherwise run the action and store its result
//
// An action that fails with an engine Error is recorded as rejected and
// does not abort the surrounding operation. Any other error does.
//
// Manual callbacks become pending acknowledgments keyed the same way.
//
// Actions may modify goals, including the one passed in; callers re-read
// the goal after Execute.
func (c *CallbackExecutor) Execute(ctx context.Context, tx *store.Tx, g model.Goal, t Trigger) (Execution, error) {
	if t.Units == 0 {
		t.Units = 1
	}
	if t.At.IsZero() {
		t.At = c.e.wall.Now()
	}

	var exec Execution
	for _, set := range t.Sets {
		for i, cb := range g.Callbacks.Set(set) {
			if err := ctx.Err(); err != nil {
				return Execution{}, fmt.Errorf("context cancelled: %w", err)
			}
			switch cb.Kind {
			case model.CallbackAutomatic:
				if t.SkipAutomatic {
					continue
				}
				res, err := c.runAutomatic(ctx, tx, g, t, set, i, cb)
				if err != nil {
					return Execution{}, err
				}
				exec.Results = append(exec.Results, res)
			case model.CallbackManual:
				if t.SkipManual {
					continue
				}
				ack, _, err := tx.InsertAck(ctx, model.PendingAck{
					GoalID:        g.ID,
					Event:         t.Event,
					Set:           set,
					CallbackIndex: i,
					Text:          cb.Text,
					Blocking:      t.Blocking,
				}, c.e.clock.Next())
				if err != nil {
					return Execution{}, err
				}
				if !ack.Acknowledged {
					exec.Pending = append(exec.Pending, ack)
				}
			}
		}
	}
	return exec, nil
}

func (c *CallbackExecutor) runAutomatic(
	ctx context.Context,
	tx *store.Tx,
	g model.Goal,
	t Trigger,
	set model.SetName,
	index int,
	cb model.Callback,
) (model.ActionResult, error) {
	res := model.ActionResult{GoalID: g.ID, Event: t.Event, Set: set, Index: index, Action: cb.Action}
	run := store.CallbackRun{GoalID: g.ID, Event: t.Event, Set: set, Index: index, Action: cb.Action, Seq: c.e.clock.Next()}

	claimed, err := tx.ClaimCallbackRun(ctx, run)
	if err != nil {
		return res, err
	}
	if !claimed {
		stored, err := tx.GetCallbackRun(ctx, g.ID, t.Event, set, index)
		if err != nil {
			return res, err
		}
		res.Data = stored.Result
		res.Replay = true
		return res, nil
	}

	action, ok := c.e.actions.Lookup(cb.Action)
	if !ok {
		run.Result = rejected(fmt.Sprintf("unknown action %q", cb.Action))
	} else {
		data, err := action.Run(ctx, ActionContext{
			Engine: c.e,
			Tx:     tx,
			Goal:   g,
			Params: cb.Params,
			Units:  t.Units,
			At:     t.At,
		})
		var ee *Error
		switch {
		case errors.As(err, &ee):
			run.Result = rejected(ee.Message)
		case err != nil:
			return res, fmt.Errorf("action %s on %s: %w", cb.Action, g.ID, err)
		default:
			run.Result = data
		}
	}

	if err := tx.SetCallbackResult(ctx, run); err != nil {
		return res, err
	}
	slog.Debug("callback executed",
		"goal", g.ID,
		"event", t.Event,
		"set", set,
		"index", index,
		"action", cb.Action,
		"status", run.Result["status"],
	)
	res.Data = run.Result
	return res, nil
}

func rejected(reason string) map[string]string {
	return map[string]string{"status": "rejected", "reason": reason}
}

// AckResult reports an acknowledgment and whether it finalized the goal.
type AckResult struct {
	Ack       model.PendingAck `json:"ack"`
	Status    model.Status     `json:"status"`
	Finalized bool             `json:"finalized"`
	Killed    []string         `json:"killed,omitempty"`
}

// Acknowledge confirms a pending manual callback. When it was the goal's
// last open blocking acknowledgment, the goal is finalized.
func (c *CallbackExecutor) Acknowledge(ctx context.Context, tx *store.Tx, goalID string, index int) (AckResult, error) {
	if _, err := c.e.Goals.Get(ctx, tx, goalID); err != nil {
		return AckResult{}, err
	}
	ack, err := tx.GetAck(ctx, goalID, index)
	if errors.Is(err, store.ErrNotFound) {
		return AckResult{}, stateError(goalID, "no acknowledgment %d is pending", index)
	}
	if err != nil {
		return AckResult{}, err
	}
	if ack.Acknowledged {
		return AckResult{}, stateError(goalID, "acknowledgment %d was already confirmed", index)
	}
	if err := tx.MarkAcknowledged(ctx, goalID, index); err != nil {
		return AckResult{}, err
	}
	ack.Acknowledged = true

	fin, err := c.e.Queue.tryFinalize(ctx, tx, goalID)
	if err != nil {
		return AckResult{}, err
	}
	return AckResult{Ack: ack, Status: fin.Status, Finalized: fin.Finalized, Killed: fin.Killed}, nil
}
