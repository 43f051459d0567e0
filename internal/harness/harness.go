package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/goalclock/internal/compiler"
	"github.com/roach88/goalclock/internal/engine"
	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
	"github.com/roach88/goalclock/internal/testutil"
)

// Harness is one scenario session: a fresh in-memory store, a fixed wall
// clock and sequential ids, so identical scenarios produce identical traces.
type Harness struct {
	engine *engine.Engine
	clock  *testutil.FixedClock
	start  time.Time

	goals    map[string]string // label -> goal id
	recs     map[string]string // label -> recurrence id
	recNames map[string]string // recurrence id -> label
	names    map[string]string // goal id -> display name
}

// Run executes a scenario and returns its result.
//
// Each scenario runs in a fresh in-memory database. Step expectation
// mismatches and failed assertions are reported in the Result; the error
// is reserved for scenarios that cannot be set up at all.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start, err := compiler.ParseTime(s.Start)
	if err != nil {
		return nil, err
	}
	clock := testutil.NewFixedClock(start)

	reg := engine.NewRegistry()
	for _, name := range s.Actions {
		if err := reg.Register(recordingAction(name)); err != nil {
			return nil, fmt.Errorf("register action: %w", err)
		}
	}

	eng, err := engine.New(ctx, st,
		engine.WithWallClock(clock),
		engine.WithIDGenerator(testutil.NewSequentialIDs("g")),
		engine.WithRegistry(reg),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		engine:   eng,
		clock:    clock,
		start:    start,
		goals:    make(map[string]string),
		recs:     make(map[string]string),
		recNames: make(map[string]string),
		names:    make(map[string]string),
	}

	if s.Plan != "" {
		if err := h.applyPlan(ctx, s.Plan); err != nil {
			return nil, fmt.Errorf("failed to apply plan: %w", err)
		}
	}

	result := NewResult()
	for i, step := range s.Steps {
		h.execute(ctx, i, step, result)
	}
	for _, msg := range EvaluateAssertions(ctx, h, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// Engine exposes the session's engine to assertions and tests.
func (h *Harness) Engine() *engine.Engine {
	return h.engine
}

// Start returns the scenario start time.
func (h *Harness) Start() time.Time {
	return h.start
}

func (h *Harness) applyPlan(ctx context.Context, src string) error {
	plan, err := compiler.Compile("plan.cue", []byte(src))
	if err != nil {
		return err
	}
	if errs := compiler.Validate(plan); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	applied, err := compiler.Apply(ctx, h.engine, plan)
	if err != nil {
		return err
	}
	for label, id := range applied.Goals {
		h.goals[label] = id
		h.names[id] = label
	}
	for label, id := range applied.Recurrences {
		h.recs[label] = id
		h.recNames[id] = label
	}
	return nil
}

// Lookup resolves a scenario goal reference: a plan label, or
// "<recurrence>#<index>" for the latest instance of an occurrence.
func (h *Harness) Lookup(ctx context.Context, ref string) (string, error) {
	if id, ok := h.goals[ref]; ok {
		return id, nil
	}
	label, idx, ok := strings.Cut(ref, "#")
	if !ok {
		return "", fmt.Errorf("unknown goal %q", ref)
	}
	recID, ok := h.recs[label]
	if !ok {
		return "", fmt.Errorf("unknown recurrence %q", label)
	}
	k, err := strconv.Atoi(idx)
	if err != nil {
		return "", fmt.Errorf("bad occurrence index in %q", ref)
	}
	instances, err := h.engine.ListGoals(ctx, model.GoalFilter{RecurrenceID: recID})
	if err != nil {
		return "", err
	}
	var found string
	for _, g := range instances {
		if g.OccurrenceIndex == k {
			found = g.ID
		}
	}
	if found == "" {
		return "", fmt.Errorf("no instance %q", ref)
	}
	return found, nil
}

// Name renders a goal id the way scenarios refer to it. Names are cached
// so goals removed later still render.
func (h *Harness) Name(ctx context.Context, id string) string {
	if name, ok := h.names[id]; ok {
		return name
	}
	g, err := h.engine.Goal(ctx, id)
	if err != nil || g.RecurrenceID == "" {
		return id
	}
	label, ok := h.recNames[g.RecurrenceID]
	if !ok {
		return id
	}
	name := fmt.Sprintf("%s#%d", label, g.OccurrenceIndex)
	h.names[id] = name
	return name
}

func (h *Harness) at(offset string) time.Time {
	d, _ := compiler.ParseDuration(offset)
	return h.start.Add(d)
}

func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) {
	op, _ := step.op()
	ev := TraceEvent{Step: i, Op: op}

	effects, goal, err := h.dispatch(ctx, op, step)
	ev.At = formatOffset(h.clock.Now().Sub(h.start))
	ev.Goal = goal
	ev.Effects = effects

	var engErr *engine.Error
	switch {
	case err == nil && step.Error != "":
		result.AddError(fmt.Sprintf("steps[%d] %s: expected %s error, got success", i, op, step.Error))
	case err != nil && errors.As(err, &engErr):
		ev.Error = string(engErr.Code)
		if string(engErr.Code) != step.Error {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, op, err))
		}
	case err != nil:
		ev.Error = "HARNESS"
		result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, op, err))
	}
	result.addTrace(ev)
}

func (h *Harness) dispatch(ctx context.Context, op string, step Step) ([]string, string, error) {
	if op == "advance" {
		effects, err := h.advance(ctx, h.at(step.Advance))
		return effects, "", err
	}

	ref := stepGoal(op, step)
	id, err := h.Lookup(ctx, ref)
	if err != nil {
		return nil, ref, err
	}

	var effects []string
	switch op {
	case "resolve":
		r := engine.Resolution{Kind: engine.ResolutionKind(step.Resolve.As)}
		if r.Kind == engine.ResolveEdit {
			dl := h.at(step.Resolve.Deadline)
			r.Patch = &model.GoalPatch{Deadline: &dl}
		}
		var res engine.ResolveResult
		if res, err = h.engine.Resolve(ctx, id, r); err == nil {
			effects = h.resolveEffects(ctx, res)
		}
	case "checkoff":
		var res engine.ResolveResult
		if res, err = h.engine.CheckOff(ctx, id); err == nil {
			effects = h.resolveEffects(ctx, res)
		}
	case "ack":
		var res engine.AckResult
		if res, err = h.engine.Acknowledge(ctx, id, step.Ack.Index); err == nil {
			effects = append(effects, fmt.Sprintf("acked %s#%d", ref, res.Ack.Index))
			if res.Finalized {
				effects = append(effects, fmt.Sprintf("status %s %s", ref, res.Status))
			}
			for _, k := range res.Killed {
				effects = append(effects, "killed "+h.Name(ctx, k))
			}
		}
	case "log":
		if err = h.engine.Log(ctx, id, h.at(step.Log.At), step.Log.Qty); err == nil {
			effects = append(effects, fmt.Sprintf("logged %s %s", ref, formatFloat(step.Log.Qty)))
		}
	case "feed":
		d, _ := compiler.ParseDuration(step.Feed.Amount)
		var g model.Goal
		if g, err = h.engine.FeedTime(ctx, id, d); err == nil {
			effects = append(effects, fmt.Sprintf("accumulated %s %s", ref, g.Progress.Accumulated))
		}
	case "check":
		var g model.Goal
		if g, err = h.engine.CheckItem(ctx, id, step.Check.Item, step.Check.Done); err == nil {
			verb := "unchecked"
			if step.Check.Done {
				verb = "checked"
			}
			effects = append(effects, fmt.Sprintf("%s %s[%d]", verb, ref, step.Check.Item))
			if g.CriteriaMet() {
				effects = append(effects, "criteria_met "+ref)
			}
		}
	case "delete":
		var res engine.DeleteResult
		if res, err = h.engine.DeleteGoal(ctx, id, step.Delete.Cascade); err == nil {
			effects = h.deleteEffects(ctx, res)
		}
	case "promote":
		var dl *time.Time
		if step.Promote.Deadline != "" {
			t := h.at(step.Promote.Deadline)
			dl = &t
		}
		var g model.Goal
		if g, err = h.engine.Promote(ctx, id, h.at(step.Promote.Start), dl); err == nil {
			effects = append(effects, fmt.Sprintf("status %s %s", ref, g.Status))
		}
	case "revert":
		var tentative *time.Time
		if step.Revert.Tentative != "" {
			t := h.at(step.Revert.Tentative)
			tentative = &t
		}
		var g model.Goal
		if g, err = h.engine.RevertToDraft(ctx, id, tentative); err == nil {
			effects = append(effects, fmt.Sprintf("status %s %s", ref, g.Status))
		}
	}
	return effects, ref, err
}

func stepGoal(op string, s Step) string {
	switch op {
	case "resolve":
		return s.Resolve.Goal
	case "checkoff":
		return s.CheckOff
	case "ack":
		return s.Ack.Goal
	case "log":
		return s.Log.Goal
	case "feed":
		return s.Feed.Goal
	case "check":
		return s.Check.Goal
	case "delete":
		return s.Delete.Goal
	case "promote":
		return s.Promote.Goal
	case "revert":
		return s.Revert.Goal
	}
	return ""
}

func (h *Harness) advance(ctx context.Context, now time.Time) ([]string, error) {
	h.clock.Set(now)
	att, err := h.engine.Advance(ctx, now)
	if err != nil {
		return nil, err
	}

	var effects []string
	for _, id := range att.Spawned {
		effects = append(effects, "spawned "+h.Name(ctx, id))
	}
	for _, id := range att.Enqueued {
		effects = append(effects, "enqueued "+h.Name(ctx, id))
	}
	effects = append(effects, h.firingEffects(ctx, att.Firings)...)
	for _, g := range att.DraftsDue {
		effects = append(effects, "draft_due "+h.Name(ctx, g.ID))
	}
	if len(att.Queue) > 0 {
		names := make([]string, len(att.Queue))
		for i, q := range att.Queue {
			names[i] = h.Name(ctx, q.GoalID)
		}
		effects = append(effects, "queue "+strings.Join(names, ","))
	}
	return effects, nil
}

func (h *Harness) resolveEffects(ctx context.Context, res engine.ResolveResult) []string {
	name := h.Name(ctx, res.GoalID)
	effects := []string{fmt.Sprintf("status %s %s", name, res.Status)}
	if res.Requeued {
		effects = append(effects, "requeued "+name)
	}
	effects = append(effects, h.resultEffects(ctx, res.Results)...)
	effects = append(effects, h.ackEffects(ctx, res.Pending)...)
	for _, id := range res.Killed {
		effects = append(effects, "killed "+h.Name(ctx, id))
	}
	if res.Respawned != "" {
		effects = append(effects, "respawned "+h.Name(ctx, res.Respawned))
	}
	if res.Deleted != nil {
		effects = append(effects, h.deleteEffects(ctx, *res.Deleted)...)
	}
	return effects
}

func (h *Harness) deleteEffects(ctx context.Context, res engine.DeleteResult) []string {
	var effects []string
	for _, id := range res.Removed {
		effects = append(effects, "removed "+h.Name(ctx, id))
	}
	effects = append(effects, h.resultEffects(ctx, res.Results)...)
	for _, n := range res.Notices {
		effects = append(effects, fmt.Sprintf("notice %s %s: %s", h.Name(ctx, n.GoalID), n.Set, n.Text))
	}
	return effects
}

func (h *Harness) resultEffects(ctx context.Context, results []model.ActionResult) []string {
	effects := make([]string, 0, len(results))
	for _, r := range results {
		effects = append(effects, fmt.Sprintf("ran %s %s %s %s",
			h.Name(ctx, r.GoalID), r.Set, r.Action, r.Data["status"]))
	}
	return effects
}

func (h *Harness) ackEffects(ctx context.Context, acks []model.PendingAck) []string {
	effects := make([]string, 0, len(acks))
	for _, a := range acks {
		kind := "ack"
		if a.Blocking {
			kind = "blocking_ack"
		}
		effects = append(effects, fmt.Sprintf("%s %s#%d %s: %s",
			kind, h.Name(ctx, a.GoalID), a.Index, a.Set, a.Text))
	}
	return effects
}

func (h *Harness) firingEffects(ctx context.Context, firings []engine.WindowFiring) []string {
	effects := make([]string, 0, len(firings))
	for _, f := range firings {
		effects = append(effects, fmt.Sprintf("fired %s %s x%s",
			h.Name(ctx, f.GoalID), f.Set, formatFloat(f.Units)))
	}
	return effects
}

// recordingAction is an automatic action that succeeds and echoes its
// scaling, so traces show how many units a firing carried.
func recordingAction(name string) engine.Action {
	return engine.Action{
		Name: name,
		Run: func(_ context.Context, ac engine.ActionContext) (map[string]string, error) {
			return map[string]string{"status": "applied", "units": formatFloat(ac.Units)}, nil
		},
	}
}

// instanceIndices lists the occurrence indices of a recurrence's instances.
func (h *Harness) instanceIndices(ctx context.Context, label string) ([]int, error) {
	recID, ok := h.recs[label]
	if !ok {
		return nil, fmt.Errorf("unknown recurrence %q", label)
	}
	instances, err := h.engine.ListGoals(ctx, model.GoalFilter{RecurrenceID: recID})
	if err != nil {
		return nil, err
	}
	out := make([]int, len(instances))
	for i, g := range instances {
		out[i] = g.OccurrenceIndex
	}
	sort.Ints(out)
	return out, nil
}

func formatOffset(d time.Duration) string {
	if d != 0 && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	}
	return d.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
