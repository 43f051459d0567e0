package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/goalclock/internal/model"
)

//go:embed schema.cue
var schemaSource []byte

// Plan is a compiled plan file: goal and recurrence drafts keyed by label.
// Goals are ordered so that a parent always precedes its children.
type Plan struct {
	Goals       []PlanGoal       `json:"goals,omitempty"`
	Recurrences []PlanRecurrence `json:"recurrences,omitempty"`
}

// PlanGoal is one goal declaration.
type PlanGoal struct {
	Label string `json:"label"`

	// Parent is a label in the same plan or the id of an existing goal.
	Parent string          `json:"parent,omitempty"`
	Draft  model.GoalDraft `json:"draft"`
	Line   int             `json:"-"`
}

// PlanRecurrence is one recurrence declaration.
type PlanRecurrence struct {
	Label  string                `json:"label"`
	Parent string                `json:"parent,omitempty"`
	Draft  model.RecurrenceDraft `json:"draft"`
	Line   int                   `json:"-"`
}

// CompileFile reads and compiles a plan file.
func CompileFile(path string) (*Plan, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Compile(path, src)
}

// Compile unifies a plan source with the embedded schema and decodes it.
// Uses the CUE SDK's Go API directly.
func Compile(filename string, src []byte) (*Plan, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("plan schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileValue(v)
}

// CompileValue decodes an already unified and validated plan value.
func CompileValue(v cue.Value) (*Plan, error) {
	plan := &Plan{}

	goalsVal := v.LookupPath(cue.ParsePath("goal"))
	if goalsVal.Exists() {
		iter, err := goalsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			g, err := compileGoal(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			plan.Goals = append(plan.Goals, g)
		}
	}

	recsVal := v.LookupPath(cue.ParsePath("recurrence"))
	if recsVal.Exists() {
		iter, err := recsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			r, err := compileRecurrence(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			plan.Recurrences = append(plan.Recurrences, r)
		}
	}

	ordered, err := orderGoals(plan.Goals)
	if err != nil {
		return nil, err
	}
	plan.Goals = ordered
	return plan, nil
}

type rawCallback struct {
	Manual string            `json:"manual,omitempty"`
	Action string            `json:"action,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

type rawWindow struct {
	Duration  string  `json:"duration"`
	Threshold float64 `json:"threshold"`
	Interval  string  `json:"interval"`
	Mode      string  `json:"mode"`
}

type rawGoal struct {
	Title        string        `json:"title"`
	Kind         string        `json:"kind"`
	Draft        bool          `json:"draft"`
	Start        string        `json:"start,omitempty"`
	Deadline     string        `json:"deadline,omitempty"`
	Tentative    string        `json:"tentative,omitempty"`
	CriteriaTime string        `json:"criteria_time,omitempty"`
	Parent       string        `json:"parent,omitempty"`
	Checklist    []string      `json:"checklist,omitempty"`
	Window       *rawWindow    `json:"window,omitempty"`
	OnSuccess    []rawCallback `json:"on_success,omitempty"`
	OnFailure    []rawCallback `json:"on_failure,omitempty"`
	OnFinally    []rawCallback `json:"on_finally,omitempty"`
}

type rawTemplate struct {
	Title          string        `json:"title"`
	Kind           string        `json:"kind"`
	CriteriaTime   string        `json:"criteria_time,omitempty"`
	DeadlineOffset string        `json:"deadline_offset,omitempty"`
	Checklist      []string      `json:"checklist,omitempty"`
	Window         *rawWindow    `json:"window,omitempty"`
	OnSuccess      []rawCallback `json:"on_success,omitempty"`
	OnFailure      []rawCallback `json:"on_failure,omitempty"`
	OnFinally      []rawCallback `json:"on_finally,omitempty"`
}

type rawEvery struct {
	Unit string `json:"unit"`
	N    int    `json:"n"`
}

type rawOmit struct {
	Indices []int    `json:"indices,omitempty"`
	Dates   []string `json:"dates,omitempty"`
}

type rawRecurrence struct {
	Parent   string      `json:"parent,omitempty"`
	Anchor   string      `json:"anchor"`
	Every    *rawEvery   `json:"every,omitempty"`
	Weekdays []string    `json:"weekdays,omitempty"`
	Count    int         `json:"count,omitempty"`
	Until    string      `json:"until,omitempty"`
	Omit     *rawOmit    `json:"omit,omitempty"`
	Template rawTemplate `json:"template"`
}

// compileGoal parses one entry of the goal struct.
func compileGoal(label string, v cue.Value) (PlanGoal, error) {
	var raw rawGoal
	if err := v.Decode(&raw); err != nil {
		return PlanGoal{}, formatCUEError(err)
	}
	p := &parser{prefix: "goal." + label, v: v}

	d := model.GoalDraft{
		Title:        raw.Title,
		Kind:         model.Kind(raw.Kind),
		Status:       model.StatusActive,
		CriteriaTime: p.duration("criteria_time", raw.CriteriaTime),
		Callbacks:    callbacks(raw.OnSuccess, raw.OnFailure, raw.OnFinally),
		Checklist:    checklist(raw.Checklist),
		Window:       p.window(raw.Window),
	}
	if raw.Draft {
		d.Status = model.StatusDraft
	}
	if raw.Start != "" {
		d.StartDate = p.time("start", raw.Start)
	}
	if raw.Deadline != "" {
		dl := p.time("deadline", raw.Deadline)
		d.Deadline = &dl
	}
	if raw.Tentative != "" {
		td := p.time("tentative", raw.Tentative)
		d.TentativeDate = &td
	}
	if p.err != nil {
		return PlanGoal{}, p.err
	}
	return PlanGoal{Label: label, Parent: raw.Parent, Draft: d, Line: v.Pos().Line()}, nil
}

// compileRecurrence parses one entry of the recurrence struct.
func compileRecurrence(label string, v cue.Value) (PlanRecurrence, error) {
	var raw rawRecurrence
	if err := v.Decode(&raw); err != nil {
		return PlanRecurrence{}, formatCUEError(err)
	}
	prefix := "recurrence." + label
	p := &parser{prefix: prefix, v: v}

	d := model.RecurrenceDraft{Anchor: p.time("anchor", raw.Anchor)}

	switch {
	case raw.Every != nil && len(raw.Weekdays) > 0:
		return PlanRecurrence{}, fieldError(ErrCodeRule, prefix, v, "every and weekdays are mutually exclusive")
	case raw.Every != nil:
		d.Rule = model.RuleSpec{Type: model.RuleEvery, Unit: raw.Every.Unit, N: raw.Every.N}
	case len(raw.Weekdays) > 0:
		d.Rule = model.RuleSpec{Type: model.RuleWeekdays, Weekdays: raw.Weekdays}
	default:
		return PlanRecurrence{}, fieldError(ErrCodeRule, prefix, v, "one of every or weekdays is required")
	}

	switch {
	case raw.Count > 0 && raw.Until != "":
		return PlanRecurrence{}, fieldError(ErrCodeEnd, prefix, v, "count and until are mutually exclusive")
	case raw.Count > 0:
		d.End = model.EndCondition{Type: model.EndCount, Count: raw.Count}
	case raw.Until != "":
		until := p.time("until", raw.Until)
		d.End = model.EndCondition{Type: model.EndDate, Until: &until}
	default:
		d.End = model.EndCondition{Type: model.EndNone}
	}

	if raw.Omit != nil {
		d.Omissions = model.Omissions{Indices: raw.Omit.Indices, Dates: raw.Omit.Dates}
	}

	tp := &parser{prefix: prefix + ".template", v: v.LookupPath(cue.ParsePath("template"))}
	t := raw.Template
	d.Template = model.Template{
		Title:        t.Title,
		Kind:         model.Kind(t.Kind),
		CriteriaTime: tp.duration("criteria_time", t.CriteriaTime),
		Callbacks:    callbacks(t.OnSuccess, t.OnFailure, t.OnFinally),
		Window:       tp.window(t.Window),
		Checklist:    checklist(t.Checklist),
	}
	if t.DeadlineOffset != "" {
		off := tp.duration("deadline_offset", t.DeadlineOffset)
		d.Template.DeadlineOffset = &off
	}

	if p.err != nil {
		return PlanRecurrence{}, p.err
	}
	if tp.err != nil {
		return PlanRecurrence{}, tp.err
	}
	return PlanRecurrence{Label: label, Parent: raw.Parent, Draft: d, Line: v.Pos().Line()}, nil
}

// parser records the first conversion error with the offending field's
// source position.
type parser struct {
	prefix string
	v      cue.Value
	err    error
}

func (p *parser) fail(code, field, format string, args ...any) {
	if p.err != nil {
		return
	}
	p.err = fieldError(code, p.prefix+"."+field, p.v.LookupPath(cue.ParsePath(field)), format, args...)
}

func (p *parser) duration(field, raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := ParseDuration(raw)
	if err != nil {
		p.fail(ErrCodeDuration, field, "%v", err)
	}
	return d
}

func (p *parser) time(field, raw string) time.Time {
	t, err := ParseTime(raw)
	if err != nil {
		p.fail(ErrCodeTime, field, "%v", err)
	}
	return t
}

func (p *parser) window(raw *rawWindow) *model.WindowSpec {
	if raw == nil {
		return nil
	}
	return &model.WindowSpec{
		Duration:  p.duration("window.duration", raw.Duration),
		Threshold: raw.Threshold,
		Interval:  p.duration("window.interval", raw.Interval),
		Mode:      model.EvalMode(raw.Mode),
	}
}

func callbacks(success, failure, finally []rawCallback) model.CallbackSets {
	return model.CallbackSets{
		OnSuccess: convertCallbacks(success),
		OnFailure: convertCallbacks(failure),
		OnFinally: convertCallbacks(finally),
	}
}

func convertCallbacks(raw []rawCallback) []model.Callback {
	if len(raw) == 0 {
		return nil
	}
	out := make([]model.Callback, len(raw))
	for i, cb := range raw {
		if cb.Action != "" {
			out[i] = model.Automatic(cb.Action, cb.Params)
		} else {
			out[i] = model.Manual(cb.Manual)
		}
	}
	return out
}

func checklist(items []string) []model.ChecklistItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]model.ChecklistItem, len(items))
	for i, text := range items {
		out[i] = model.ChecklistItem{Text: text}
	}
	return out
}

// ParseDuration accepts Go durations plus whole days ("3d") and weeks ("2w").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	for suffix, unit := range map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour} {
		if n, ok := strings.CutSuffix(s, suffix); ok {
			k, err := strconv.Atoi(n)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			return time.Duration(k) * unit, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// ParseTime accepts RFC 3339 timestamps and dates (UTC midnight).
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
}
