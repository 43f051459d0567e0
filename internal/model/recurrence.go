package model

import (
	"fmt"
	"strings"
	"time"
)

// Rule produces a monotonic sequence of occurrence start dates.
// Next returns the first occurrence strictly after the given time.
type Rule interface {
	Next(after time.Time) time.Time
}

// RuleType tags the RuleSpec variant.
type RuleType string

const (
	// RuleEvery repeats every N units from the anchor.
	RuleEvery RuleType = "every"
	// RuleWeekdays repeats on a set of weekdays at the anchor's clock time.
	RuleWeekdays RuleType = "weekdays"
)

// RuleSpec is the serializable form of a Rule.
type RuleSpec struct {
	Type     RuleType `json:"type" validate:"required,oneof=every weekdays"`
	Unit     string   `json:"unit,omitempty" validate:"omitempty,oneof=hour day week month"`
	N        int      `json:"n,omitempty" validate:"gte=0"`
	Weekdays []string `json:"weekdays,omitempty"`
}

// Build binds the rule to an anchor.
func (s RuleSpec) Build(anchor time.Time) (Rule, error) {
	switch s.Type {
	case RuleEvery:
		n := s.N
		if n <= 0 {
			n = 1
		}
		switch s.Unit {
		case "hour", "day", "week", "month":
		default:
			return nil, fmt.Errorf("unknown rule unit %q", s.Unit)
		}
		return everyRule{anchor: anchor, unit: s.Unit, n: n}, nil
	case RuleWeekdays:
		days := make(map[time.Weekday]bool, len(s.Weekdays))
		for _, name := range s.Weekdays {
			wd, ok := parseWeekday(name)
			if !ok {
				return nil, fmt.Errorf("unknown weekday %q", name)
			}
			days[wd] = true
		}
		if len(days) == 0 {
			return nil, fmt.Errorf("weekdays rule needs at least one day")
		}
		return weekdaysRule{days: days}, nil
	}
	return nil, fmt.Errorf("unknown rule type %q", s.Type)
}

func parseWeekday(name string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sun", "sunday":
		return time.Sunday, true
	case "mon", "monday":
		return time.Monday, true
	case "tue", "tuesday":
		return time.Tuesday, true
	case "wed", "wednesday":
		return time.Wednesday, true
	case "thu", "thursday":
		return time.Thursday, true
	case "fri", "friday":
		return time.Friday, true
	case "sat", "saturday":
		return time.Saturday, true
	}
	return 0, false
}

// everyRule computes occurrences from the anchor so month arithmetic
// does not drift across short months.
type everyRule struct {
	anchor time.Time
	unit   string
	n      int
}

func (r everyRule) at(k int) time.Time {
	switch r.unit {
	case "hour":
		return r.anchor.Add(time.Duration(k*r.n) * time.Hour)
	case "day":
		return r.anchor.AddDate(0, 0, k*r.n)
	case "week":
		return r.anchor.AddDate(0, 0, 7*k*r.n)
	default:
		return r.anchor.AddDate(0, k*r.n, 0)
	}
}

func (r everyRule) approx() time.Duration {
	switch r.unit {
	case "hour":
		return time.Duration(r.n) * time.Hour
	case "day":
		return time.Duration(r.n) * 24 * time.Hour
	case "week":
		return time.Duration(r.n) * 7 * 24 * time.Hour
	default:
		return time.Duration(r.n) * 28 * 24 * time.Hour
	}
}

func (r everyRule) Next(after time.Time) time.Time {
	if after.Before(r.anchor) {
		return r.anchor
	}
	k := int(after.Sub(r.anchor)/r.approx()) - 1
	if k < 0 {
		k = 0
	}
	for !r.at(k).After(after) {
		k++
	}
	// Step back over any overshoot from the approximation.
	for k > 0 && r.at(k-1).After(after) {
		k--
	}
	return r.at(k)
}

type weekdaysRule struct {
	days map[time.Weekday]bool
}

func (r weekdaysRule) Next(after time.Time) time.Time {
	// Occurrences land at the clock time of the probe; seven days always
	// contain a match because the set is non-empty.
	for i := 1; i <= 7; i++ {
		t := after.AddDate(0, 0, i)
		if r.days[t.Weekday()] {
			return t
		}
	}
	return after.AddDate(0, 0, 7)
}

// EndType tags the EndCondition variant.
type EndType string

const (
	EndNone  EndType = "none"
	EndDate  EndType = "end_date"
	EndCount EndType = "count"
)

// EndCondition stops occurrence generation.
type EndCondition struct {
	Type  EndType    `json:"type" validate:"omitempty,oneof=none end_date count"`
	Until *time.Time `json:"until,omitempty" validate:"required_if=Type end_date"`
	Count int        `json:"count,omitempty" validate:"gte=0"`
}

// Omissions excludes occurrences by index or by UTC calendar date
// (YYYY-MM-DD). Omitted occurrences still consume their index.
type Omissions struct {
	Indices []int    `json:"indices,omitempty"`
	Dates   []string `json:"dates,omitempty"`
}

// Omits reports whether the occurrence is excluded.
func (o Omissions) Omits(occ Occurrence) bool {
	for _, i := range o.Indices {
		if i == occ.Index {
			return true
		}
	}
	date := occ.Start.UTC().Format(time.DateOnly)
	for _, d := range o.Dates {
		if d == date {
			return true
		}
	}
	return false
}

// Template describes each goal a recurrence spawns.
type Template struct {
	Title        string        `json:"title" validate:"required,nonempty"`
	Kind         Kind          `json:"kind" validate:"required,oneof=task time window event"`
	CriteriaTime time.Duration `json:"criteria_time,omitempty" validate:"gte=0"`

	// DeadlineOffset is added to the occurrence start; nil spawns deadline-less goals.
	DeadlineOffset *time.Duration  `json:"deadline_offset,omitempty"`
	Callbacks      CallbackSets    `json:"callbacks"`
	Window         *WindowSpec     `json:"window,omitempty"`
	Checklist      []ChecklistItem `json:"checklist,omitempty" validate:"dive"`
}

// Instantiate builds the draft for an occurrence.
func (t Template) Instantiate(occ Occurrence) GoalDraft {
	d := GoalDraft{
		Title:        t.Title,
		Kind:         t.Kind,
		Status:       StatusActive,
		StartDate:    occ.Start,
		CriteriaTime: t.CriteriaTime,
		Callbacks:    t.Callbacks.Clone(),
		Checklist:    append([]ChecklistItem(nil), t.Checklist...),
	}
	if t.DeadlineOffset != nil {
		dl := occ.Start.Add(*t.DeadlineOffset)
		d.Deadline = &dl
	}
	if t.Window != nil {
		w := *t.Window
		d.Window = &w
	}
	return d
}

// Occurrence is one slot of a recurrence.
type Occurrence struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
}

// Recurrence generates goal instances.
type Recurrence struct {
	ID        string       `json:"id"`
	ParentID  string       `json:"parent_id,omitempty"`
	Anchor    time.Time    `json:"anchor"`
	Rule      RuleSpec     `json:"rule"`
	End       EndCondition `json:"end"`
	Omissions Omissions    `json:"omissions"`
	Template  Template     `json:"template"`

	// SpawnedThrough is the latest occurrence start already spawned.
	SpawnedThrough *time.Time `json:"spawned_through,omitempty"`

	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// maxWalk bounds occurrence enumeration for rules without an end condition.
const maxWalk = 100000

// Walk enumerates occurrences in order, including omitted ones, until the
// end condition stops generation or fn returns false.
func (r *Recurrence) Walk(fn func(occ Occurrence, omitted bool) bool) error {
	rule, err := r.Rule.Build(r.Anchor)
	if err != nil {
		return err
	}
	// Probing from the day before yields the anchor itself when it matches.
	start := rule.Next(r.Anchor.AddDate(0, 0, -1))
	for i := 0; i < maxWalk; i++ {
		if r.End.Type == EndCount && i >= r.End.Count {
			return nil
		}
		if r.End.Type == EndDate && r.End.Until != nil && start.After(*r.End.Until) {
			return nil
		}
		occ := Occurrence{Index: i, Start: start}
		if !fn(occ, r.Omissions.Omits(occ)) {
			return nil
		}
		start = rule.Next(start)
	}
	return nil
}

// RecurrenceDraft is the input to RecurrenceEngine.Create.
type RecurrenceDraft struct {
	ParentID  string       `json:"parent_id,omitempty"`
	Anchor    time.Time    `json:"anchor"`
	Rule      RuleSpec     `json:"rule"`
	End       EndCondition `json:"end"`
	Omissions Omissions    `json:"omissions"`
	Template  Template     `json:"template"`
}

// RecurrencePatch edits a recurrence. Only unspawned occurrences see it.
type RecurrencePatch struct {
	Rule      *RuleSpec     `json:"rule,omitempty"`
	End       *EndCondition `json:"end,omitempty"`
	Omissions *Omissions    `json:"omissions,omitempty"`
	Template  *Template     `json:"template,omitempty"`
}
