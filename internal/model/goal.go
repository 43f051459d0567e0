package model

import (
	"time"
)

// Kind distinguishes how a goal's criterion is measured.
type Kind string

const (
	// KindTask is satisfied by completing a checklist.
	KindTask Kind = "task"
	// KindTime is satisfied by accumulating CriteriaTime of work.
	KindTime Kind = "time"
	// KindWindow is a maintenance goal evaluated over a trailing window.
	KindWindow Kind = "window"
	// KindEvent is a time-based goal whose dates are set externally.
	KindEvent Kind = "event"
)

// IsTimeBased reports whether the kind carries a CriteriaTime.
func (k Kind) IsTimeBased() bool {
	return k == KindTime || k == KindEvent
}

// Status is a goal's lifecycle state.
type Status string

const (
	StatusDraft               Status = "draft"
	StatusActive              Status = "active"
	StatusPendingFinalization Status = "pending-finalization"
	StatusResolvedSuccess     Status = "resolved-success"
	StatusResolvedFailure     Status = "resolved-failure"
	StatusDead                Status = "dead"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusResolvedSuccess, StatusResolvedFailure, StatusDead:
		return true
	}
	return false
}

// Outcome records why a goal entered pending-finalization.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"

	// OutcomeKilled marks a descendant taken down by its ancestor's death.
	OutcomeKilled Outcome = "killed"
)

// EvalMode controls how window goal callbacks are timed.
type EvalMode string

const (
	// EvalContinuous fires callbacks proportionally to elapsed time in a state.
	EvalContinuous EvalMode = "continuous"
	// EvalInterval fires once per whole interval spent in one state.
	EvalInterval EvalMode = "interval"
)

// WindowSpec configures a maintenance goal.
type WindowSpec struct {
	Duration  time.Duration `json:"duration" validate:"gt=0"`
	Threshold float64       `json:"threshold" validate:"gt=0"`
	Mode      EvalMode      `json:"mode,omitempty" validate:"omitempty,oneof=continuous interval"`

	// Interval is the firing unit: one callback per interval in interval mode,
	// the rate denominator in continuous mode.
	Interval time.Duration `json:"interval" validate:"gt=0"`
}

// ChecklistItem is one criterion of a task-based goal.
type ChecklistItem struct {
	Text         string `json:"text" validate:"required"`
	Done         bool   `json:"done"`
	LinkedGoalID string `json:"linked_goal_id,omitempty"`
}

// Progress is kind-specific progress toward a goal's criterion.
type Progress struct {
	Accumulated time.Duration   `json:"accumulated,omitempty"`
	Checklist   []ChecklistItem `json:"checklist,omitempty" validate:"dive"`
}

// Goal is the central entity. References to other goals are by id only.
type Goal struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Kind          Kind          `json:"kind"`
	Status        Status        `json:"status"`
	StartDate     time.Time     `json:"start_date"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
	TentativeDate *time.Time    `json:"tentative_date,omitempty"`
	CriteriaTime  time.Duration `json:"criteria_time,omitempty"`
	TightlyBound  bool          `json:"tightly_bound"`

	ParentID string `json:"parent_id,omitempty"`
	// ChildIDs is derived from the children's ParentID in creation order.
	ChildIDs []string `json:"-"`

	Callbacks CallbackSets `json:"callbacks"`

	RecurrenceID    string `json:"recurrence_id,omitempty"`
	OccurrenceIndex int    `json:"occurrence_index,omitempty"`
	TemplateHash    string `json:"template_hash,omitempty"`

	Progress Progress    `json:"progress"`
	Window   *WindowSpec `json:"window,omitempty"`

	Outcome      Outcome `json:"outcome,omitempty"`
	PromotionDue bool    `json:"promotion_due,omitempty"`

	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDeadline reports whether the goal is outside the deadline-less set.
func (g *Goal) HasDeadline() bool {
	return g.Deadline != nil
}

// ExpiredAt reports whether the deadline has elapsed at now.
func (g *Goal) ExpiredAt(now time.Time) bool {
	return g.Deadline != nil && !g.Deadline.After(now)
}

// ComputeTightlyBound derives the tight-bound flag from the goal's dates.
func (g *Goal) ComputeTightlyBound() bool {
	if !g.Kind.IsTimeBased() || g.Deadline == nil || g.CriteriaTime <= 0 {
		return false
	}
	return g.Deadline.Sub(g.StartDate) == g.CriteriaTime
}

// CriteriaMet reports whether the recorded progress satisfies the criterion.
// Window goals are judged by the maintenance tracker, not here.
func (g *Goal) CriteriaMet() bool {
	switch g.Kind {
	case KindTime, KindEvent:
		return g.CriteriaTime > 0 && g.Progress.Accumulated >= g.CriteriaTime
	case KindTask:
		if len(g.Progress.Checklist) == 0 {
			return false
		}
		for _, item := range g.Progress.Checklist {
			if !item.Done {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (g Goal) Clone() Goal {
	out := g
	if g.Deadline != nil {
		d := *g.Deadline
		out.Deadline = &d
	}
	if g.TentativeDate != nil {
		d := *g.TentativeDate
		out.TentativeDate = &d
	}
	if g.Window != nil {
		w := *g.Window
		out.Window = &w
	}
	out.ChildIDs = append([]string(nil), g.ChildIDs...)
	out.Progress.Checklist = append([]ChecklistItem(nil), g.Progress.Checklist...)
	out.Callbacks = g.Callbacks.Clone()
	return out
}

// GoalDraft is the input to GoalStore.Create.
type GoalDraft struct {
	Title         string          `json:"title" validate:"required,nonempty"`
	Kind          Kind            `json:"kind" validate:"required,oneof=task time window event"`
	Status        Status          `json:"status,omitempty" validate:"omitempty,oneof=draft active"`
	StartDate     time.Time       `json:"start_date"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
	TentativeDate *time.Time      `json:"tentative_date,omitempty"`
	CriteriaTime  time.Duration   `json:"criteria_time,omitempty" validate:"gte=0"`
	ParentID      string          `json:"parent_id,omitempty"`
	Callbacks     CallbackSets    `json:"callbacks"`
	Checklist     []ChecklistItem `json:"checklist,omitempty" validate:"dive"`
	Window        *WindowSpec     `json:"window,omitempty"`

	// Set by the recurrence engine only.
	RecurrenceID    string `json:"-"`
	OccurrenceIndex int    `json:"-"`
	TemplateHash    string `json:"-"`
}

// GoalPatch is a partial update; nil fields are left unchanged.
type GoalPatch struct {
	Title         *string         `json:"title,omitempty"`
	StartDate     *time.Time      `json:"start_date,omitempty"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
	ClearDeadline bool            `json:"clear_deadline,omitempty"`
	CriteriaTime  *time.Duration  `json:"criteria_time,omitempty"`
	Callbacks     *CallbackSets   `json:"callbacks,omitempty"`
	Checklist     []ChecklistItem `json:"checklist,omitempty"`
	Window        *WindowSpec     `json:"window,omitempty"`
	TentativeDate *time.Time      `json:"tentative_date,omitempty"`
}

// Apply returns a copy of g with the patch applied.
func (p GoalPatch) Apply(g Goal) Goal {
	out := g.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.StartDate != nil {
		out.StartDate = *p.StartDate
	}
	if p.ClearDeadline {
		out.Deadline = nil
	} else if p.Deadline != nil {
		d := *p.Deadline
		out.Deadline = &d
	}
	if p.CriteriaTime != nil {
		out.CriteriaTime = *p.CriteriaTime
	}
	if p.Callbacks != nil {
		out.Callbacks = p.Callbacks.Clone()
	}
	if p.Checklist != nil {
		out.Progress.Checklist = append([]ChecklistItem(nil), p.Checklist...)
	}
	if p.Window != nil {
		w := *p.Window
		out.Window = &w
	}
	if p.TentativeDate != nil {
		d := *p.TentativeDate
		out.TentativeDate = &d
	}
	return out
}

// GoalFilter selects goals in GoalStore.Query. Zero fields do not filter.
type GoalFilter struct {
	Statuses     []Status
	Kinds        []Kind
	RecurrenceID string
	ParentID     string
	// RootsOnly restricts to goals without a parent.
	RootsOnly bool
	// DeadlineLess restricts to goals with a nil deadline.
	DeadlineLess bool
	// From and To select goals whose [start, deadline] intersects [From, To].
	// A deadline-less goal extends indefinitely.
	From *time.Time
	To   *time.Time
}
