package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/goalclock/internal/compiler"
)

// Scenario is a scripted session against a fresh engine: an optional plan,
// a sequence of clock advances and commands, and assertions on the final
// state.
//
// Offsets ("36h", "2d", "1w") are measured from Start throughout.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Start is the wall-clock time the session opens at (RFC3339 or date).
	Start string `yaml:"start"`

	// Plan is an inline CUE plan applied before the first step. Its goal
	// and recurrence labels name goals in steps and assertions.
	Plan string `yaml:"plan,omitempty"`

	// PlanFile is a plan path relative to the scenario file.
	PlanFile string `yaml:"plan_file,omitempty"`

	// Actions are extra automatic actions registered for the run. Each one
	// records its call and succeeds.
	Actions []string `yaml:"actions,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario operation. Exactly one operation field is set.
type Step struct {
	Advance  string       `yaml:"advance,omitempty"`
	Resolve  *ResolveStep `yaml:"resolve,omitempty"`
	CheckOff string       `yaml:"checkoff,omitempty"`
	Ack      *AckStep     `yaml:"ack,omitempty"`
	Log      *LogStep     `yaml:"log,omitempty"`
	Feed     *FeedStep    `yaml:"feed,omitempty"`
	Check    *CheckStep   `yaml:"check,omitempty"`
	Delete   *DeleteStep  `yaml:"delete,omitempty"`
	Promote  *PromoteStep `yaml:"promote,omitempty"`
	Revert   *RevertStep  `yaml:"revert,omitempty"`

	// Error is the engine error code the step must fail with
	// (VALIDATION, NOT_FOUND, CONFLICT, STATE). Empty means it must succeed.
	Error string `yaml:"error,omitempty"`
}

// ResolveStep resolves a queued goal. As is success, failure, edit or
// delete; Deadline is the new deadline offset for edit.
type ResolveStep struct {
	Goal     string `yaml:"goal"`
	As       string `yaml:"as"`
	Deadline string `yaml:"deadline,omitempty"`
}

// AckStep acknowledges a pending manual callback by its per-goal index.
type AckStep struct {
	Goal  string `yaml:"goal"`
	Index int    `yaml:"index"`
}

// LogStep records a quantity on a window goal at an offset.
type LogStep struct {
	Goal string  `yaml:"goal"`
	At   string  `yaml:"at"`
	Qty  float64 `yaml:"qty"`
}

// FeedStep adds worked time to a time-based goal.
type FeedStep struct {
	Goal   string `yaml:"goal"`
	Amount string `yaml:"amount"`
}

// CheckStep checks or unchecks a checklist item.
type CheckStep struct {
	Goal string `yaml:"goal"`
	Item int    `yaml:"item"`
	Done bool   `yaml:"done"`
}

// DeleteStep deletes a goal, with its descendants when Cascade is set.
type DeleteStep struct {
	Goal    string `yaml:"goal"`
	Cascade bool   `yaml:"cascade"`
}

// PromoteStep promotes a draft to an active goal.
type PromoteStep struct {
	Goal     string `yaml:"goal"`
	Start    string `yaml:"start"`
	Deadline string `yaml:"deadline,omitempty"`
}

// RevertStep turns an active goal back into a draft.
type RevertStep struct {
	Goal      string `yaml:"goal"`
	Tentative string `yaml:"tentative,omitempty"`
}

// op returns the step's operation name and how many operations are set.
func (s Step) op() (string, int) {
	var name string
	n := 0
	set := func(ok bool, op string) {
		if ok {
			name = op
			n++
		}
	}
	set(s.Advance != "", "advance")
	set(s.Resolve != nil, "resolve")
	set(s.CheckOff != "", "checkoff")
	set(s.Ack != nil, "ack")
	set(s.Log != nil, "log")
	set(s.Feed != nil, "feed")
	set(s.Check != nil, "check")
	set(s.Delete != nil, "delete")
	set(s.Promote != nil, "promote")
	set(s.Revert != nil, "revert")
	return name, n
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected to catch typos. A relative PlanFile is resolved against the
// scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if s.PlanFile != "" {
		planPath := s.PlanFile
		if !filepath.IsAbs(planPath) {
			planPath = filepath.Join(filepath.Dir(path), planPath)
		}
		src, err := os.ReadFile(planPath)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: plan file: %w", err)
		}
		s.Plan = string(src)
		s.PlanFile = planPath
	}
	return s, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// validateScenario checks required fields and offset syntax before any
// engine work happens.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := compiler.ParseTime(s.Start); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if s.Plan != "" && s.PlanFile != "" {
		return fmt.Errorf("plan and plan_file are mutually exclusive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s Step) error {
	name, n := s.op()
	switch {
	case n == 0:
		return fmt.Errorf("no operation set")
	case n > 1:
		return fmt.Errorf("exactly one operation per step, got %d", n)
	}

	var goal string
	offsets := map[string]string{}
	switch name {
	case "advance":
		offsets["advance"] = s.Advance
	case "resolve":
		goal = s.Resolve.Goal
		switch s.Resolve.As {
		case "success", "failure", "delete":
		case "edit":
			if s.Resolve.Deadline == "" {
				return fmt.Errorf("resolve: edit needs a deadline")
			}
			offsets["resolve.deadline"] = s.Resolve.Deadline
		default:
			return fmt.Errorf("resolve: unknown resolution %q", s.Resolve.As)
		}
	case "checkoff":
		goal = s.CheckOff
	case "ack":
		goal = s.Ack.Goal
	case "log":
		goal = s.Log.Goal
		offsets["log.at"] = s.Log.At
	case "feed":
		goal = s.Feed.Goal
		offsets["feed.amount"] = s.Feed.Amount
	case "check":
		goal = s.Check.Goal
	case "delete":
		goal = s.Delete.Goal
	case "promote":
		goal = s.Promote.Goal
		offsets["promote.start"] = s.Promote.Start
		if s.Promote.Deadline != "" {
			offsets["promote.deadline"] = s.Promote.Deadline
		}
	case "revert":
		goal = s.Revert.Goal
		if s.Revert.Tentative != "" {
			offsets["revert.tentative"] = s.Revert.Tentative
		}
	}
	if name != "advance" && goal == "" {
		return fmt.Errorf("%s: goal is required", name)
	}
	for field, raw := range offsets {
		if _, err := compiler.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	switch s.Error {
	case "", "VALIDATION", "NOT_FOUND", "CONFLICT", "STATE":
	default:
		return fmt.Errorf("unknown error code %q", s.Error)
	}
	return nil
}
