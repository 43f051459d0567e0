package model

import "time"

// LogEntry is one quantity logged against a window goal.
type LogEntry struct {
	GoalID    string    `json:"goal_id"`
	Timestamp time.Time `json:"timestamp"`
	Quantity  float64   `json:"quantity"`
	Seq       int64     `json:"seq"`
}

// WindowState is the replay cursor of a window goal: the time evaluation
// has reached, and the current run of one maintained/unmaintained state.
type WindowState struct {
	GoalID           string    `json:"goal_id"`
	EvaluatedThrough time.Time `json:"evaluated_through"`
	Maintained       bool      `json:"maintained"`
	RunStart         time.Time `json:"run_start"`

	// Fired counts whole intervals already fired in the current run.
	Fired int `json:"fired"`
}
