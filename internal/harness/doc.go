// Package harness runs scripted goalclock sessions from YAML scenarios.
//
// A scenario opens a fresh in-memory store at a fixed start time, applies
// an optional CUE plan, then executes steps against the engine: clock
// advances and user commands. Every step appends a TraceEvent naming goals
// by their plan label, and assertions check the final state.
//
// # Scenario Format
//
//	name: early_success
//	description: "Checking off a parent kills its active subgoals"
//	start: 2026-03-02T09:00:00Z
//	plan: |
//	  goal: p: {title: "Parent", start: "2026-03-02", deadline: "2026-03-30"}
//	  goal: c: {title: "Child", parent: "p", start: "2026-03-02", deadline: "2026-03-10"}
//	steps:
//	  - checkoff: p
//	  - advance: 1d
//	assertions:
//	  - type: status
//	    goal: c
//	    status: dead
//
// Offsets such as "36h", "2d" or "1w" are measured from start. Spawned
// recurrence instances are referenced as "<recurrence>#<index>".
//
// # Assertion Types
//
//   - status: a goal's lifecycle status
//   - queue: the resolution queue order
//   - instances: occurrence indices a recurrence has spawned
//   - maintained: a window goal's evaluation at an offset
//   - runs: automatic callback runs, optionally for one set
//   - acks: open acknowledgments of a goal
//   - absent: the goal no longer exists
//   - deadline: a goal's deadline as an offset
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON trace with
// testdata/golden/<name>.golden (goldie; regenerate with -update).
package harness
