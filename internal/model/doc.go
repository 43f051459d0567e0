// Package model defines the goal, recurrence and callback records shared by
// the store and the engine.
//
// Records reference each other by id only. The parent/child tree, the
// recurrence that spawned an instance and the checklist links to subgoals
// are all id references resolved through the store, never pointers.
//
// Recurrence rules are pure functions from a time to the next occurrence
// start; see Rule and RuleSpec.
package model
