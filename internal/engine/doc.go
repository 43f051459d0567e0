// Package engine implements the goalclock core: goals, recurrences, the
// resolution queue, window maintenance and callback execution.
//
// ARCHITECTURE:
//
// Single-Writer, Store-Driven:
// Every public Engine method runs in exactly one SQLite transaction. The
// components (GoalStore, RecurrenceEngine, ResolutionQueue,
// MaintenanceTracker, CallbackExecutor, DraftPromoter) take that
// transaction and re-read the store on each call. There are no background
// goroutines; the host calls Advance on open or on a tick.
//
// Advance Flow:
// 1. Spawn due recurrence instances
// 2. Enqueue goals whose deadline elapsed
// 3. Replay window goals up to now and fire owed callbacks
// 4. Flag drafts due for promotion
//
// Liveness:
// While the resolution queue is non-empty, commands that touch an active
// goal are refused with a STATE error. Resolve the queue first.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Records are stamped with a monotonic seq from Clock.Next(), resumed from
// the store on New. Creation order is seq order. Wall-clock time only
// drives deadlines and window evaluation.
//
// Idempotence Keys:
// Spawned occurrences claim (recurrence_id, occurrence_index); queue
// entries are keyed by goal id; automatic callbacks claim
// (goal_id, event, set, index). A retried operation is a no-op that
// replays stored results.
package engine
