// Package store provides SQLite-backed durable storage for goalclock.
//
// Tables:
//   - goals, recurrences: the authoritative records
//   - spawn_keys: one row per claimed (recurrence_id, occurrence_index)
//   - resolution_queue: expired goals awaiting resolution, keyed by goal id
//   - callback_runs: automatic callback results keyed by
//     (goal_id, event, set_name, idx)
//   - pending_acks: manual callbacks awaiting acknowledgment
//   - window_log, window_state: maintenance goal logs and replay cursors
//
// # Idempotency
//
// Every write that must happen at most once claims a primary key with
// ON CONFLICT DO NOTHING and reports whether the claim was new. A retried
// operation therefore becomes a no-op instead of a duplicate.
//
// # Atomicity
//
// All access goes through Tx. Store.Atomic runs one public engine operation
// in a single transaction so it either fully applies or not at all.
//
// # Deterministic Query Results
//
// List queries order by seq (the engine's logical clock) with id as a
// COLLATE BINARY tie-breaker, so results are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Deleting a goal removes its dependent rows
package store
