// Package store provides SQLite-backed storage for delivery plans and the
// generation run log.
//
// Planning data:
//   - Schedules: date-scoped containers of routes
//   - Routes: ordered within their schedule
//   - Stops: ordered within their route, location and directions stored as WKB
//
// Run log:
//   - Runs: one row per generation run, terminal status and error
//   - Run events: every progress notification, keyed by (run_id, seq)
//   - Artifacts: the run's outcome in request template order
//
// # Ordering
//
// Run log ordering uses the orchestrator's logical seq, never wall time.
// Queries order by seq (or position) with id COLLATE BINARY as tiebreaker.
// MaxSeq lets a new process continue the sequence.
//
// # Idempotency
//
// Run log writes use ON CONFLICT DO NOTHING so a replayed notification
// never duplicates rows.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
