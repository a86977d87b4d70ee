// Package store provides the SQLite-backed session journal.
//
// The journal is an append-only log of every frame that crossed the
// connection during a session, inbound and outbound:
//   - Sessions: one row per LoadTable, naming the resource
//   - Frames: (session, seq, direction, action, payload)
//
// It is a diagnostic record. The grid never reads it back at runtime;
// trace and replay tooling do.
//
// # Ordering
//
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - All frame queries use ORDER BY seq ASC
//   - (session, seq) is unique; rewriting a frame is a no-op
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
