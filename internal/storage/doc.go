// Package storage persists the monitor cursor: the id of the newest post
// already accounted for.
//
// Drivers:
//   - "file": a small JSON state file ({"last_post_id": N}), overwritten atomically
//   - "sqlite": a single-row table in a SQLite database (pure Go driver)
package storage
