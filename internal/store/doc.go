// Package store provides a SQLite-backed clone-cell registry.
//
// The store keeps one row per clone cell, keyed by (app id, role name,
// clone index), plus an append-only log of every state transition.
//
// # Conventions
//
//   - Keys are NFC-normalized before they reach SQL.
//   - Record writes and their transition entry share one transaction.
//   - Transition history is ordered by seq, never by wall time.
//   - DNA modifiers are stored as their MessagePack encoding.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
