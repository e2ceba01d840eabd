// Package accesslist implements the static allow/deny override table that is
// consulted before any counting or storage work.
//
// Checking the list first keeps blocklisted traffic rejectable even when the
// persistence layer is degraded, and spares trusted infrastructure from
// consuming window budget.
//
// # What this package must NOT do
//
//   - Touch the key store or persistent store.
//   - Emit ledger events (the facade records the short-circuit).
package accesslist
