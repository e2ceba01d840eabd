// Package policy holds the static per-operation limiting configuration and
// its lookup registry.
//
// # Semantics
//
// A [Policy] describes one protected operation: attempt budget, counting
// window, and the exponential backoff parameters for repeat violations.
// The [Registry] is immutable after construction; an operation without a
// registered policy is deliberately unlimited, so integrators must register
// every endpoint they want protected.
//
// # What this package must NOT do
//
//   - Count attempts or compute block durations (internal/window, internal/backoff).
//   - Import any sibling internal package.
package policy
