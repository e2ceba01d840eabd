// Package window implements exact-timestamp sliding window counting.
//
// # Why a log, not buckets
//
// Storing the precise instant of every attempt and filtering by age avoids
// the fixed-window seam artifact where an attacker can burst twice the budget
// across a bucket boundary. Cost is O(k) per check with k bounded by twice
// the attempt budget, which is tiny for authentication endpoints.
//
// # What this package must NOT do
//
//   - Decide whether a count exceeds a policy (the facade does).
//   - Hold any state; every function is pure over the caller's slice.
package window
