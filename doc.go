// Package authlimit is an embeddable abuse-prevention rate limiter for
// sensitive authentication endpoints: sign-in, sign-up, credential reset,
// one-time-code issuance.
//
// # Overview
//
// The limiter counts discrete attempt events per (operation, identifier
// type, identifier) key over an exact sliding window, applies exponentially
// growing block durations to repeat offenders, and survives process restarts
// through a Redis or Postgres backing store. Decisions are made inline, in
// process, from a sharded cache; durable I/O happens asynchronously on
// violations and periodic checkpoints so the hot path stays fast.
//
//	limiter, err := authlimit.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithLedgerSink(sink).
//		Build()
//	if err != nil {
//		...
//	}
//	defer limiter.Close()
//
//	decision, err := limiter.Check(ctx, "sign-in", clientIP, authlimit.IdentifierIP)
//
// After business-level success (a correct password, a valid code), callers
// invoke Reset so the limiter stays ignorant of success semantics:
//
//	_ = limiter.Reset(ctx, "sign-in", clientIP, authlimit.IdentifierIP)
//
// # Availability policy
//
// The limiter fails open. A durable-store outage never locks out legitimate
// traffic: cold-key reads time out and the key proceeds from a clean slate;
// failed writes retry then drop, recoverable from cache at the next
// checkpoint. Only caller programming errors (empty identifier, unknown
// identifier type) return hard errors.
//
// # What this library deliberately does not do
//
//   - Verify credentials or issue sessions; it only counts attempts.
//   - Map decisions to HTTP statuses or headers (see examples/http-minimal).
//   - Detect bots. The access list and the violation ledger are the hook
//     points for such systems.
package authlimit
