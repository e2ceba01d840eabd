// Package backoff computes exponentially growing block durations for repeat
// violations, capped at a policy maximum.
package backoff

import (
	"math"
	"time"
)

// BlockDuration returns min(base * multiplier^violations, max).
//
// violations is the violation count before the current one, so a first
// offense uses exponent zero and serves exactly the base duration. The
// multiplication is checked for overflow; any overflow clamps to max.
func BlockDuration(base time.Duration, multiplier float64, max time.Duration, violations int) time.Duration {
	if base <= 0 {
		return 0
	}
	if violations < 0 {
		violations = 0
	}
	if multiplier < 1 {
		multiplier = 1
	}

	factor := math.Pow(multiplier, float64(violations))
	scaled := float64(base) * factor
	if math.IsInf(scaled, 0) || scaled >= float64(max) {
		return max
	}
	return time.Duration(scaled)
}
