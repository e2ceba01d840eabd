package window

import "time"

// overAllowanceFactor bounds how many timestamps a record may retain relative
// to its attempt budget. Entries beyond the bound are dropped oldest-first
// regardless of age so memory stays bounded under sustained attack traffic.
const overAllowanceFactor = 2

// Prune returns the timestamps still inside the sliding window ending at now.
// The input slice must be ordered oldest-first; the returned slice reuses its
// backing array.
func Prune(timestamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(timestamps) && !timestamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[idx:]...)
}

// Count reports how many of the given timestamps fall inside the sliding
// window ending at now, without mutating the slice.
func Count(timestamps []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// Append records a new attempt, enforcing the retention bound of
// maxAttempts * overAllowanceFactor entries.
func Append(timestamps []time.Time, at time.Time, maxAttempts int) []time.Time {
	timestamps = append(timestamps, at)
	bound := maxAttempts * overAllowanceFactor
	if bound > 0 && len(timestamps) > bound {
		timestamps = append(timestamps[:0], timestamps[len(timestamps)-bound:]...)
	}
	return timestamps
}

// OldestReset returns the instant at which the oldest in-window attempt ages
// out, i.e. when the caller regains one unit of budget. Falls back to
// now + window when no attempts are recorded.
func OldestReset(timestamps []time.Time, now time.Time, window time.Duration) time.Time {
	cutoff := now.Add(-window)
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			return ts.Add(window)
		}
	}
	return now.Add(window)
}
