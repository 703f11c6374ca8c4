package engine

import "time"

// Backoff returns the delay before retry attempt n (0-based): exponential
// from base, capped at max. Pure function of its inputs so retry timing is
// testable without waiting.
func Backoff(retries int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < retries; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
