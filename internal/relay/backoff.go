package relay

import "time"

const (
	backoffBase = time.Second
	backoffCap  = 10 * time.Second
)

// Backoff returns the reconnect delay for a zero-based attempt counter:
// min(1s * 2^attempt, 10s).
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^4s already exceeds the cap; avoid shifting into overflow.
	if attempt > 4 {
		return backoffCap
	}
	delay := backoffBase << uint(attempt)
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}
