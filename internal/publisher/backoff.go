package publisher

import (
	"time"

	"postpilot/internal/config"
)

// Backoff maps a failed-attempt count to the delay before the next attempt.
// Eligibility is derived from lastAttemptAt + Backoff(attemptCount); no timer
// state survives a restart because none is needed.
type Backoff func(attempts int) time.Duration

// NewBackoff builds the delay function from parsed settings.
//
// Exponential doubles the base per prior failure (base, 2*base, 4*base, ...)
// and saturates at max. Fixed always waits base.
func NewBackoff(s config.BackoffSettings) Backoff {
	if s.Base <= 0 {
		return func(int) time.Duration { return 0 }
	}
	if s.Mode == "fixed" {
		return func(int) time.Duration { return s.Base }
	}
	return func(attempts int) time.Duration {
		if attempts < 1 {
			return 0
		}
		d := s.Base
		for i := 1; i < attempts; i++ {
			d *= 2
			if d >= s.Max || d <= 0 {
				return s.Max
			}
		}
		if d > s.Max {
			return s.Max
		}
		return d
	}
}
