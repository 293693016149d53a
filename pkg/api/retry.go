package api

import "time"

// RetryPolicy controls how a failed activity attempt is retried.
//
// MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 5 => initial call + up to 4 retries
//
// The delay before attempt n+1 is InitialBackoff * BackoffMultiplier^(n-1),
// capped at MaxBackoff when MaxBackoff > 0.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryPolicy is applied to every activity that does not declare a
// custom policy: exponential backoff starting at 1 second, capped at 60
// seconds, maximum 5 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
	}
}

// Next decides what happens after attempt number 'attempt' (1-based) failed.
// It returns (delay, true) to schedule another attempt after delay, or
// (0, false) to give up.
//
// The decision is a pure function of the policy and the attempt number, so
// replay reaches the same conclusion as the original execution.
func (p RetryPolicy) Next(attempt int) (time.Duration, bool) {
	max := p.MaxAttempts
	if max <= 0 {
		max = 1
	}
	if attempt >= max {
		return 0, false
	}

	backoff := p.InitialBackoff
	if backoff <= 0 {
		return 0, true
	}

	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * multiplier)
		if p.MaxBackoff > 0 && backoff >= p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff, true
}

// GaveUp reports whether the policy is exhausted after the given attempt.
func (p RetryPolicy) GaveUp(attempt int) bool {
	_, retry := p.Next(attempt)
	return !retry
}
