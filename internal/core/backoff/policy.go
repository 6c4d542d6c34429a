// Package backoff contains the pure retry scheduling logic. This is part
// of the Functional Core - no I/O, only pure functions. Randomness is
// injected so tests stay deterministic.
package backoff

import "time"

// Defaults observed to keep the remote service responsive under load.
const (
	DefaultBaseDelay  = 2 * time.Second
	DefaultMaxDelay   = 10 * time.Second
	DefaultMultiplier = 1.5
	DefaultJitterFrac = 0.2

	// Session-expiry retries carry a new token already, so they wait a
	// short jittered interval instead of the standard schedule.
	FastRetryMin = 300 * time.Millisecond
	FastRetryMax = 900 * time.Millisecond
)

// Policy decides whether a failed attempt is retried and after how long.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	JitterFrac  float64
}

// Default returns the policy with the standard delays and the given
// attempt ceiling.
func Default(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		JitterFrac:  DefaultJitterFrac,
	}
}

// Decision is the policy's answer for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Next decides continue-or-stop after the given attempt number (1-based).
// rand must be in [0, 1) and feeds the jitter. The computed delay grows
// exponentially from the base, capped at MaxDelay; jitter is additive and
// bounded so the expected delay is non-decreasing across attempts.
func (p Policy) Next(attempt int, rand float64) Decision {
	if attempt >= p.MaxAttempts {
		return Decision{Retry: false}
	}
	base := p.BaseDelay
	for i := 1; i < attempt; i++ {
		base = time.Duration(float64(base) * p.Multiplier)
		if base >= p.MaxDelay {
			base = p.MaxDelay
			break
		}
	}
	if base > p.MaxDelay {
		base = p.MaxDelay
	}
	jitter := time.Duration(rand * p.JitterFrac * float64(base))
	delay := base + jitter
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return Decision{Retry: true, Delay: delay}
}

// NextWithHint is Next but honors a server-communicated throttling hint
// (an explicit retry-after duration). The hint overrides the computed
// delay yet is capped at the same maximum.
func (p Policy) NextWithHint(attempt int, rand float64, hint time.Duration) Decision {
	d := p.Next(attempt, rand)
	if !d.Retry || hint <= 0 {
		return d
	}
	if hint > p.MaxDelay {
		hint = p.MaxDelay
	}
	d.Delay = hint
	return d
}

// FastRetry returns the short jittered delay used after a session refresh.
// rand must be in [0, 1).
func FastRetry(rand float64) time.Duration {
	return FastRetryMin + time.Duration(rand*float64(FastRetryMax-FastRetryMin))
}
