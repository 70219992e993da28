package driver

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a step is resubmitted after a timeout or a
// failed job.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// Delay is the wait after the given failed attempt (1 based):
// InitialDelay * Factor^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := p.InitialDelay
	for i := 0; i < attempt-1; i++ {
		delay = time.Duration(float64(delay) * p.Factor)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// BackOff adapts the policy for backoff.Retry.
func (p RetryPolicy) BackOff() backoff.BackOff {
	return &policyBackOff{policy: p}
}

type policyBackOff struct {
	policy   RetryPolicy
	failures int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.failures++
	if b.failures >= b.policy.attempts() {
		return backoff.Stop
	}
	return b.policy.Delay(b.failures)
}

func (b *policyBackOff) Reset() {
	b.failures = 0
}
