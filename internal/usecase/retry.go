package usecase

import (
	"time"

	"voxcam/internal/domain"
)

// RetryPolicy holds the restart delays and the attempt cap.
type RetryPolicy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	TimeoutRestart time.Duration
}

// RetryDecision is the explicit outcome of a failure: retry after Delay, or give up.
type RetryDecision struct {
	Kind    domain.FailureKind
	GiveUp  bool
	Delay   time.Duration
	Attempt int
}

// RetryController owns the consecutive runtime failure counter.
type RetryController struct {
	policy   RetryPolicy
	attempts int
}

// NewRetryController fills zero policy fields with the production defaults.
func NewRetryController(policy RetryPolicy) *RetryController {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 8 * time.Second
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	if policy.TimeoutRestart <= 0 {
		policy.TimeoutRestart = 500 * time.Millisecond
	}
	return &RetryController{policy: policy}
}

// OnFailure decides what happens after a failure. Init failures never touch the counter.
func (r *RetryController) OnFailure(kind domain.FailureKind) RetryDecision {
	if !kind.Counted() {
		return RetryDecision{Kind: kind, Delay: r.policy.InitialDelay, Attempt: r.attempts}
	}
	if r.attempts >= r.policy.MaxAttempts {
		return RetryDecision{Kind: kind, GiveUp: true, Attempt: r.attempts}
	}

	r.attempts++
	delay := r.Backoff(r.attempts)
	if kind == domain.FailureEngineTimeout && r.attempts == 1 {
		delay = r.policy.TimeoutRestart
	}
	return RetryDecision{Kind: kind, Delay: delay, Attempt: r.attempts}
}

// Backoff returns the delay for the n-th consecutive runtime failure:
// the initial delay for the first two, then doubling up to MaxDelay.
func (r *RetryController) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return r.policy.InitialDelay
	}
	delay := r.policy.InitialDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= r.policy.MaxDelay {
			return r.policy.MaxDelay
		}
	}
	if delay > r.policy.MaxDelay {
		return r.policy.MaxDelay
	}
	return delay
}

// Reset clears the counter after a successful init or a handled command.
func (r *RetryController) Reset() {
	r.attempts = 0
}

// Attempts returns the current consecutive failure count.
func (r *RetryController) Attempts() int {
	return r.attempts
}
