package usecase

import (
	"testing"
	"time"

	"voxcam/internal/domain"
)

func TestBackoffSequence(t *testing.T) {
	t.Parallel()

	retry := NewRetryController(DefaultMachineConfig().Retry)
	want := []time.Duration{1000, 1000, 2000, 4000, 8000, 8000}
	for i, ms := range want {
		attempt := i + 1
		if got := retry.Backoff(attempt); got != ms*time.Millisecond {
			t.Fatalf("attempt %d: got %s want %s", attempt, got, ms*time.Millisecond)
		}
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	retry := NewRetryController(DefaultMachineConfig().Retry)
	delays := []time.Duration{1000 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond}
	for i, want := range delays {
		decision := retry.OnFailure(domain.FailureEngineRuntime)
		if decision.GiveUp {
			t.Fatalf("failure %d gave up early", i+1)
		}
		if decision.Delay != want || decision.Attempt != i+1 {
			t.Fatalf("failure %d: got %+v", i+1, decision)
		}
	}

	decision := retry.OnFailure(domain.FailureWatchdog)
	if !decision.GiveUp {
		t.Fatalf("fourth failure must give up, got %+v", decision)
	}
	if retry.Attempts() != 3 {
		t.Fatalf("attempts changed after give up: %d", retry.Attempts())
	}
}

func TestRetryFirstTimeoutUsesShortRestart(t *testing.T) {
	t.Parallel()

	retry := NewRetryController(DefaultMachineConfig().Retry)
	if got := retry.OnFailure(domain.FailureEngineTimeout); got.Delay != 500*time.Millisecond {
		t.Fatalf("first timeout: got %s", got.Delay)
	}
	if got := retry.OnFailure(domain.FailureEngineTimeout); got.Delay != 1000*time.Millisecond {
		t.Fatalf("second timeout: got %s", got.Delay)
	}
}

func TestRetryInitFailuresAreNotCounted(t *testing.T) {
	t.Parallel()

	retry := NewRetryController(DefaultMachineConfig().Retry)
	for i := 0; i < 5; i++ {
		decision := retry.OnFailure(domain.FailureInit)
		if decision.GiveUp || decision.Delay != time.Second {
			t.Fatalf("init failure %d: got %+v", i+1, decision)
		}
	}
	if retry.Attempts() != 0 {
		t.Fatalf("init failures touched the counter: %d", retry.Attempts())
	}
}

func TestRetryResetClearsCounter(t *testing.T) {
	t.Parallel()

	retry := NewRetryController(RetryPolicy{})
	retry.OnFailure(domain.FailureEngineRuntime)
	retry.OnFailure(domain.FailureEngineRuntime)
	retry.Reset()

	if retry.Attempts() != 0 {
		t.Fatalf("expected reset counter")
	}
	if got := retry.OnFailure(domain.FailureEngineRuntime); got.Attempt != 1 {
		t.Fatalf("expected first attempt after reset, got %+v", got)
	}
}
