package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	ping := func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	if err := WithRetry(context.Background(), fastRetryConfig(5), "postgres", ping); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("ping calls = %d, want 3", calls)
	}
}

func TestWithRetry_ExhaustedAttempts_ReturnsError(t *testing.T) {
	calls := 0
	ping := func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	}

	err := WithRetry(context.Background(), fastRetryConfig(3), "mongo", ping)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls < 2 || calls > 3 {
		t.Errorf("ping calls = %d, want between 2 and 3", calls)
	}
}

func TestWithRetry_AttemptHasDeadline(t *testing.T) {
	var hasDeadline bool
	ping := func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}

	if err := WithRetry(context.Background(), fastRetryConfig(1), "postgres", ping); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !hasDeadline {
		t.Error("expected each attempt to carry a deadline")
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	rc := DefaultRetryConfig(5, 5*time.Second)
	if rc.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", rc.MaxAttempts)
	}
	if rc.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want 1s", rc.InitialDelay)
	}
	if rc.AttemptTimeout != 5*time.Second {
		t.Errorf("AttemptTimeout = %v, want 5s", rc.AttemptTimeout)
	}
}
