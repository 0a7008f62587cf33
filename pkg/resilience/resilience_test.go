package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/consilium-health/consilium/pkg/errors"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	rc := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}

	attempts := 0
	err := rc.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	rc := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}

	attempts := 0
	err := rc.Do(context.Background(), func() error {
		attempts++
		return fmt.Errorf("still broken")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnNonRecoverable(t *testing.T) {
	rc := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}

	attempts := 0
	err := rc.Do(context.Background(), func() error {
		attempts++
		return errors.New(errors.CodeUnauthorized, "bad credential", nil).WithRecoverable(false)
	})
	if errors.CodeOf(err) != errors.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("non-recoverable error should not be retried, got %d attempts", attempts)
	}
}

func TestRetryHonorsContextCancel(t *testing.T) {
	rc := RetryConfig{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := rc.Do(ctx, func() error { return fmt.Errorf("transient") })
	if errors.CodeOf(err) != errors.CodeTimeout {
		t.Errorf("expected TIMEOUT on canceled context, got %v", err)
	}
}

func TestWithTimeoutPassesThrough(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if errors.CodeOf(err) != errors.CodeTimeout {
		t.Errorf("expected TIMEOUT, got %v", err)
	}
}

func TestWithTimeoutZeroMeansUnbounded(t *testing.T) {
	called := false
	err := WithTimeout(context.Background(), 0, func(ctx context.Context) error {
		called = true
		if _, ok := ctx.Deadline(); ok {
			t.Error("zero duration should not install a deadline")
		}
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected direct call, err=%v called=%v", err, called)
	}
}
