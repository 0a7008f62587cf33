// SPDX-License-Identifier: Apache-2.0

// Package resilience provides retry and timeout boundaries around
// remote model calls.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/consilium-health/consilium/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (must be >= 1).
	MaxAttempts int

	// InitialDelay is the initial backoff delay.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// Jitter adds randomness to backoff; 0.1 means ±10%.
	Jitter float64

	// IsRecoverable determines if an error should be retried.
	// If nil, typed errors use their Recoverable flag and plain errors retry.
	IsRecoverable func(error) bool
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Do executes fn with retry logic, returning the last error if all attempts fail.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = isRecoverableDefault
	}

	var lastErr error
	for attempt := 0; attempt < rc.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.New(errors.CodeTimeout, "context canceled during retry", ctx.Err()).
					WithContext("attempt", attempt)
			case <-time.After(rc.backoff(attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !recoverable(err) {
			return err
		}
	}
	return lastErr
}

func (rc RetryConfig) backoff(attempt int) time.Duration {
	multiplier := rc.Multiplier
	if multiplier == 0 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	if rc.Jitter > 0 {
		spread := 2 * rc.Jitter * (rand.Float64() - 0.5)
		delay = time.Duration(float64(delay) * (1 + spread))
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// isRecoverableDefault respects the Recoverable flag on typed errors and
// treats everything else as retryable.
func isRecoverableDefault(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*errors.ConsiliumError); ok {
		return ce.Recoverable
	}
	return true
}
