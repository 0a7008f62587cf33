// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"time"

	"github.com/consilium-health/consilium/pkg/errors"
)

// WithTimeout runs fn under a deadline. A zero duration means no limit.
// The context handed to fn is canceled when the deadline passes, and the
// caller gets a CodeTimeout error even if fn is still blocked.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d == 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case <-ctx.Done():
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	case err := <-done:
		return err
	}
}
