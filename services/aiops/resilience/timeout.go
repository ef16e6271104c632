// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when an operation exceeds its deadline. It is
// distinct from the operation's own errors so callers can tell a slow
// upstream from a broken one.
var ErrTimeout = errors.New("operation timed out")

// ExecuteWithTimeout runs fn with a deadline.
//
// Description:
//
//	The deadline is delivered through the derived context; fn is
//	expected to honor cancellation. On expiry the caller gets
//	ErrTimeout immediately while fn keeps running in the background
//	until it observes the cancellation. The abandoned result is
//	discarded.
//
// Outputs:
//
//	error - fn's error, ErrTimeout on expiry, or the parent context's
//	error if it was cancelled first.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}
