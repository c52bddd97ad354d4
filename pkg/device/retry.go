// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"time"

	"github.com/Thermoquad/crucible/pkg/logger"
)

// DefaultMaxRetries gives six attempts in total
const DefaultMaxRetries = 5

// RetryPolicy bounds the resend loop of a driver exchange
type RetryPolicy struct {
	// MaxRetries is the number of resends after the first attempt
	MaxRetries int
	// Backoff is slept between attempts
	Backoff time.Duration
}

// DefaultRetryPolicy returns the policy used by the drivers unless configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries}
}

// Attempts returns the total number of sends the policy allows
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Retry calls fn until it succeeds or the policy is exhausted.
//
// ctx is checked only between attempts; an attempt in flight always runs to
// completion. A *DeviceError counts as a failed attempt like any other.
// Exhaustion yields an *UnreachableError wrapping the last failure.
func Retry(ctx context.Context, name string, policy RetryPolicy, log logger.Logger, fn func(attempt int) error) error {
	if log == nil {
		log = logger.Nop()
	}

	attempts := policy.Attempts()
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, policy.Backoff); err != nil {
				return err
			}
		}

		log.Debug("exchange", "device", name, "attempt", attempt)
		err := fn(attempt)
		if err == nil {
			return nil
		}
		last = err
		log.Warn("exchange failed", "device", name, "attempt", attempt, "err", err)
	}

	log.Error("device unreachable", "device", name, "attempts", attempts, "err", last)
	return &UnreachableError{Device: name, Attempts: attempts, Last: last}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
