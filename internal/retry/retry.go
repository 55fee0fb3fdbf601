// Package retry provides bounded exponential backoff for the blocking call
// sites of the workflow: page fetches, storage I/O and review publishing.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Policy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	MaximumAttempts    int
}

func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:    1 * time.Second,
		BackoffCoefficient: 2,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    5,
	}
}

// Do runs op until it succeeds, the policy's attempt budget is exhausted, or
// ctx is cancelled. The error of the last attempt is returned on exhaustion.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	attempts := policy.MaximumAttempts
	if attempts < 1 {
		attempts = 1
	}
	interval := policy.InitialInterval

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		interval = time.Duration(float64(interval) * policy.BackoffCoefficient)
		if policy.MaximumInterval > 0 && interval > policy.MaximumInterval {
			interval = policy.MaximumInterval
		}
	}
	return fmt.Errorf("%d attempts exhausted: %w", attempts, lastErr)
}
