// Package retry wraps fallible external calls with a bounded linear-backoff
// policy. Every error is treated as retryable up to the limit; classifying
// transient vs terminal failures is left to the caller.
package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = time.Second
)

// Policy configures the wrapper. MaxRetries is the number of retries after
// the first attempt, so MaxRetries=2 means up to 3 attempts total. The wait
// before retry N is N*BaseDelay.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func Default() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// Do invokes op until it succeeds, the retry budget is exhausted, or ctx is
// done. The backoff sleep is scoped to this call only, so concurrent jobs on
// other goroutines are never delayed by it.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*p.BaseDelay); err != nil {
				return zero, err
			}
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}

	return zero, fmt.Errorf("retries exhausted after %d attempts: %w", p.MaxRetries+1, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
