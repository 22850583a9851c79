package loop

import (
	"context"
	"math"
	"time"

	"github.com/loopkit/agentcore/provider"
)

// RetryPolicy bounds the exponential backoff applied to retryable provider
// errors (spec §4.3 step 5). A zero-value RetryPolicy performs no retries:
// MaxAttempts defaults to 1 in withRetry.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// sleep blocks for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withRetry calls fn, retrying on retryable provider errors up to policy's
// attempt budget with exponential backoff. Non-retryable errors and
// exhausted attempts are returned as-is.
func withRetry(ctx context.Context, policy RetryPolicy, fn func() (*provider.Response, error)) (*provider.Response, error) {
	var lastErr error
	for attempt := 0; attempt < policy.attempts(); attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, policy.delay(attempt-1)); err != nil {
				return nil, err
			}
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pe, ok := provider.AsError(err)
		if !ok || !pe.Retryable {
			return nil, err
		}
	}
	return nil, lastErr
}
