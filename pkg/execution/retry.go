package execution

import (
	"context"
	"fmt"
	"time"
)

// RetrySpec configures Retry.
type RetrySpec struct {
	// MaxRetries is the number of additional attempts after the first
	// failure, so an op runs at most MaxRetries+1 times.
	MaxRetries int

	// Interval is the fixed delay between consecutive attempts.
	Interval time.Duration

	// Enabled toggles retrying. When false the operation runs exactly
	// once and any failure propagates unwrapped.
	Enabled bool
}

// Retry wraps op so that failures are re-attempted up to spec.MaxRetries
// additional times with a fixed delay between attempts. There is no delay
// after the final failing attempt. When every attempt fails the returned
// operation fails with KindRetryExhausted wrapping the last failure.
func Retry(spec RetrySpec, op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		if !spec.Enabled {
			return op(ctx)
		}

		var lastErr error
		attempts := spec.MaxRetries + 1
		for attempt := 0; attempt < attempts; attempt++ {
			if attempt > 0 {
				if err := sleep(ctx, spec.Interval); err != nil {
					return nil, err
				}
			}

			result, err := op(ctx)
			if err == nil {
				return result, nil
			}
			lastErr = err
		}

		return nil, NewError(KindRetryExhausted,
			fmt.Sprintf("max retries (%d) exceeded", spec.MaxRetries), lastErr)
	}
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
