package execution

import (
	"context"
	"fmt"
	"time"
)

// TimeoutSpec configures Timeout.
type TimeoutSpec struct {
	// Max is the wall-clock budget for a single invocation.
	Max time.Duration

	// OnTimeout selects what happens when the budget elapses before the
	// operation completes.
	OnTimeout Disposition

	// Enabled toggles deadline enforcement. When false the operation runs
	// synchronously inline with no deadline.
	Enabled bool

	// Notify carries the notification arguments dispatched when OnTimeout
	// is DispositionWarn.
	Notify Args
}

// outcome carries an operation result across the worker goroutine boundary.
type outcome struct {
	result any
	err    error
}

// Timeout wraps op so it runs against a wall-clock deadline of spec.Max.
// An operation that completes in time returns its result unchanged, and an
// operation that fails in time propagates its original failure; Timeout
// never suppresses operation-level errors. When the deadline elapses first
// the disposition decides: raise signals a KindRetryExhausted timeout error,
// warn dispatches spec.Notify through notifier and returns the TimedOut
// sentinel, skip returns the sentinel silently. In every timeout case the
// still-running goroutine is abandoned; abandonment is best-effort since the
// wrapped work may not be interruptible in-process. The operation receives a
// context cancelled at the deadline so cooperative work can stop early.
func Timeout(spec TimeoutSpec, notifier Notifier, op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		if !spec.Enabled {
			return op(ctx)
		}

		opCtx, cancel := context.WithCancel(ctx)
		done := make(chan outcome, 1)
		go func() {
			result, err := op(opCtx)
			done <- outcome{result: result, err: err}
		}()

		timer := time.NewTimer(spec.Max)
		defer timer.Stop()

		select {
		case out := <-done:
			cancel()
			return out.result, out.err
		case <-ctx.Done():
			cancel()
			return nil, ctx.Err()
		case <-timer.C:
			cancel()
		}

		switch spec.OnTimeout {
		case DispositionRaise:
			return nil, NewError(KindRetryExhausted,
				fmt.Sprintf("operation exceeded max timeout of %s", spec.Max), nil).
				WithOperation("timeout")
		case DispositionWarn:
			if notifier != nil {
				if err := notifier.Notify(ctx, spec.Notify); err != nil {
					return TimedOut, NewError(KindNotificationDelivery,
						"timeout notification failed", err)
				}
			}
			return TimedOut, nil
		default:
			return TimedOut, nil
		}
	}
}
