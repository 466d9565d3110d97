package execution

import (
	"context"
	"time"
)

// PollSpec configures Poll.
type PollSpec struct {
	// MaxDuration is the total wall-clock budget for the poll.
	MaxDuration time.Duration

	// Interval is the delay between consecutive evaluations.
	Interval time.Duration
}

// Poll repeatedly invokes op and evaluates cond on its result until cond
// succeeds or spec.MaxDuration elapses. The first evaluation happens
// immediately, and at least one evaluation is performed even when Interval
// meets or exceeds the remaining budget. A failing op signals
// KindPollingExecutable immediately, a failing predicate signals
// KindPollingCondition immediately; neither is retried. Budget exhaustion
// signals KindPollingTimeout. Evaluations are strictly sequential.
func Poll(ctx context.Context, spec PollSpec, op Operation, cond Predicate) (any, error) {
	start := time.Now()
	for {
		result, err := op(ctx)
		if err != nil {
			return nil, NewError(KindPollingExecutable,
				"poll operation failed", err)
		}

		ok, err := cond(result)
		if err != nil {
			return nil, NewError(KindPollingCondition,
				"poll condition failed", err)
		}
		if ok {
			return result, nil
		}

		if time.Since(start) >= spec.MaxDuration {
			return nil, NewError(KindPollingTimeout,
				"max duration exceeded without condition success", nil)
		}

		if err := sleep(ctx, spec.Interval); err != nil {
			return nil, err
		}
	}
}
