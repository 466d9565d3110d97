package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sync/semaphore"
)

// ExecutorKind selects the execution unit used for parallel fan-out.
type ExecutorKind string

const (
	// ExecutorGoroutine runs each input on a goroutine in the calling
	// process. Side effects of the operation are shared across workers.
	ExecutorGoroutine ExecutorKind = "goroutine"

	// ExecutorProcess runs each input in its own OS process, fully
	// isolated from the others. Inputs and outputs must be expressible
	// as command arguments and captured standard output.
	ExecutorProcess ExecutorKind = "process"
)

// ParallelSpec configures parallel fan-out.
type ParallelSpec struct {
	// MaxWorkers bounds the number of in-flight execution units.
	MaxWorkers int

	// Executor selects goroutine or process execution units.
	Executor ExecutorKind
}

// Outcome is the per-input result of a parallel fan-out. Index i of the
// returned slice always corresponds to input i, never to completion order.
type Outcome struct {
	Value any
	Err   error
}

// ParallelFunc is the per-input operation used by goroutine fan-out.
type ParallelFunc func(ctx context.Context, input any) (any, error)

// ArgvFunc builds the command line used to run one input in an isolated
// process. The first element is the program path.
type ArgvFunc func(input any) []string

const defaultMaxWorkers = 4

// Parallel fans op out over inputs across a bounded pool of goroutines and
// returns one Outcome per input, in input order. Failed positions are kept:
// all inputs are attempted and the returned error joins every per-position
// failure, so a caller gets the complete picture rather than the first loss.
func Parallel(ctx context.Context, spec ParallelSpec, op ParallelFunc, inputs []any) ([]Outcome, error) {
	if spec.Executor == ExecutorProcess {
		return nil, fmt.Errorf("process executor requires ParallelCommand")
	}
	return fanOut(ctx, spec, inputs, func(ctx context.Context, input any) (any, error) {
		return op(ctx, input)
	})
}

// ParallelCommand fans inputs out across a bounded pool of OS processes.
// Each input is turned into a command line by argv, run to completion, and
// its trimmed standard output becomes the Outcome value. A non-zero exit or
// launch failure becomes that position's failure.
func ParallelCommand(ctx context.Context, spec ParallelSpec, argv ArgvFunc, inputs []any) ([]Outcome, error) {
	return fanOut(ctx, spec, inputs, func(ctx context.Context, input any) (any, error) {
		args := argv(input)
		if len(args) == 0 {
			return nil, fmt.Errorf("empty command line for input %v", input)
		}

		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("command %s failed: %w (stderr: %s)",
				args[0], err, strings.TrimSpace(stderr.String()))
		}
		return strings.TrimSpace(stdout.String()), nil
	})
}

// fanOut dispatches each input to a worker bounded by MaxWorkers and
// collects results in input order.
func fanOut(ctx context.Context, spec ParallelSpec, inputs []any, run ParallelFunc) ([]Outcome, error) {
	workers := spec.MaxWorkers
	if workers <= 0 {
		workers = defaultMaxWorkers
	}

	sem := semaphore.NewWeighted(int64(workers))
	outcomes := make([]Outcome, len(inputs))

	for i, input := range inputs {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = Outcome{Err: err}
			continue
		}
		go func(i int, input any) {
			defer sem.Release(1)
			value, err := run(ctx, input)
			outcomes[i] = Outcome{Value: value, Err: err}
		}(i, input)
	}

	// Draining the full weight waits for every in-flight worker.
	if err := sem.Acquire(context.Background(), int64(workers)); err != nil {
		return outcomes, err
	}
	sem.Release(int64(workers))

	var errs []error
	for i, out := range outcomes {
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("input %d: %w", i, out.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}
