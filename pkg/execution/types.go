package execution

import "context"

// Operation is an opaque callable unit of work. Control primitives hold it
// only for the duration of an invocation and attach no meaning to its result.
type Operation func(ctx context.Context) (any, error)

// Predicate evaluates the result of an Operation during a poll.
type Predicate func(result any) (bool, error)

// Disposition is the configured reaction to a failure condition.
type Disposition string

const (
	// DispositionSkip swallows the condition silently.
	DispositionSkip Disposition = "skip"

	// DispositionWarn dispatches exactly one notification and continues.
	DispositionWarn Disposition = "warn"

	// DispositionRaise surfaces the condition as a classified failure.
	DispositionRaise Disposition = "raise"
)

// Valid reports whether d is one of the recognized dispositions.
func (d Disposition) Valid() bool {
	switch d {
	case DispositionSkip, DispositionWarn, DispositionRaise:
		return true
	}
	return false
}

// sentinel is the distinguished result returned by a deadline-bounded
// operation whose budget elapsed under a non-raising disposition.
type sentinel struct{}

// TimedOut is returned in place of a result when a Timeout-wrapped operation
// exceeded its budget and the disposition was warn or skip. Callers compare
// against it to distinguish "no result because of timeout" from a nil result.
var TimedOut any = sentinel{}
