// Package execution provides the control primitives used to run unreliable,
// long-running operations: retry, deadline-bounded execution, conditional
// polling, bounded parallel fan-out, and failure notification.
package execution

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react to the category of the
// failure rather than its transport-specific detail.
type Kind string

const (
	// KindPollingTimeout indicates a poll exhausted its maximum duration
	// without the condition ever succeeding.
	KindPollingTimeout Kind = "polling_timeout"

	// KindPollingExecutable indicates the operation under poll failed.
	KindPollingExecutable Kind = "polling_executable"

	// KindPollingCondition indicates the poll predicate itself failed.
	KindPollingCondition Kind = "polling_condition"

	// KindRetryExhausted indicates all retry attempts failed, or a
	// deadline-bounded operation exceeded its wall-clock budget.
	KindRetryExhausted Kind = "retry_exhausted"

	// KindProcessTermination indicates a supervised process survived
	// forced termination. This is fatal and never retried automatically.
	KindProcessTermination Kind = "process_termination"

	// KindProcessNotFound indicates the target executable is missing.
	KindProcessNotFound Kind = "process_not_found"

	// KindEngineFailure indicates the workflow engine failed to launch or
	// exited with a non-zero status.
	KindEngineFailure Kind = "engine_failure"

	// KindInvalidExecutable indicates the target exists but is not a
	// recognized workflow file.
	KindInvalidExecutable Kind = "invalid_executable"

	// KindLoggingConfiguration indicates the log sink is misconfigured
	// or structurally incompatible.
	KindLoggingConfiguration Kind = "logging_configuration"

	// KindNotificationDelivery indicates a notification transport failed.
	// It must never replace the failure that triggered the notification.
	KindNotificationDelivery Kind = "notification_delivery"

	// KindTransfer indicates a remote file transfer operation failed.
	KindTransfer Kind = "transfer"
)

// Error is a classified failure with context. Every component in the module
// signals through one of the Kind values above rather than an ad hoc error.
type Error struct {
	// Kind is the failure classification.
	Kind Kind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Operation is the operation being performed when the failure occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		if e.Operation != "" {
			return fmt.Sprintf("[%s] %s (operation=%s): %v", e.Kind, e.Message, e.Operation, e.Err)
		}
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation=%s)", e.Kind, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two classified errors are
// equal when their kinds match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// NewError creates a classified error of the given kind.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the classification of err, or the empty Kind when err is
// not a classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification anywhere in
// its chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsPollingTimeout reports whether err is a polling timeout.
func IsPollingTimeout(err error) bool { return IsKind(err, KindPollingTimeout) }

// IsRetryExhausted reports whether err is a retry or deadline exhaustion.
func IsRetryExhausted(err error) bool { return IsKind(err, KindRetryExhausted) }

// IsProcessTermination reports whether err is a failed forced termination.
func IsProcessTermination(err error) bool { return IsKind(err, KindProcessTermination) }

// IsNotificationDelivery reports whether err is a transport delivery failure.
func IsNotificationDelivery(err error) bool { return IsKind(err, KindNotificationDelivery) }
