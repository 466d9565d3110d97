package execution

import (
	"context"
	"fmt"
)

// Args carries the contextual payload of one notification dispatch. Which
// transport consumes it is the notifier's concern: recipients drive mail
// delivery, channel drives chat delivery.
type Args struct {
	Recipients []string
	Subject    string
	Message    string
	Attachment string
	Channel    string
}

// Notifier dispatches a notification to an external transport. A failed
// dispatch is reported as a KindNotificationDelivery error and must never
// be conflated with whatever failure triggered the dispatch.
type Notifier interface {
	Notify(ctx context.Context, args Args) error
}

// FailureSpec configures NotifyOnFailure.
type FailureSpec struct {
	// Handle lists the failure kinds that trigger a notification. Empty
	// means every failure triggers one.
	Handle []Kind

	// OnError selects what happens after a matched failure is notified:
	// raise re-propagates the original failure, warn swallows it, skip
	// swallows it without notifying.
	OnError Disposition

	// Enabled toggles interception. When false failures propagate
	// untouched.
	Enabled bool

	// Notify carries the base notification arguments; the triggering
	// failure is appended to the message.
	Notify Args
}

// handles reports whether err's classification is in the handled set.
func (s FailureSpec) handles(err error) bool {
	if len(s.Handle) == 0 {
		return true
	}
	kind := KindOf(err)
	for _, k := range s.Handle {
		if k == kind {
			return true
		}
	}
	return false
}

// NotifyOnFailure wraps op so that a failure whose kind is in spec.Handle
// results in exactly one notification dispatch before the configured
// disposition is applied. Failures outside the handled set always propagate
// untouched, as does every failure when the spec is disabled. When the
// disposition is raise and the transport itself fails, the original failure
// still propagates; the delivery failure is dropped rather than allowed to
// mask it.
func NotifyOnFailure(spec FailureSpec, notifier Notifier, op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		result, err := op(ctx)
		if err == nil || !spec.Enabled {
			return result, err
		}

		if !spec.handles(err) {
			return result, err
		}

		switch spec.OnError {
		case DispositionRaise:
			_ = dispatch(ctx, notifier, spec.Notify, err, "this failure raised an exit")
			return nil, err
		case DispositionWarn:
			if derr := dispatch(ctx, notifier, spec.Notify, err, "this failure was caught and skipped"); derr != nil {
				return nil, derr
			}
			return nil, nil
		default:
			return nil, nil
		}
	}
}

// dispatch sends exactly one notification describing err.
func dispatch(ctx context.Context, notifier Notifier, args Args, err error, note string) error {
	if notifier == nil {
		return nil
	}
	args.Message = fmt.Sprintf("%s\n\nFailure: %v\n%s", args.Message, err, note)
	if derr := notifier.Notify(ctx, args); derr != nil {
		return NewError(KindNotificationDelivery, "failure notification not delivered", derr)
	}
	return nil
}
