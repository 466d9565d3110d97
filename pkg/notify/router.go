package notify

import (
	"context"
	"errors"

	"github.com/flowguard/flowguard/pkg/execution"
	"github.com/flowguard/flowguard/pkg/telemetry"
)

// Router fans a notification out to the transports configured for it:
// mail when recipients are set, chat when a channel is set. It
// implements execution.Notifier.
type Router struct {
	mailer  *Mailer
	webhook *WebhookNotifier
	metrics *telemetry.Metrics
}

var _ execution.Notifier = (*Router)(nil)

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithMailer attaches a mail transport.
func WithMailer(m *Mailer) RouterOption {
	return func(r *Router) { r.mailer = m }
}

// WithWebhook attaches a chat webhook transport.
func WithWebhook(w *WebhookNotifier) RouterOption {
	return func(r *Router) { r.webhook = w }
}

// WithMetrics records delivery outcomes on the given metrics.
func WithMetrics(m *telemetry.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// NewRouter creates a Router with the given transports.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify delivers args over every transport it addresses. Failures on
// one transport do not stop delivery on the others; all failures are
// joined into the returned error.
func (r *Router) Notify(ctx context.Context, args execution.Args) error {
	var errs []error

	if len(args.Recipients) > 0 {
		errs = append(errs, r.deliver("mail", func() error {
			if r.mailer == nil {
				return execution.NewError(execution.KindNotificationDelivery,
					"mail notification requested but no mailer is configured", nil)
			}
			return r.mailer.Send(ctx, args)
		}))
	}

	if args.Channel != "" {
		errs = append(errs, r.deliver("chat", func() error {
			if r.webhook == nil {
				return execution.NewError(execution.KindNotificationDelivery,
					"chat notification requested but no webhook notifier is configured", nil)
			}
			return r.webhook.Send(ctx, args)
		}))
	}

	return errors.Join(errs...)
}

// deliver runs a single transport send and records its outcome.
func (r *Router) deliver(transport string, send func() error) error {
	err := send()

	if r.metrics != nil {
		outcome := "delivered"
		if err != nil {
			outcome = "failed"
		}
		r.metrics.Notification(transport, outcome)
	}
	return err
}
