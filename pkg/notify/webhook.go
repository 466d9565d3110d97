package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/flowguard/flowguard/pkg/execution"
	"github.com/flowguard/flowguard/pkg/telemetry"
)

// channelMap is the on-disk shape of the channel registry file.
type channelMap struct {
	Channels map[string]string `yaml:"channels"`
}

// WebhookNotifier posts chat messages to channel webhooks. The channel
// name to webhook URL mapping is read from a YAML file and reloaded
// when the file changes on disk.
type WebhookNotifier struct {
	path   string
	client *http.Client
	logger *telemetry.Logger

	mu       sync.RWMutex
	channels map[string]string
	watcher  *fsnotify.Watcher
}

// NewWebhookNotifier loads the channel registry at path and returns a
// notifier backed by it.
func NewWebhookNotifier(path string, logger *telemetry.Logger) (*WebhookNotifier, error) {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}

	w := &WebhookNotifier{
		path:   path,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.NewComponentLogger("webhook-notifier"),
	}

	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// reload re-reads the registry file and swaps the channel map.
func (w *WebhookNotifier) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return execution.NewError(execution.KindNotificationDelivery,
			fmt.Sprintf("failed to read channel registry %s", w.path), err)
	}

	var cm channelMap
	if err := yaml.Unmarshal(data, &cm); err != nil {
		return execution.NewError(execution.KindNotificationDelivery,
			fmt.Sprintf("failed to parse channel registry %s", w.path), err)
	}

	w.mu.Lock()
	w.channels = cm.Channels
	w.mu.Unlock()

	w.logger.WithField("channels", fmt.Sprintf("%d", len(cm.Channels))).Debug("Channel registry loaded")
	return nil
}

// Watch starts watching the registry file and reloads it on change.
// The watcher runs until ctx is cancelled.
func (w *WebhookNotifier) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.watcher = watcher
	go w.processEvents(ctx)

	w.logger.WithField("path", w.path).Info("Watching channel registry")
	return nil
}

// processEvents handles watcher events and debounces reloads.
func (w *WebhookNotifier) processEvents(ctx context.Context) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := w.reload(); err != nil {
					w.logger.WithError(err).Error("Failed to reload channel registry")
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Channel registry watcher error")
		}
	}
}

// Send posts a message card to the webhook registered for args.Channel.
func (w *WebhookNotifier) Send(ctx context.Context, args execution.Args) error {
	channel := normalizeChannel(args.Channel)
	w.mu.RLock()
	url, ok := w.channels[channel]
	w.mu.RUnlock()
	if !ok {
		return execution.NewError(execution.KindNotificationDelivery,
			fmt.Sprintf("no webhook registered for channel %q", args.Channel), nil)
	}

	payload, err := json.Marshal(map[string]string{
		"title": args.Subject,
		"text":  args.Message,
	})
	if err != nil {
		return execution.NewError(execution.KindNotificationDelivery, "failed to encode webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return execution.NewError(execution.KindNotificationDelivery, "failed to build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return execution.NewError(execution.KindNotificationDelivery,
			fmt.Sprintf("failed to post to channel %q", args.Channel), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return execution.NewError(execution.KindNotificationDelivery,
			fmt.Sprintf("webhook for channel %q returned status %d", args.Channel, resp.StatusCode), nil)
	}

	w.logger.WithField("channel", args.Channel).Debug("Chat notification sent")
	return nil
}

// Channels returns the currently registered channel names.
func (w *WebhookNotifier) Channels() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	names := make([]string, 0, len(w.channels))
	for name := range w.channels {
		names = append(names, name)
	}
	return names
}

// normalizeChannel trims whitespace so registry keys and request
// channels compare consistently.
func normalizeChannel(name string) string {
	return strings.TrimSpace(name)
}
