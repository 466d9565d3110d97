package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"

	"github.com/flowguard/flowguard/pkg/execution"
)

func TestRouterDeliversToBothTransports(t *testing.T) {
	mailed := false
	m := NewMailer(MailerConfig{Host: "smtp.example.com", Port: 25, From: "flowguard@example.com"}, nil)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		mailed = true
		return nil
	}

	posted := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posted = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := writeRegistry(t, "channels:\n  ops: "+server.URL+"\n")
	wh, err := NewWebhookNotifier(path, nil)
	if err != nil {
		t.Fatalf("NewWebhookNotifier failed: %v", err)
	}

	router := NewRouter(WithMailer(m), WithWebhook(wh))
	err = router.Notify(context.Background(), execution.Args{
		Recipients: []string{"admin@example.com"},
		Channel:    "ops",
		Subject:    "run failed",
		Message:    "details",
	})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if !mailed {
		t.Error("mail transport was not used")
	}
	if !posted {
		t.Error("chat transport was not used")
	}
}

func TestRouterContinuesPastFailingTransport(t *testing.T) {
	m := NewMailer(MailerConfig{Host: "smtp.example.com", Port: 25, From: "flowguard@example.com"}, nil)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return execution.NewError(execution.KindNotificationDelivery, "smtp down", nil)
	}

	posted := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posted = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := writeRegistry(t, "channels:\n  ops: "+server.URL+"\n")
	wh, err := NewWebhookNotifier(path, nil)
	if err != nil {
		t.Fatalf("NewWebhookNotifier failed: %v", err)
	}

	router := NewRouter(WithMailer(m), WithWebhook(wh))
	err = router.Notify(context.Background(), execution.Args{
		Recipients: []string{"admin@example.com"},
		Channel:    "ops",
		Subject:    "run failed",
	})
	if !execution.IsKind(err, execution.KindNotificationDelivery) {
		t.Fatalf("expected notification delivery error, got %v", err)
	}
	if !posted {
		t.Error("chat delivery should have proceeded despite mail failure")
	}
}

func TestRouterRequiresConfiguredTransport(t *testing.T) {
	router := NewRouter()

	err := router.Notify(context.Background(), execution.Args{Recipients: []string{"admin@example.com"}})
	if !execution.IsKind(err, execution.KindNotificationDelivery) {
		t.Fatalf("expected notification delivery error, got %v", err)
	}
}

func TestRouterNoTransportsAddressedIsNoOp(t *testing.T) {
	router := NewRouter()

	if err := router.Notify(context.Background(), execution.Args{Subject: "nothing to route"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
