package notify

import (
	"context"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flowguard/flowguard/pkg/execution"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  []byte
}

func newTestMailer(t *testing.T, sendErr error) (*Mailer, *capturedMail) {
	t.Helper()

	captured := &capturedMail{}
	m := NewMailer(MailerConfig{
		Host: "smtp.example.com",
		Port: 25,
		From: "flowguard@example.com",
	}, nil)
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		captured.addr = addr
		captured.from = from
		captured.to = to
		captured.msg = msg
		return sendErr
	}
	return m, captured
}

func TestMailerSendsHTMLMessage(t *testing.T) {
	m, captured := newTestMailer(t, nil)

	err := m.Send(context.Background(), execution.Args{
		Recipients: []string{"admin@example.com"},
		Subject:    "workflow failed",
		Message:    "<p>run aborted</p>",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if captured.addr != "smtp.example.com:25" {
		t.Errorf("unexpected address %q", captured.addr)
	}
	if captured.from != "flowguard@example.com" {
		t.Errorf("unexpected sender %q", captured.from)
	}
	if len(captured.to) != 1 || captured.to[0] != "admin@example.com" {
		t.Errorf("unexpected recipients %v", captured.to)
	}

	msg := string(captured.msg)
	if !strings.Contains(msg, "Subject: workflow failed") {
		t.Errorf("message missing subject header:\n%s", msg)
	}
	if !strings.Contains(msg, `text/html; charset="utf-8"`) {
		t.Errorf("message missing HTML content type:\n%s", msg)
	}
	if !strings.Contains(msg, "<p>run aborted</p>") {
		t.Errorf("message missing body:\n%s", msg)
	}
}

func TestMailerRequiresRecipients(t *testing.T) {
	m, _ := newTestMailer(t, nil)

	err := m.Send(context.Background(), execution.Args{Subject: "no one to tell"})
	if !execution.IsKind(err, execution.KindNotificationDelivery) {
		t.Fatalf("expected notification delivery error, got %v", err)
	}
}

func TestMailerAttachesAllowedFile(t *testing.T) {
	dir := t.TempDir()
	attachment := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(attachment, []byte("all good"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, captured := newTestMailer(t, nil)
	err := m.Send(context.Background(), execution.Args{
		Recipients: []string{"admin@example.com"},
		Subject:    "report attached",
		Message:    "<p>see attachment</p>",
		Attachment: attachment,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msg := string(captured.msg)
	if !strings.Contains(msg, "multipart/mixed") {
		t.Errorf("message is not multipart:\n%s", msg)
	}
	if !strings.Contains(msg, `filename="report.txt"`) {
		t.Errorf("message missing attachment disposition:\n%s", msg)
	}
	if !strings.Contains(msg, "Content-Transfer-Encoding: base64") {
		t.Errorf("attachment is not base64 encoded:\n%s", msg)
	}
}

func TestMailerRejectsDisallowedAttachmentType(t *testing.T) {
	dir := t.TempDir()
	attachment := filepath.Join(dir, "payload.exe")
	if err := os.WriteFile(attachment, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, captured := newTestMailer(t, nil)
	err := m.Send(context.Background(), execution.Args{
		Recipients: []string{"admin@example.com"},
		Subject:    "bad attachment",
		Attachment: attachment,
	})
	if !execution.IsKind(err, execution.KindNotificationDelivery) {
		t.Fatalf("expected notification delivery error, got %v", err)
	}
	if captured.msg != nil {
		t.Error("mail should not have been sent")
	}
}

func TestMailerWrapsDeliveryFailure(t *testing.T) {
	m, _ := newTestMailer(t, os.ErrDeadlineExceeded)

	err := m.Send(context.Background(), execution.Args{
		Recipients: []string{"admin@example.com"},
		Subject:    "will not arrive",
	})
	if !execution.IsKind(err, execution.KindNotificationDelivery) {
		t.Fatalf("expected notification delivery error, got %v", err)
	}
}
