package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowguard/flowguard/pkg/execution"
	"github.com/flowguard/flowguard/pkg/telemetry"
)

// allowedAttachmentExts lists the file extensions a mail notification may
// carry as an attachment.
var allowedAttachmentExts = map[string]struct{}{
	".pdf": {},
	".doc": {},
	".csv": {},
	".txt": {},
	".log": {},
}

// MailerConfig holds the SMTP connection settings for outbound mail.
type MailerConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required,gt=0"`
	From string `yaml:"from" validate:"required,email"`

	// Username and Password enable PLAIN authentication when set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Mailer sends notification mail over SMTP.
type Mailer struct {
	config MailerConfig
	logger *telemetry.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer creates a Mailer from the given SMTP settings.
func NewMailer(config MailerConfig, logger *telemetry.Logger) *Mailer {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Mailer{
		config: config,
		logger: logger.NewComponentLogger("mailer"),
		send:   smtp.SendMail,
	}
}

// Send delivers a single mail notification. The message body is sent as
// HTML. When args.Attachment is set the file is read and attached, and
// its extension must be one of the allowed document types.
func (m *Mailer) Send(ctx context.Context, args execution.Args) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(args.Recipients) == 0 {
		return execution.NewError(execution.KindNotificationDelivery, "mail notification has no recipients", nil)
	}

	msg, err := m.buildMessage(args)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	if err := m.send(addr, auth, m.config.From, args.Recipients, msg); err != nil {
		m.logger.WithError(err).Error("Mail delivery failed")
		return execution.NewError(execution.KindNotificationDelivery,
			fmt.Sprintf("failed to deliver mail to %s", strings.Join(args.Recipients, ", ")), err)
	}

	m.logger.WithField("recipients", strings.Join(args.Recipients, ",")).Debug("Mail notification sent")
	return nil
}

// buildMessage assembles a MIME message with an HTML body and an
// optional base64-encoded attachment part.
func (m *Mailer) buildMessage(args execution.Args) ([]byte, error) {
	var b strings.Builder

	writeHeader := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	writeHeader("From", m.config.From)
	writeHeader("To", strings.Join(args.Recipients, ", "))
	writeHeader("Subject", args.Subject)
	writeHeader("MIME-Version", "1.0")

	if args.Attachment == "" {
		writeHeader("Content-Type", `text/html; charset="utf-8"`)
		b.WriteString("\r\n")
		b.WriteString(args.Message)
		return []byte(b.String()), nil
	}

	content, err := m.readAttachment(args.Attachment)
	if err != nil {
		return nil, err
	}

	const boundary = "flowguard-mail-boundary"
	writeHeader("Content-Type", fmt.Sprintf(`multipart/mixed; boundary="%s"`, boundary))
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	writeHeader("Content-Type", `text/html; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(args.Message)
	b.WriteString("\r\n")

	name := filepath.Base(args.Attachment)
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	b.WriteString("--" + boundary + "\r\n")
	writeHeader("Content-Type", fmt.Sprintf(`%s; name="%s"`, ctype, name))
	writeHeader("Content-Transfer-Encoding", "base64")
	writeHeader("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	b.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 0 {
		n := 76
		if len(encoded) < n {
			n = len(encoded)
		}
		b.WriteString(encoded[:n])
		b.WriteString("\r\n")
		encoded = encoded[n:]
	}
	b.WriteString("--" + boundary + "--\r\n")

	return []byte(b.String()), nil
}

// readAttachment validates the attachment extension and reads the file.
func (m *Mailer) readAttachment(path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := allowedAttachmentExts[ext]; !ok {
		return nil, execution.NewError(execution.KindNotificationDelivery,
			fmt.Sprintf("attachment type %q is not allowed", ext), nil)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, execution.NewError(execution.KindNotificationDelivery,
			fmt.Sprintf("failed to read attachment %s", path), err)
	}
	return content, nil
}
