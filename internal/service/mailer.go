package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/config"
)

// Mailer sends plain text email.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// defaultSMTPTimeout bounds one delivery including dial and the whole
// SMTP conversation.
const defaultSMTPTimeout = 30 * time.Second

// NewMailer returns an SMTP mailer when a host is configured and a
// logging mailer otherwise.
func NewMailer(cfg config.NotificationConfig, logger *zap.Logger) Mailer {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return &logMailer{logger: logger, from: cfg.EmailFrom}
	}
	return &smtpMailer{cfg: cfg, timeout: defaultSMTPTimeout, now: time.Now}
}

type smtpMailer struct {
	cfg     config.NotificationConfig
	timeout time.Duration
	now     func() time.Time
}

// Send delivers through the relay, upgrading to STARTTLS when the server
// offers it. The connection deadline follows ctx, capped by the mailer
// timeout, so a stalled relay cannot hold up the delivery queue.
func (m *smtpMailer) Send(ctx context.Context, to []string, subject, body string) (err error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	host := m.cfg.SMTPHost
	addr := net.JoinHostPort(host, strconv.Itoa(m.cfg.SMTPPort))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() {
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("smtp %s: %w", addr, ctx.Err())
		}
	}()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.cfg.SMTPUser != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPassword, host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := client.Mail(m.cfg.EmailFrom); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMessage(m.cfg.EmailFrom, to, subject, body, m.now())); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from string, to []string, subject, body string, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

type logMailer struct {
	logger *zap.Logger
	from   string
}

func (m *logMailer) Send(_ context.Context, to []string, subject, _ string) error {
	m.logger.Info("email (smtp disabled)",
		zap.String("from", m.from),
		zap.Strings("to", to),
		zap.String("subject", subject))
	return nil
}
