// Package mailer sends transactional email (password reset links).
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Mailer delivers one plain-text message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends mail through a submission server using PLAIN auth.
type SMTP struct {
	addr   string
	host   string
	from   string
	auth   smtp.Auth
	send   sendFunc
	logger *slog.Logger
}

// NewSMTP builds an SMTP mailer. username may be empty for servers that
// accept unauthenticated submission.
func NewSMTP(host string, port int, username, password, from string, logger *slog.Logger) *SMTP {
	m := &SMTP{
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		host:   host,
		from:   from,
		send:   smtp.SendMail,
		logger: logger,
	}
	if username != "" {
		m.auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

// Send delivers the message. net/smtp has no context support, so ctx is only
// checked before dialing.
func (m *SMTP) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := compose(m.from, to, subject, body, time.Now())
	if err := m.send(m.addr, m.auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("mailer: sending to %s: %w", to, err)
	}
	m.logger.Info("mail sent", slog.String("subject", subject))
	return nil
}

func compose(from, to, subject, body string, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Log writes messages to the logger instead of sending them. It is used when
// no SMTP server is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log mailer.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Send logs that a message was dropped. The body is logged at debug level only.
func (m *Log) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Info("mail not sent, no smtp server configured",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Int("bytes", len(body)),
	)
	m.logger.DebugContext(ctx, "mail body", slog.String("to", to), slog.String("body", body))
	return nil
}
