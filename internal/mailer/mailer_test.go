package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =========================================================================
// SMTP
// =========================================================================

func TestSMTP_Send(t *testing.T) {
	m := NewSMTP("smtp.example.com", 587, "user", "secret", "noreply@tagfer.com", discardLogger())

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		assert.Equal(t, "noreply@tagfer.com", from)
		return nil
	}

	err := m.Send(context.Background(), "alice@example.com", "Reset your password", "line one\nline two")
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Reset your password\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nline one\r\nline two"))
}

func TestSMTP_SendWithoutAuth(t *testing.T) {
	m := NewSMTP("localhost", 25, "", "", "noreply@tagfer.com", discardLogger())
	m.send = func(_ string, a smtp.Auth, _ string, _ []string, _ []byte) error {
		assert.Nil(t, a)
		return nil
	}
	require.NoError(t, m.Send(context.Background(), "bob@example.com", "hi", "body"))
}

func TestSMTP_SendError(t *testing.T) {
	m := NewSMTP("localhost", 25, "", "", "noreply@tagfer.com", discardLogger())
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	err := m.Send(context.Background(), "bob@example.com", "hi", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSMTP_SendCanceled(t *testing.T) {
	m := NewSMTP("localhost", 25, "", "", "noreply@tagfer.com", discardLogger())
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, "bob@example.com", "hi", "body"), context.Canceled)
}

func TestCompose_StripsHeaderInjection(t *testing.T) {
	msg := string(compose("a@x.com", "b@x.com", "hi\r\nBcc: evil@x.com", "body", time.Unix(0, 0)))
	assert.NotContains(t, msg, "\r\nBcc:")
}

// =========================================================================
// LOG
// =========================================================================

func TestLog_Send(t *testing.T) {
	var buf strings.Builder
	m := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, m.Send(context.Background(), "alice@example.com", "subject", "the link"))
	assert.Contains(t, buf.String(), "subject")
	assert.NotContains(t, buf.String(), "the link", "bodies stay out of info logs")
}

func TestLog_SendDebugShowsBody(t *testing.T) {
	var buf strings.Builder
	m := NewLog(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	require.NoError(t, m.Send(context.Background(), "alice@example.com", "subject", "the link"))
	assert.Contains(t, buf.String(), "the link")
}
