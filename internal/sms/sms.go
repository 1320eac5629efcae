// Package sms sends text messages: verification PINs and signup invites.
package sms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/tagfer/tagfer-server/internal/logging"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// messageCreator is the part of the Twilio REST client we use.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Twilio sends messages through the Twilio Messages API.
type Twilio struct {
	api    messageCreator
	from   string
	logger *slog.Logger
}

// NewTwilio builds a sender for the given account. from is the Twilio number
// messages are sent from.
func NewTwilio(accountSID, authToken, from string, logger *slog.Logger) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Twilio{api: client.Api, from: from, logger: logger}
}

// Send delivers body to the E.164 number `to`. The Twilio client has no
// context support, so ctx is only checked before the call.
func (t *Twilio) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	msg, err := t.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("sms: sending to %s: %w", logging.Mask(to), err)
	}

	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	t.logger.Debug("sms sent", slog.String("to", logging.Mask(to)), slog.String("sid", sid))
	return nil
}

// LogSender writes messages to the log instead of sending them. It is used
// when no SMS provider is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs that a message was dropped. The body is logged at debug level only.
func (s *LogSender) Send(ctx context.Context, to, body string) error {
	s.logger.Info("sms (not sent, no provider configured)",
		slog.String("to", logging.Mask(to)),
		slog.Int("bytes", len(body)),
	)
	s.logger.DebugContext(ctx, "sms body", slog.String("to", logging.Mask(to)), slog.String("body", body))
	return nil
}
