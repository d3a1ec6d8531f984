// Package mail composes and sends account emails.
//
// Delivery itself is an external concern. LogMailer records each message as
// a structured EMAIL_SENT log line, which is what development and test
// deployments use.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Message is one outgoing email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoRecipient is returned for a message without a To address.
var ErrNoRecipient = errors.New("mail: no recipient")

// LogMailer writes messages to a logger instead of delivering them.
type LogMailer struct {
	logger *slog.Logger
	from   string
}

// NewLogMailer returns a LogMailer; a nil logger means slog.Default().
func NewLogMailer(logger *slog.Logger, fromName, fromEmail string) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}
	return &LogMailer{logger: logger, from: from}
}

// Send logs msg. The body is not logged since it carries one-time links.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		m.logger.ErrorContext(ctx, "email failed", "type", "EMAIL_ERROR", "subject", msg.Subject, "error", ErrNoRecipient.Error())
		return ErrNoRecipient
	}
	if msg.From == "" {
		msg.From = m.from
	}
	m.logger.InfoContext(ctx, "email sent",
		"type", "EMAIL_SENT",
		"message_id", uuid.NewString(),
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// Verification builds the email-verification message.
func Verification(to, name, url string) Message {
	return Message{
		To:      to,
		Subject: "Email Verification",
		Body: fmt.Sprintf("Hi %s,\n\nPlease click on the link to verify your email: %s\n\n"+
			"If you didn't create an account, you can safely ignore this email.\n", name, url),
	}
}

// PasswordReset builds the password-reset message.
func PasswordReset(to, name, url string) Message {
	return Message{
		To:      to,
		Subject: "Password Reset",
		Body: fmt.Sprintf("Hi %s,\n\nYou are receiving this email because you (or someone else) has "+
			"requested the reset of a password. Please click on the link to reset your password: %s\n", name, url),
	}
}
