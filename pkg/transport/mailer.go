// Package transport defines the outbound mail and SMS collaborators the
// step executor delivers through.
package transport

import (
	"context"
	"log/slog"
)

// Email is one outbound message handed to a Mailer.
type Email struct {
	To          string
	CC          []string
	Subject     string
	Text        string
	HTML        string
	Attachments []string
}

// DeliveryInfo is the provider's acknowledgement of an accepted message.
type DeliveryInfo struct {
	MessageID string
}

// Mailer is the outbound email transport. Implementations may fail; the
// step executor catches the error and keeps the log pending.
type Mailer interface {
	Send(ctx context.Context, email Email) (DeliveryInfo, error)
}

// LogMailer logs messages instead of delivering them, for development.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a mailer that only logs.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("module", "log_mailer")}
}

func (m *LogMailer) Send(ctx context.Context, email Email) (DeliveryInfo, error) {
	m.logger.InfoContext(ctx, "Would send email",
		"to", email.To,
		"subject", email.Subject,
		"attachments", len(email.Attachments),
	)

	return DeliveryInfo{MessageID: "logged"}, nil
}
