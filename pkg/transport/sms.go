package transport

import (
	"context"
	"log/slog"
)

// SMS is one outbound text message handed to an SMSSender.
type SMS struct {
	To      string
	Message string
	From    string
}

// SMSResult carries the provider's per-country segment accounting. A nil
// or empty Usage means the provider reported nothing and the caller falls
// back to its own segment estimate.
type SMSResult struct {
	Usage map[string]int
}

// Segments sums the provider-reported segment counts across countries.
func (r SMSResult) Segments() int {
	total := 0
	for _, count := range r.Usage {
		total += count
	}

	return total
}

// SMSSender is the outbound SMS transport.
type SMSSender interface {
	Send(ctx context.Context, sms SMS) (SMSResult, error)
}

// LogSMSSender logs messages instead of delivering them, for development.
type LogSMSSender struct {
	logger *slog.Logger
}

// NewLogSMSSender creates an SMS sender that only logs.
func NewLogSMSSender(logger *slog.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger.With("module", "log_sms_sender")}
}

func (s *LogSMSSender) Send(ctx context.Context, sms SMS) (SMSResult, error) {
	s.logger.InfoContext(ctx, "Would send SMS",
		"to", sms.To,
		"from", sms.From,
		"length", len(sms.Message),
	)

	return SMSResult{}, nil
}
