package service

import (
	"context"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"

	"github.com/rs/zerolog"
)

// LogNotifier implements ports.Notifier by writing to the log. It stands in
// for the email/SMS delivery subsystem, which lives outside this service.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

var _ ports.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) AdminPaymentReceived(ctx context.Context, t *domain.Transaction) error {
	n.log.Info().
		Str("tx_id", t.ID.String()).
		Str("reference", t.Reference).
		Int64("amount", t.Amount).
		Str("currency", string(t.Currency)).
		Msg("admin notification: payment received")
	return nil
}

func (n *LogNotifier) PayoutVerificationCode(ctx context.Context, p *domain.Payout, code string) error {
	// The code itself is deliberately not logged.
	n.log.Info().
		Str("payout_id", p.ID.String()).
		Str("reference", p.Reference).
		Int("code_length", len(code)).
		Msg("payout verification code issued")
	return nil
}
