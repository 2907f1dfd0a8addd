package service

import (
	"context"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/ports"

	"github.com/rs/zerolog"
)

// Sweeper runs the periodic maintenance passes: provider status polling for
// unresolved transactions, expiry of stale PENDING transactions and demotion
// of exhausted payment links. It is decoupled from the request path.
type Sweeper struct {
	txSvc    ports.TransactionService
	linkSvc  ports.PaymentLinkService
	interval time.Duration
	log      zerolog.Logger
}

// NewSweeper creates the background sweeper.
func NewSweeper(txSvc ports.TransactionService, linkSvc ports.PaymentLinkService, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		txSvc:    txSvc,
		linkSvc:  linkSvc,
		interval: interval,
		log:      log,
	}
}

// Run blocks until the context is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one maintenance pass. Each step is independent: a failure in one
// is logged and does not stop the others.
func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.txSvc.PollUnresolved(ctx); err != nil {
		s.log.Error().Err(err).Msg("unresolved transaction poll failed")
	}
	if _, err := s.txSvc.ExpirePending(ctx); err != nil {
		s.log.Error().Err(err).Msg("transaction expiry sweep failed")
	}
	if _, err := s.linkSvc.DemoteStale(ctx); err != nil {
		s.log.Error().Err(err).Msg("payment link demotion sweep failed")
	}
}
