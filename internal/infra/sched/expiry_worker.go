// File: internal/infra/sched/expiry_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"media-cardkey-platform/internal/usecase"
)

// ExpiryWorker periodically sweeps unused card keys past their expiry via
// the use case. The sweep uses conditional writes, so running it while
// binds are in flight is safe.
type ExpiryWorker struct {
	interval time.Duration
	keysUC   usecase.CardKeyUseCase
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, keysUC usecase.CardKeyUseCase, logger *zerolog.Logger) *ExpiryWorker {
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		keysUC:   keysUC,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.keysUC.CleanupExpired(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("expiry worker error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("expired card keys swept")
			}
		}
	}
}
