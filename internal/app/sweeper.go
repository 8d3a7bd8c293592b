package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/clock"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/domain"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/metrics"
)

// SweeperStore is the slice of storage the sweeper needs.
type SweeperStore interface {
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
	TransitionHold(ctx context.Context, holdID string, from, to domain.HoldStatus) (bool, error)
	ReleaseHeld(ctx context.Context, sessionID string, quantity int) error
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Sweeper periodically expires past-due holds and returns their quantity
// to the ledger. A missed pass only delays reclamation; the next pass
// re-scans the same condition.
type Sweeper struct {
	store     SweeperStore
	clock     clock.Clock
	logger    zerolog.Logger
	interval  time.Duration
	retention time.Duration
	batchSize int
}

const (
	defaultSweepInterval = 30 * time.Second
	defaultRetention     = 24 * time.Hour
	defaultSweepBatch    = 500
)

func NewSweeper(store SweeperStore, clk clock.Clock, logger zerolog.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:     store,
		clock:     clk,
		logger:    logger,
		interval:  defaultSweepInterval,
		retention: defaultRetention,
		batchSize: defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTerminalRetention controls how long terminal holds are kept for
// idempotent replies before the sweeper garbage-collects them.
func WithTerminalRetention(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

func WithSweepBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// Run sweeps on every tick until the context is cancelled. Sweep errors
// are logged and retried on the next tick; they are never fatal.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				metrics.SweepErrors.Inc()
				s.logger.Error().Err(err).Msg("sweep failed; will retry next tick")
			}
		}
	}
}

// Sweep performs one pass: expire due holds, then drop terminal holds
// older than the retention window. It returns the number of holds expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.clock.Now()
	expired := 0
	for {
		holds, err := s.store.ListExpirable(ctx, now, s.batchSize)
		if err != nil {
			return expired, err
		}
		if len(holds) == 0 {
			break
		}

		progressed := 0
		for _, hold := range holds {
			won, err := s.expireHold(ctx, hold)
			if err != nil {
				return expired, err
			}
			if !won {
				// A confirm or release won the race for this hold; the
				// capacity is already accounted for.
				continue
			}
			progressed++
			expired++
			metrics.HoldsExpired.Inc()
			s.logger.Debug().
				Str("hold_id", hold.ID).
				Str("session_id", hold.SessionID).
				Int("quantity", hold.Quantity).
				Time("expires_at", hold.ExpiresAt).
				Msg("hold expired")
		}
		if len(holds) < s.batchSize {
			break
		}
		if progressed == 0 {
			// Every candidate was resolved concurrently; nothing left to do.
			break
		}
	}

	purged, err := s.store.DeleteTerminalBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return expired, err
	}
	if expired > 0 || purged > 0 {
		s.logger.Info().Int("expired", expired).Int("purged", purged).Msg("sweep complete")
	}
	return expired, nil
}

// expireHold flips one hold to expired and returns its quantity to the
// ledger as a single unit. On a backend without transactions the status
// flip is reverted when the release fails, so the hold stays visible to
// the next pass; a hold must never go terminal with its capacity still
// held.
func (s *Sweeper) expireHold(ctx context.Context, hold domain.Hold) (bool, error) {
	var won bool
	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		ok, err := s.store.TransitionHold(txCtx, hold.ID, domain.HoldStatusActive, domain.HoldStatusExpired)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := s.store.ReleaseHeld(txCtx, hold.SessionID, hold.Quantity); err != nil {
			if _, revertErr := s.store.TransitionHold(txCtx, hold.ID, domain.HoldStatusExpired, domain.HoldStatusActive); revertErr != nil {
				s.logger.Error().Err(revertErr).
					Str("hold_id", hold.ID).
					Str("session_id", hold.SessionID).
					Msg("could not revert hold after failed release")
			}
			return err
		}
		won = true
		return nil
	})
	return won, err
}
