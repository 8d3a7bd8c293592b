package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/clock"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/domain"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/metrics"
)

// Ledger is the authoritative record of per-session capacity counters.
// Mutations for the same session are serialized by the implementation;
// different sessions must not contend with each other.
type Ledger interface {
	// TryReserve atomically adds quantity to held if it fits within total.
	// The returned snapshot reflects the state after the attempt.
	TryReserve(ctx context.Context, sessionID string, quantity int) (bool, domain.CapacitySnapshot, error)
	// ReleaseHeld subtracts quantity from held, clamped at zero.
	ReleaseHeld(ctx context.Context, sessionID string, quantity int) error
	// CommitHeld moves quantity from held to committed as one transition.
	CommitHeld(ctx context.Context, sessionID string, quantity int) error
	Snapshot(ctx context.Context, sessionID string) (domain.CapacitySnapshot, error)
}

// HoldStore tracks individual holds so each can be resolved independently.
type HoldStore interface {
	CreateHold(ctx context.Context, hold domain.Hold) error
	GetHold(ctx context.Context, holdID string) (domain.Hold, error)
	// TransitionHold is a compare-and-swap on the hold's status. It returns
	// false when the hold is no longer in the from status, which is what
	// makes confirm, release and expiry mutually exclusive.
	TransitionHold(ctx context.Context, holdID string, from, to domain.HoldStatus) (bool, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
	CountActiveHolds(ctx context.Context, sessionID string) (int, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionDirectory resolves the session records holds are validated against.
type SessionDirectory interface {
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
}

// ReservationRepository is the storage surface the reservation service
// composes. WithTx scopes the enclosed operations to one transaction on
// backends that support it and is a passthrough otherwise.
type ReservationRepository interface {
	Ledger
	HoldStore
	SessionDirectory
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ReservationService struct {
	repo            ReservationRepository
	clock           clock.Clock
	logger          zerolog.Logger
	defaultDuration time.Duration
	minDuration     time.Duration
	maxDuration     time.Duration
}

const (
	defaultBlockDuration = 15 * time.Minute
	minBlockDuration     = 5 * time.Minute
	maxBlockDuration     = 60 * time.Minute
)

func NewReservationService(repo ReservationRepository, clk clock.Clock, logger zerolog.Logger, opts ...ReservationServiceOption) *ReservationService {
	svc := &ReservationService{
		repo:            repo,
		clock:           clk,
		logger:          logger,
		defaultDuration: defaultBlockDuration,
		minDuration:     minBlockDuration,
		maxDuration:     maxBlockDuration,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationServiceOption func(*ReservationService)

// WithBlockDurations overrides the default and permitted hold durations.
func WithBlockDurations(def, min, max time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if def > 0 {
			s.defaultDuration = def
		}
		if min > 0 {
			s.minDuration = min
		}
		if max > 0 {
			s.maxDuration = max
		}
	}
}

type AvailabilityResult struct {
	Available bool
	Capacity  domain.CapacitySnapshot
}

// CheckAvailability is a pure read; it never reserves. A caller that
// checks and then blocks can still lose the race, which Block resolves
// atomically.
func (s *ReservationService) CheckAvailability(ctx context.Context, sessionID string, quantity int) (AvailabilityResult, error) {
	if quantity < 1 {
		return AvailabilityResult{}, domain.ErrInvalidQuantity
	}
	snap, err := s.repo.Snapshot(ctx, sessionID)
	if err != nil {
		return AvailabilityResult{}, err
	}
	return AvailabilityResult{
		Available: snap.Available() >= quantity,
		Capacity:  snap,
	}, nil
}

type BlockInput struct {
	SessionID string
	Quantity  int
	// Duration of zero selects the configured default.
	Duration time.Duration
}

type BlockResult struct {
	HoldID    string
	ExpiresAt time.Time
	Available int
}

func (s *ReservationService) Block(ctx context.Context, in BlockInput) (BlockResult, error) {
	if in.Quantity < 1 {
		return BlockResult{}, domain.ErrInvalidQuantity
	}
	duration := in.Duration
	if duration == 0 {
		duration = s.defaultDuration
	}
	if duration < s.minDuration || duration > s.maxDuration {
		return BlockResult{}, domain.ErrInvalidDuration
	}

	now := s.clock.Now()
	var result BlockResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		session, err := s.repo.GetSession(txCtx, in.SessionID)
		if err != nil {
			return err
		}
		if !session.Bookable(now) {
			return domain.ErrSessionInactive
		}

		ok, snap, err := s.repo.TryReserve(txCtx, in.SessionID, in.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.CapacityError{Available: snap.Available()}
		}

		hold := domain.Hold{
			ID:        uuid.NewString(),
			SessionID: in.SessionID,
			Quantity:  in.Quantity,
			Status:    domain.HoldStatusActive,
			CreatedAt: now,
			ExpiresAt: now.Add(duration),
		}
		if err := s.repo.CreateHold(txCtx, hold); err != nil {
			// The reserve and the hold record are one transactional unit;
			// hand the capacity back if the record could not be written.
			if relErr := s.repo.ReleaseHeld(txCtx, in.SessionID, in.Quantity); relErr != nil {
				s.logger.Error().Err(relErr).
					Str("session_id", in.SessionID).
					Int("quantity", in.Quantity).
					Msg("rollback of failed block did not release held capacity; sweeper will not reclaim it until expiry")
			}
			return err
		}

		result = BlockResult{
			HoldID:    hold.ID,
			ExpiresAt: hold.ExpiresAt,
			Available: snap.Available(),
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCapacity) {
			metrics.BlocksDenied.Inc()
		}
		return BlockResult{}, err
	}

	metrics.BlocksGranted.Inc()
	return result, nil
}

type ReleaseInput struct {
	SessionID string
	HoldID    string
	Quantity  int
}

type ReleaseResult struct {
	Status    domain.HoldStatus
	Available int
}

// Release returns a hold's quantity to the pool. Releasing an already
// released hold reports success without touching the ledger; holds in any
// other terminal state are a conflict.
func (s *ReservationService) Release(ctx context.Context, in ReleaseInput) (ReleaseResult, error) {
	if in.HoldID == "" {
		return ReleaseResult{}, domain.ErrHoldNotFound
	}
	if in.Quantity < 1 {
		return ReleaseResult{}, domain.ErrInvalidQuantity
	}

	var result ReleaseResult
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := s.getSessionHold(txCtx, in.SessionID, in.HoldID)
		if err != nil {
			return err
		}
		// The hold record is authoritative for quantity; the caller's copy
		// is only cross-checked.
		if hold.Quantity != in.Quantity {
			return domain.ErrQuantityMismatch
		}

		switch hold.Status {
		case domain.HoldStatusReleased:
			result.Status = hold.Status
			return nil
		case domain.HoldStatusConfirmed, domain.HoldStatusExpired:
			return domain.ErrHoldNotActive
		}

		ok, err := s.repo.TransitionHold(txCtx, hold.ID, domain.HoldStatusActive, domain.HoldStatusReleased)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the race to confirm or the sweeper; report what won.
			return s.resolveLostRelease(txCtx, in.SessionID, hold.ID, &result)
		}
		if err := s.repo.ReleaseHeld(txCtx, in.SessionID, hold.Quantity); err != nil {
			return err
		}
		result.Status = domain.HoldStatusReleased
		metrics.HoldsReleased.Inc()
		return nil
	})
	if err != nil {
		return ReleaseResult{}, err
	}

	snap, err := s.repo.Snapshot(ctx, in.SessionID)
	if err != nil {
		return ReleaseResult{}, err
	}
	result.Available = snap.Available()
	return result, nil
}

func (s *ReservationService) resolveLostRelease(ctx context.Context, sessionID, holdID string, result *ReleaseResult) error {
	hold, err := s.getSessionHold(ctx, sessionID, holdID)
	if err != nil {
		return err
	}
	if hold.Status == domain.HoldStatusReleased {
		result.Status = hold.Status
		return nil
	}
	return domain.ErrHoldNotActive
}

type ConfirmInput struct {
	SessionID string
	HoldID    string
}

type ConfirmResult struct {
	Status    domain.HoldStatus
	Committed int
	Available int
}

// Confirm converts an active hold into committed capacity. A repeated
// confirm of a confirmed hold succeeds without effect; a hold that
// expired first is reported distinctly so payment callbacks can tell
// "seat was given away" from "safe to ignore".
func (s *ReservationService) Confirm(ctx context.Context, in ConfirmInput) (ConfirmResult, error) {
	if in.HoldID == "" {
		return ConfirmResult{}, domain.ErrHoldNotFound
	}

	now := s.clock.Now()
	var status domain.HoldStatus

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := s.getSessionHold(txCtx, in.SessionID, in.HoldID)
		if err != nil {
			return err
		}

		switch hold.Status {
		case domain.HoldStatusConfirmed:
			status = hold.Status
			return nil
		case domain.HoldStatusExpired:
			return domain.ErrHoldExpired
		case domain.HoldStatusReleased:
			return domain.ErrHoldNotActive
		}

		// Past-due holds the sweeper has not visited yet are expired here
		// rather than confirmed late.
		if !hold.ExpiresAt.After(now) {
			ok, err := s.repo.TransitionHold(txCtx, hold.ID, domain.HoldStatusActive, domain.HoldStatusExpired)
			if err != nil {
				return err
			}
			if ok {
				if err := s.repo.ReleaseHeld(txCtx, in.SessionID, hold.Quantity); err != nil {
					return err
				}
			}
			return domain.ErrHoldExpired
		}

		ok, err := s.repo.TransitionHold(txCtx, hold.ID, domain.HoldStatusActive, domain.HoldStatusConfirmed)
		if err != nil {
			return err
		}
		if !ok {
			return s.resolveLostConfirm(txCtx, in.SessionID, hold.ID, &status)
		}
		if err := s.repo.CommitHeld(txCtx, in.SessionID, hold.Quantity); err != nil {
			return err
		}
		status = domain.HoldStatusConfirmed
		metrics.HoldsConfirmed.Inc()
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	snap, err := s.repo.Snapshot(ctx, in.SessionID)
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{
		Status:    status,
		Committed: snap.Committed,
		Available: snap.Available(),
	}, nil
}

func (s *ReservationService) resolveLostConfirm(ctx context.Context, sessionID, holdID string, status *domain.HoldStatus) error {
	hold, err := s.getSessionHold(ctx, sessionID, holdID)
	if err != nil {
		return err
	}
	switch hold.Status {
	case domain.HoldStatusConfirmed:
		*status = hold.Status
		return nil
	case domain.HoldStatusExpired:
		return domain.ErrHoldExpired
	default:
		return domain.ErrHoldNotActive
	}
}

type StatsResult struct {
	Capacity        domain.CapacitySnapshot
	ActiveHoldCount int
}

func (s *ReservationService) Stats(ctx context.Context, sessionID string) (StatsResult, error) {
	snap, err := s.repo.Snapshot(ctx, sessionID)
	if err != nil {
		return StatsResult{}, err
	}
	active, err := s.repo.CountActiveHolds(ctx, sessionID)
	if err != nil {
		return StatsResult{}, err
	}
	return StatsResult{Capacity: snap, ActiveHoldCount: active}, nil
}

// getSessionHold fetches a hold and verifies it belongs to the session;
// holds from other sessions are indistinguishable from missing ones.
func (s *ReservationService) getSessionHold(ctx context.Context, sessionID, holdID string) (domain.Hold, error) {
	hold, err := s.repo.GetHold(ctx, holdID)
	if err != nil {
		return domain.Hold{}, err
	}
	if hold.SessionID != sessionID {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return hold, nil
}
