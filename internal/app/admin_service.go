package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/clock"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/domain"
)

type AdminRepository interface {
	CreateSession(ctx context.Context, session domain.Session) error
	ListSessions(ctx context.Context) ([]domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	// UpdateTotalCapacity applies the new total only if it still covers
	// committed plus held; otherwise it returns ErrCapacityBelowUsage.
	UpdateTotalCapacity(ctx context.Context, sessionID string, total int) error
	UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error
}

// AdminService owns the session records the reservation path validates
// against. Capacity edits re-validate against live usage; reducing a
// session below its committed and held counts is rejected, never clamped.
type AdminService struct {
	repo  AdminRepository
	clock clock.Clock
}

func NewAdminService(repo AdminRepository, clk clock.Clock) *AdminService {
	return &AdminService{
		repo:  repo,
		clock: clk,
	}
}

type CreateSessionInput struct {
	Name          string
	StartsAt      *time.Time
	TotalCapacity int
}

func (s *AdminService) CreateSession(ctx context.Context, in CreateSessionInput) (domain.Session, error) {
	if in.Name == "" {
		return domain.Session{}, domain.ErrSessionNameRequired
	}
	if in.TotalCapacity <= 0 {
		return domain.Session{}, domain.ErrInvalidCapacity
	}
	startsAt := s.clock.Now()
	if in.StartsAt != nil {
		startsAt = in.StartsAt.UTC()
	}

	session := domain.Session{
		ID:            uuid.NewString(),
		Name:          in.Name,
		StartsAt:      startsAt,
		Status:        domain.SessionStatusActive,
		TotalCapacity: in.TotalCapacity,
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *AdminService) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return s.repo.ListSessions(ctx)
}

func (s *AdminService) UpdateCapacity(ctx context.Context, sessionID string, total int) (domain.Session, error) {
	if sessionID == "" {
		return domain.Session{}, domain.ErrInvalidID
	}
	if total <= 0 {
		return domain.Session{}, domain.ErrInvalidCapacity
	}
	if err := s.repo.UpdateTotalCapacity(ctx, sessionID, total); err != nil {
		return domain.Session{}, err
	}
	return s.repo.GetSession(ctx, sessionID)
}

// CancelSession closes a session to new holds. Existing holds drain
// through their own lifecycle; cancelling twice is a no-op.
func (s *AdminService) CancelSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.ErrInvalidID
	}
	return s.repo.UpdateSessionStatus(ctx, sessionID, domain.SessionStatusCancelled)
}
