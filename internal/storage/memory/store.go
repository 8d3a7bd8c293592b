// Package memory is an in-process storage backend for single-instance
// deployments and deterministic tests. The unit of contention is the
// session: each session's counters sit behind their own mutex, so
// reservations on different sessions never block each other.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/domain"
)

type sessionState struct {
	mu        sync.Mutex
	session   domain.Session
	committed int
	held      int
}

type Store struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionState

	holdsMu sync.Mutex
	holds   map[string]*domain.Hold
}

func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		logger:   logger,
		sessions: make(map[string]*sessionState),
		holds:    make(map[string]*domain.Hold),
	}
}

// WithTx is a passthrough: the memory backend has no transactions, and
// callers compensate explicitly (a failed block releases its reserve).
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) state(sessionID string) (*sessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	return st, ok
}

func (s *Store) TryReserve(ctx context.Context, sessionID string, quantity int) (bool, domain.CapacitySnapshot, error) {
	st, ok := s.state(sessionID)
	if !ok {
		return false, domain.CapacitySnapshot{}, domain.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.committed+st.held+quantity > st.session.TotalCapacity {
		return false, snapshotLocked(sessionID, st), nil
	}
	st.held += quantity
	return true, snapshotLocked(sessionID, st), nil
}

func (s *Store) ReleaseHeld(ctx context.Context, sessionID string, quantity int) error {
	st, ok := s.state(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if quantity > st.held {
		// A release larger than held means a caller bug; clamp rather
		// than let the counter go negative.
		s.logger.Warn().
			Str("session_id", sessionID).
			Int("quantity", quantity).
			Int("held", st.held).
			Msg("release exceeds held capacity, clamping to zero")
		st.held = 0
		return nil
	}
	st.held -= quantity
	return nil
}

func (s *Store) CommitHeld(ctx context.Context, sessionID string, quantity int) error {
	st, ok := s.state(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if quantity > st.held {
		return domain.ErrQuantityMismatch
	}
	st.held -= quantity
	st.committed += quantity
	return nil
}

func (s *Store) Snapshot(ctx context.Context, sessionID string) (domain.CapacitySnapshot, error) {
	st, ok := s.state(sessionID)
	if !ok {
		return domain.CapacitySnapshot{}, domain.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return snapshotLocked(sessionID, st), nil
}

func snapshotLocked(sessionID string, st *sessionState) domain.CapacitySnapshot {
	return domain.CapacitySnapshot{
		SessionID: sessionID,
		Total:     st.session.TotalCapacity,
		Committed: st.committed,
		Held:      st.held,
	}
}

func (s *Store) CreateHold(ctx context.Context, hold domain.Hold) error {
	s.holdsMu.Lock()
	defer s.holdsMu.Unlock()

	if _, exists := s.holds[hold.ID]; exists {
		return domain.ErrInvalidID
	}
	stored := hold
	s.holds[hold.ID] = &stored
	return nil
}

func (s *Store) GetHold(ctx context.Context, holdID string) (domain.Hold, error) {
	s.holdsMu.Lock()
	defer s.holdsMu.Unlock()

	hold, ok := s.holds[holdID]
	if !ok {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return *hold, nil
}

func (s *Store) TransitionHold(ctx context.Context, holdID string, from, to domain.HoldStatus) (bool, error) {
	s.holdsMu.Lock()
	defer s.holdsMu.Unlock()

	hold, ok := s.holds[holdID]
	if !ok {
		return false, domain.ErrHoldNotFound
	}
	if hold.Status != from {
		return false, nil
	}
	hold.Status = to
	return true, nil
}

func (s *Store) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	s.holdsMu.Lock()
	defer s.holdsMu.Unlock()

	var due []domain.Hold
	for _, hold := range s.holds {
		if hold.Status != domain.HoldStatusActive {
			continue
		}
		if hold.ExpiresAt.After(now) {
			continue
		}
		due = append(due, *hold)
		if limit > 0 && len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (s *Store) CountActiveHolds(ctx context.Context, sessionID string) (int, error) {
	s.holdsMu.Lock()
	defer s.holdsMu.Unlock()

	count := 0
	for _, hold := range s.holds {
		if hold.SessionID == sessionID && hold.Status == domain.HoldStatusActive {
			count++
		}
	}
	return count, nil
}

func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.holdsMu.Lock()
	defer s.holdsMu.Unlock()

	deleted := 0
	for id, hold := range s.holds {
		if !hold.Status.Terminal() {
			continue
		}
		if hold.CreatedAt.Before(cutoff) {
			delete(s.holds, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	st, ok := s.state(sessionID)
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return domain.ErrInvalidID
	}
	s.sessions[session.ID] = &sessionState{session: session}
	return nil
}

func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.Session, 0, len(s.sessions))
	for _, st := range s.sessions {
		st.mu.Lock()
		sessions = append(sessions, st.session)
		st.mu.Unlock()
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].StartsAt.Equal(sessions[j].StartsAt) {
			return sessions[i].StartsAt.Before(sessions[j].StartsAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

func (s *Store) UpdateTotalCapacity(ctx context.Context, sessionID string, total int) error {
	st, ok := s.state(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if total < st.committed+st.held {
		return domain.ErrCapacityBelowUsage
	}
	st.session.TotalCapacity = total
	return nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	st, ok := s.state(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.session.Status = status
	return nil
}
