package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/domain"
)

// ReservationRepository backs the ledger and hold store with Postgres.
// Capacity mutations are single conditional UPDATEs on the session's
// counter row, so the row lock serializes rivals for the same session
// while leaving other sessions untouched.
type ReservationRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewReservationRepository(pool *pgxpool.Pool, logger zerolog.Logger) *ReservationRepository {
	return &ReservationRepository{pool: pool, logger: logger}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ReservationRepository) TryReserve(ctx context.Context, sessionID string, quantity int) (bool, domain.CapacitySnapshot, error) {
	const stmt = `
UPDATE session_capacity
SET held = held + $2
WHERE session_id = $1 AND committed + held + $2 <= total
RETURNING total, committed, held`

	snap := domain.CapacitySnapshot{SessionID: sessionID}
	err := r.queryRow(ctx, stmt, sessionID, quantity).Scan(&snap.Total, &snap.Committed, &snap.Held)
	if err == nil {
		return true, snap, nil
	}
	if err != pgx.ErrNoRows {
		if isInvalidUUID(err) {
			return false, domain.CapacitySnapshot{}, domain.ErrSessionNotFound
		}
		return false, domain.CapacitySnapshot{}, fmt.Errorf("try reserve: %w", err)
	}

	// The conditional update matched nothing: either the session is
	// unknown or the quantity does not fit. Read the row to tell them
	// apart and report current availability.
	snap, err = r.Snapshot(ctx, sessionID)
	if err != nil {
		return false, domain.CapacitySnapshot{}, err
	}
	return false, snap, nil
}

func (r *ReservationRepository) ReleaseHeld(ctx context.Context, sessionID string, quantity int) error {
	const stmt = `
WITH prev AS (
	SELECT held FROM session_capacity WHERE session_id = $1 FOR UPDATE
)
UPDATE session_capacity c
SET held = GREATEST(c.held - $2, 0)
FROM prev
WHERE c.session_id = $1
RETURNING prev.held`

	var prevHeld int
	err := r.queryRow(ctx, stmt, sessionID, quantity).Scan(&prevHeld)
	if err != nil {
		if isInvalidUUID(err) || err == pgx.ErrNoRows {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("release held: %w", err)
	}
	if prevHeld < quantity {
		r.logger.Warn().
			Str("session_id", sessionID).
			Int("quantity", quantity).
			Int("held", prevHeld).
			Msg("release exceeds held capacity, clamping to zero")
	}
	return nil
}

func (r *ReservationRepository) CommitHeld(ctx context.Context, sessionID string, quantity int) error {
	const stmt = `
UPDATE session_capacity
SET held = held - $2, committed = committed + $2
WHERE session_id = $1 AND held >= $2`

	tag, err := r.exec(ctx, stmt, sessionID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("commit held: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("commit held: session %s holds fewer than %d units", sessionID, quantity)
	}
	return nil
}

func (r *ReservationRepository) Snapshot(ctx context.Context, sessionID string) (domain.CapacitySnapshot, error) {
	const query = `SELECT total, committed, held FROM session_capacity WHERE session_id = $1`

	snap := domain.CapacitySnapshot{SessionID: sessionID}
	err := r.queryRow(ctx, query, sessionID).Scan(&snap.Total, &snap.Committed, &snap.Held)
	if err != nil {
		if isInvalidUUID(err) || err == pgx.ErrNoRows {
			return domain.CapacitySnapshot{}, domain.ErrSessionNotFound
		}
		return domain.CapacitySnapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

func (r *ReservationRepository) CreateHold(ctx context.Context, hold domain.Hold) error {
	const stmt = `
INSERT INTO holds (id, session_id, quantity, status, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt,
		hold.ID,
		hold.SessionID,
		hold.Quantity,
		hold.Status,
		hold.CreatedAt,
		hold.ExpiresAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrSessionNotFound
		}
		if isUniqueViolation(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetHold(ctx context.Context, holdID string) (domain.Hold, error) {
	const query = `
SELECT id, session_id, quantity, status, created_at, expires_at
FROM holds
WHERE id = $1`

	var h domain.Hold
	var status string
	err := r.queryRow(ctx, query, holdID).
		Scan(&h.ID, &h.SessionID, &h.Quantity, &status, &h.CreatedAt, &h.ExpiresAt)
	if err != nil {
		if isInvalidUUID(err) || err == pgx.ErrNoRows {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	h.Status = domain.HoldStatus(status)
	return h, nil
}

func (r *ReservationRepository) TransitionHold(ctx context.Context, holdID string, from, to domain.HoldStatus) (bool, error) {
	const stmt = `UPDATE holds SET status = $3 WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, holdID, from, to)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrHoldNotFound
		}
		return false, fmt.Errorf("transition hold: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReservationRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	const query = `
SELECT id, session_id, quantity, status, created_at, expires_at
FROM holds
WHERE status = 'active' AND expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2`

	rows, err := r.query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expirable: %w", err)
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		var h domain.Hold
		var status string
		if err := rows.Scan(&h.ID, &h.SessionID, &h.Quantity, &status, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		h.Status = domain.HoldStatus(status)
		holds = append(holds, h)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate holds: %w", rows.Err())
	}
	return holds, nil
}

func (r *ReservationRepository) CountActiveHolds(ctx context.Context, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM holds WHERE session_id = $1 AND status = 'active'`

	var count int
	if err := r.queryRow(ctx, query, sessionID).Scan(&count); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrSessionNotFound
		}
		return 0, fmt.Errorf("count active holds: %w", err)
	}
	return count, nil
}

func (r *ReservationRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const stmt = `DELETE FROM holds WHERE status <> 'active' AND created_at < $1`

	tag, err := r.exec(ctx, stmt, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal holds: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ReservationRepository) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	const query = `
SELECT s.id, s.name, s.starts_at, s.status, c.total
FROM sessions s
JOIN session_capacity c ON c.session_id = s.id
WHERE s.id = $1`

	var session domain.Session
	var status string
	err := r.queryRow(ctx, query, sessionID).
		Scan(&session.ID, &session.Name, &session.StartsAt, &status, &session.TotalCapacity)
	if err != nil {
		if isInvalidUUID(err) || err == pgx.ErrNoRows {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	session.Status = domain.SessionStatus(status)
	return session, nil
}

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *ReservationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
