package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/domain"
)

type AdminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// CreateSession inserts the session record and its capacity row in one
// transaction; a session must never exist without its counters.
func (r *AdminRepository) CreateSession(ctx context.Context, session domain.Session) error {
	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		tx := txFromContext(txCtx)

		const sessionStmt = `
INSERT INTO sessions (id, name, starts_at, status)
VALUES ($1, $2, $3, $4)`
		if _, err := tx.Exec(txCtx, sessionStmt, session.ID, session.Name, session.StartsAt, session.Status); err != nil {
			if isInvalidUUID(err) {
				return domain.ErrInvalidID
			}
			return fmt.Errorf("create session: %w", err)
		}

		const capacityStmt = `
INSERT INTO session_capacity (session_id, total, committed, held)
VALUES ($1, $2, 0, 0)`
		if _, err := tx.Exec(txCtx, capacityStmt, session.ID, session.TotalCapacity); err != nil {
			return fmt.Errorf("create session capacity: %w", err)
		}
		return nil
	})
}

func (r *AdminRepository) ListSessions(ctx context.Context) ([]domain.Session, error) {
	const query = `
SELECT s.id, s.name, s.starts_at, s.status, c.total
FROM sessions s
JOIN session_capacity c ON c.session_id = s.id
ORDER BY s.created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		var status string
		if err := rows.Scan(&session.ID, &session.Name, &session.StartsAt, &status, &session.TotalCapacity); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.Status = domain.SessionStatus(status)
		sessions = append(sessions, session)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate sessions: %w", rows.Err())
	}
	return sessions, nil
}

func (r *AdminRepository) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	const query = `
SELECT s.id, s.name, s.starts_at, s.status, c.total
FROM sessions s
JOIN session_capacity c ON c.session_id = s.id
WHERE s.id = $1`

	var session domain.Session
	var status string
	err := r.pool.QueryRow(ctx, query, sessionID).
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

// UpdateTotalCapacity refuses a total below the session's live usage. The
// guard and the write are one statement, so a racing reservation cannot
// slip between the check and the update.
func (r *AdminRepository) UpdateTotalCapacity(ctx context.Context, sessionID string, total int) error {
	const stmt = `
UPDATE session_capacity
SET total = $2
WHERE session_id = $1 AND committed + held <= $2`

	tag, err := r.pool.Exec(ctx, stmt, sessionID, total)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("update capacity: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM session_capacity WHERE session_id = $1)`, sessionID).Scan(&exists); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return domain.ErrSessionNotFound
	}
	return domain.ErrCapacityBelowUsage
}

func (r *AdminRepository) UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	const stmt = `UPDATE sessions SET status = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, stmt, sessionID, status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
