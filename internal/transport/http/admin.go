package http

import (
	"context"
	"net/http"
	"time"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/app"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/domain"
)

// SessionAdmin is the administrative surface the handlers need.
type SessionAdmin interface {
	CreateSession(ctx context.Context, in app.CreateSessionInput) (domain.Session, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)
	UpdateCapacity(ctx context.Context, sessionID string, total int) (domain.Session, error)
	CancelSession(ctx context.Context, sessionID string) error
}

type createSessionRequest struct {
	Name          string     `json:"name"`
	StartsAt      *time.Time `json:"startsAt"`
	TotalCapacity int        `json:"totalCapacity"`
}

type sessionResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	StartsAt      time.Time `json:"startsAt"`
	Status        string    `json:"status"`
	TotalCapacity int       `json:"totalCapacity"`
}

func toSessionResponse(s domain.Session) sessionResponse {
	return sessionResponse{
		ID:            s.ID,
		Name:          s.Name,
		StartsAt:      s.StartsAt,
		Status:        string(s.Status),
		TotalCapacity: s.TotalCapacity,
	}
}

// HandleCreateSession serves POST /admin/sessions.
func HandleCreateSession(svc SessionAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		session, err := svc.CreateSession(r.Context(), app.CreateSessionInput{
			Name:          req.Name,
			StartsAt:      req.StartsAt,
			TotalCapacity: req.TotalCapacity,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusCreated, "session created", toSessionResponse(session))
	}
}

// HandleListSessions serves GET /admin/sessions.
func HandleListSessions(svc SessionAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := svc.ListSessions(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := make([]sessionResponse, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, toSessionResponse(s))
		}
		writeSuccess(w, http.StatusOK, "sessions listed", out)
	}
}

type updateCapacityRequest struct {
	TotalCapacity int `json:"totalCapacity"`
}

// HandleUpdateCapacity serves PATCH /admin/sessions/{id}/capacity. A total
// below the session's committed plus held units is rejected, not clamped.
func HandleUpdateCapacity(svc SessionAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateCapacityRequest
		if !decodeBody(w, r, &req) {
			return
		}

		session, err := svc.UpdateCapacity(r.Context(), r.PathValue("id"), req.TotalCapacity)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "capacity updated", toSessionResponse(session))
	}
}

// HandleCancelSession serves POST /admin/sessions/{id}/cancel.
func HandleCancelSession(svc SessionAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CancelSession(r.Context(), r.PathValue("id")); err != nil {
			writeDomainError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "session cancelled", nil)
	}
}
