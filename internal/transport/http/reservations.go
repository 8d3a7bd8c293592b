package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/app"
)

// Reserver is the reservation surface the handlers need.
type Reserver interface {
	CheckAvailability(ctx context.Context, sessionID string, quantity int) (app.AvailabilityResult, error)
	Block(ctx context.Context, in app.BlockInput) (app.BlockResult, error)
	Release(ctx context.Context, in app.ReleaseInput) (app.ReleaseResult, error)
	Confirm(ctx context.Context, in app.ConfirmInput) (app.ConfirmResult, error)
	Stats(ctx context.Context, sessionID string) (app.StatsResult, error)
}

// HandleAvailability serves GET /sessions/{id}/availability?quantity=N.
// The check never reserves; quantity defaults to 1 when absent.
func HandleAvailability(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")

		quantity := 1
		if raw := r.URL.Query().Get("quantity"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeFailure(w, http.StatusBadRequest, codeValidationError, "quantity must be an integer", nil)
				return
			}
			quantity = n
		}

		res, err := svc.CheckAvailability(r.Context(), sessionID, quantity)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "availability checked", availabilityResponse{
			Available:         res.Available,
			AvailableCapacity: res.Capacity.Available(),
		})
	}
}

type availabilityResponse struct {
	Available         bool `json:"available"`
	AvailableCapacity int  `json:"availableCapacity"`
}

type blockRequest struct {
	Quantity             int `json:"quantity"`
	BlockDurationMinutes int `json:"blockDurationMinutes"`
}

type blockResponse struct {
	HoldID            string    `json:"holdId"`
	ExpiresAt         time.Time `json:"expiresAt"`
	AvailableCapacity int       `json:"availableCapacity"`
}

// HandleBlock serves POST /sessions/{id}/block.
func HandleBlock(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req blockRequest
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := svc.Block(r.Context(), app.BlockInput{
			SessionID: r.PathValue("id"),
			Quantity:  req.Quantity,
			Duration:  time.Duration(req.BlockDurationMinutes) * time.Minute,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusCreated, "capacity blocked", blockResponse{
			HoldID:            res.HoldID,
			ExpiresAt:         res.ExpiresAt,
			AvailableCapacity: res.Available,
		})
	}
}

type releaseRequest struct {
	HoldID   string `json:"holdId"`
	Quantity int    `json:"quantity"`
}

type releaseResponse struct {
	Status            string `json:"status"`
	AvailableCapacity int    `json:"availableCapacity"`
}

// HandleRelease serves POST /sessions/{id}/release.
func HandleRelease(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req releaseRequest
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := svc.Release(r.Context(), app.ReleaseInput{
			SessionID: r.PathValue("id"),
			HoldID:    req.HoldID,
			Quantity:  req.Quantity,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "hold released", releaseResponse{
			Status:            string(res.Status),
			AvailableCapacity: res.Available,
		})
	}
}

type confirmRequest struct {
	HoldID string `json:"holdId"`
}

type confirmResponse struct {
	Status            string `json:"status"`
	CommittedCount    int    `json:"committedCount"`
	AvailableCapacity int    `json:"availableCapacity"`
}

// HandleConfirm serves POST /sessions/{id}/confirm.
func HandleConfirm(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmRequest
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := svc.Confirm(r.Context(), app.ConfirmInput{
			SessionID: r.PathValue("id"),
			HoldID:    req.HoldID,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "hold confirmed", confirmResponse{
			Status:            string(res.Status),
			CommittedCount:    res.Committed,
			AvailableCapacity: res.Available,
		})
	}
}

type statsResponse struct {
	TotalCapacity     int `json:"totalCapacity"`
	CommittedCount    int `json:"committedCount"`
	HeldCount         int `json:"heldCount"`
	AvailableCapacity int `json:"availableCapacity"`
	ActiveHoldCount   int `json:"activeHoldCount"`
}

// HandleStats serves GET /sessions/{id}/stats.
func HandleStats(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Stats(r.Context(), r.PathValue("id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, "session stats", statsResponse{
			TotalCapacity:     res.Capacity.Total,
			CommittedCount:    res.Capacity.Committed,
			HeldCount:         res.Capacity.Held,
			AvailableCapacity: res.Capacity.Available(),
			ActiveHoldCount:   res.ActiveHoldCount,
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, codeValidationError, "invalid request body", nil)
		return false
	}
	return true
}
