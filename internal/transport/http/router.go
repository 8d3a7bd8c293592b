package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the route table for the service.
func NewRouter(reservations Reserver, admin SessionAdmin) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", HealthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /sessions/{id}/availability", HandleAvailability(reservations))
	mux.Handle("POST /sessions/{id}/block", HandleBlock(reservations))
	mux.Handle("POST /sessions/{id}/release", HandleRelease(reservations))
	mux.Handle("POST /sessions/{id}/confirm", HandleConfirm(reservations))
	mux.Handle("GET /sessions/{id}/stats", HandleStats(reservations))

	mux.Handle("POST /admin/sessions", HandleCreateSession(admin))
	mux.Handle("GET /admin/sessions", HandleListSessions(admin))
	mux.Handle("PATCH /admin/sessions/{id}/capacity", HandleUpdateCapacity(admin))
	mux.Handle("POST /admin/sessions/{id}/cancel", HandleCancelSession(admin))

	mux.Handle("/", NotFoundHandler())

	return mux
}
