// Package server exposes the store's internal HTTP actions. Every
// action except the health check requires the shared bearer secret
// the receiver authenticates with.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"webhooks.cc/backend/internal/store"
	"webhooks.cc/backend/internal/usage"
)

type Config struct {
	// Secret is the shared bearer secret. When empty the server fails
	// closed: every authenticated action returns 500.
	Secret string

	// FreeRequestLimit is the per-period cap applied on downgrade and
	// to new free owners.
	FreeRequestLimit int64

	// EphemeralTTLMS is the lifetime applied to endpoints created
	// without an owner.
	EphemeralTTLMS int64
}

type Server struct {
	endpoints *store.EndpointStore
	requests  *store.RequestStore
	users     *store.UserStore
	usage     *usage.Scheduler
	cfg       Config
	logger    *slog.Logger
}

func New(endpoints *store.EndpointStore, requests *store.RequestStore, users *store.UserStore, sched *usage.Scheduler, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		endpoints: endpoints,
		requests:  requests,
		users:     users,
		usage:     sched,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Post("/capture", s.handleCapture)
		r.Post("/capture-batch", s.handleCaptureBatch)
		r.Get("/quota", s.handleQuota)
		r.Get("/endpoint-info", s.handleEndpointInfo)
		r.Post("/endpoints", s.handleCreateEndpoint)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind string) {
	writeJSON(w, status, map[string]string{"error": kind})
}
