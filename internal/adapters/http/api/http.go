// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/okian/sessiond/internal/adapters/http/swagger"
	service "github.com/okian/sessiond/internal/app"
	"github.com/okian/sessiond/internal/domain/model"
	"github.com/okian/sessiond/internal/domain/types"
	"github.com/okian/sessiond/pkg/logger"
)

// DefaultMaxBodyBytes caps a POST /events body when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	ReceiveEvents(ctx context.Context, payload []byte) (service.Summary, error)
	Fetch(ctx context.Context, playerID string) ([]types.CompletedSession, error)
	Pending(ctx context.Context, key model.SessionKey) (model.IncompleteRecord, bool, error)
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	sessionsHandler *SessionsHandler
	logger          logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMaxBodyBytes limits the size of POST /events bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.eventsHandler.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger used for request logs.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		eventsHandler:   NewEventsHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	return s
}

// Routes builds the chi router with every API route attached.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Handle("/metrics", s.healthHandler.MetricsHandler())
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	swagger.Register(r)

	r.Post("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvents, "events"))
	r.Route("/sessions/{player_id}", func(r chi.Router) {
		r.Get("/", MetricsMiddleware(s.sessionsHandler.HandleFetch, "sessions"))
		r.Get("/{session_id}/pending", MetricsMiddleware(s.sessionsHandler.HandlePending, "pending"))
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
