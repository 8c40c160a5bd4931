// Package httpapi exposes the engine's ingestion boundary and
// query/management surface over HTTP using chi.
//
// Routes:
//   - POST   /api/log                 ingest one event (form or JSON body)
//   - GET    /api/logs                stored events in insertion order
//   - GET    /api/blocked             block entries sorted by block time
//   - GET    /api/reports             incident reports in generation order
//   - GET    /api/reports/archive     archived reports (?address= filter), when configured
//   - GET    /api/reports/archive/{id}
//   - DELETE /api/blocked/{address}   manual unblock
//   - DELETE /api/clear               clear events, blocks and reports
//   - GET    /ready, GET /metrics     health and Prometheus, when configured
package httpapi

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Reddy-45/siem/internal/domain"
)

// Service is the engine surface the router needs. Implemented by app.Engine.
type Service interface {
	Ingest(ctx context.Context, req domain.IngestRequest) domain.Decision
	IsBlocked(addr netip.Addr) bool
	Events() []domain.Event
	Blocked() []domain.BlockEntry
	Reports() []*domain.IncidentReport
	Unblock(addr netip.Addr) bool
	Clear()
}

// ReportArchive is the read side of the durable report archive.
type ReportArchive interface {
	List() ([]*domain.IncidentReport, error)
	ListByAddress(addr netip.Addr) ([]*domain.IncidentReport, error)
	Get(id string) (*domain.IncidentReport, bool)
}

type RouterConfig struct {
	TrustForwardedFor bool
	AllowedOrigins    []string
	RateLimitRequests int // Per client per RateLimitWindow (0 disables)
	RateLimitWindow   time.Duration
	MaxBodyBytes      int64        // Ingestion body cap (default: 64KB)
	Archive           ReportArchive // Mounted at /api/reports/archive when set
	Health            http.Handler  // Mounted at /ready when set
	Metrics           http.Handler  // Mounted at /metrics when set
}

// NewRouter builds the HTTP handler tree.
func NewRouter(svc Service, config RouterConfig) chi.Router {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 64 * 1024
	}
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = time.Minute
	}

	h := &handlers{
		svc:            svc,
		trustForwarded: config.TrustForwardedFor,
		maxBodyBytes:   config.MaxBodyBytes,
		archive:        config.Archive,
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(corsHandler(config.AllowedOrigins))

	router.Route("/api", func(r chi.Router) {
		r.With(rateLimiter(config.RateLimitRequests, config.RateLimitWindow, config.TrustForwardedFor)).
			Post("/log", h.ingest)
		r.Get("/logs", h.listEvents)
		r.Get("/blocked", h.listBlocked)
		r.Delete("/blocked/{address}", h.unblock)
		r.Get("/reports", h.listReports)
		if config.Archive != nil {
			r.Get("/reports/archive", h.listArchived)
			r.Get("/reports/archive/{id}", h.getArchived)
		}
		r.Delete("/clear", h.clear)
	})

	if config.Health != nil {
		router.Method(http.MethodGet, "/ready", config.Health)
	}
	if config.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", config.Metrics)
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "endpoint not found"})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	return router
}
