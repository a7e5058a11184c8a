// Package api defines the HTTP handlers for the sealed-bid RFP service.
package api

import (
	"context"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shutter-network/SealedBidRFP/log"
	"github.com/shutter-network/SealedBidRFP/metrics"
	"github.com/shutter-network/SealedBidRFP/orchestrator"
)

const (
	moduleName = "api.handler"
)

// Workflows is the orchestrator surface the handlers consume.
type Workflows interface {
	Create(ctx context.Context, req orchestrator.CreateRequest) (uint64, error)
	EncryptBid(ctx context.Context, rfpID uint64, bidText string) (string, error)
	SubmitBid(ctx context.Context, rfpID uint64) (uint64, error)
	Reveal(ctx context.Context, rfpID uint64) ([]string, error)
	List(ctx context.Context, req orchestrator.ListRequest) (*orchestrator.Listing, error)
	RFPDetail(ctx context.Context, rfpID uint64) (*orchestrator.RFPView, error)
	CreateOrganization(ctx context.Context, name string) (uint64, error)
	Organizations(ctx context.Context) ([]orchestrator.OrganizationView, error)
}

// StatusLine records the most recent workflow status message for the
// status endpoint. Safe for concurrent use.
type StatusLine struct {
	mu   sync.RWMutex
	line string
}

// Set records a status message.
func (s *StatusLine) Set(msg string) {
	s.mu.Lock()
	s.line = msg
	s.mu.Unlock()
}

// Last returns the most recent status message.
func (s *StatusLine) Last() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.line
}

// Handler handles API requests.
type Handler struct {
	workflows Workflows
	status    *StatusLine
	logger    *log.Logger
	router    *chi.Mux
}

// NewHandler creates a new API handler.
func NewHandler(workflows Workflows, status *StatusLine, logger *log.Logger) *Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)
	r.Use(MetricsMiddleware(metrics.NewDefaultRequestMetrics("rfp_api"), *logger.WithModule(moduleName)))

	h := &Handler{
		workflows: workflows,
		status:    status,
		logger:    logger.WithModule(moduleName),
		router:    r,
	}
	h.registerEndpoints()

	return h
}

func (h *Handler) registerEndpoints() {
	r := h.router

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.GetStatus)

		r.Route("/rfps", func(r chi.Router) {
			r.Get("/", h.ListRFPs)
			r.Post("/", h.CreateRFP)
			r.Route("/{rfpID}", func(r chi.Router) {
				r.Get("/", h.GetRFP)
				r.Post("/bid/encrypt", h.EncryptBid)
				r.Post("/bid", h.SubmitBid)
				r.Post("/reveal", h.RevealBids)
			})
		})

		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", h.ListOrganizations)
			r.Post("/", h.CreateOrganization)
		})
	})
}

// Router gets the router for this Handler.
func (h *Handler) Router() *chi.Mux {
	return h.router
}
