package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sourove-a/splaro/internal/campaign"
	"github.com/sourove-a/splaro/internal/config"
	"github.com/sourove-a/splaro/internal/metrics"
	"github.com/sourove-a/splaro/internal/repository"
	"github.com/sourove-a/splaro/internal/runner"
	"github.com/sourove-a/splaro/internal/segment"
)

// Deps are the services behind the management API
type Deps struct {
	Campaigns *campaign.Store
	Resolver  *segment.Resolver
	Runner    *runner.Runner
	Jobs      *repository.JobRepository
	Logs      *repository.DeliveryLogRepository
}

// Server is the management HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	server     config.ServerConfig
	keyHash    string
	version    string
	logger     *slog.Logger
	startTime  time.Time

	now func() time.Time
}

// NewServer creates a new API server
func NewServer(d Deps, cfg *config.Config, version string, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		deps:      d,
		server:    cfg.Server,
		keyHash:   cfg.API.KeyHash,
		version:   version,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
		now:       func() time.Time { return time.Now().UTC() },
	}

	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// No auth: probes and links opened by recipients
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/t/{id}", s.handleTrackClick)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/segments/preview", s.handlePreviewSegment)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCampaign)
				r.Patch("/", s.handleUpdateCampaign)
				r.Delete("/", s.handleDeleteCampaign)
				r.Post("/duplicate", s.handleDuplicateCampaign)
				r.Put("/status", s.handleSetCampaignStatus)
				r.Post("/schedule", s.handleScheduleCampaign)
				r.Get("/stats", s.handleCampaignStats)
				r.Post("/jobs", s.handleTriggerJob)
				r.Get("/jobs", s.handleListJobs)
			})
		})

		r.Get("/jobs/{id}", s.handleGetJob)

		r.Get("/delivery-logs", s.handleListDeliveryLogs)
		r.Post("/delivery-logs/{id}/click", s.handleRecordClick)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.server.ReadTimeout,
		WriteTimeout: s.server.WriteTimeout,
		IdleTimeout:  s.server.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
