package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/estimate-engine/internal/catalog"
	"github.com/terra-clan/estimate-engine/internal/config"
	"github.com/terra-clan/estimate-engine/internal/health"
	"github.com/terra-clan/estimate-engine/internal/models"
	"github.com/terra-clan/estimate-engine/internal/project"
	"github.com/terra-clan/estimate-engine/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	projects       project.Manager
	sections       *catalog.Loader
	checks         *health.Registry
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	auth config.AuthConfig,
	manager project.Manager,
	sections *catalog.Loader,
	repo storage.Repository,
	checks *health.Registry,
) *Server {
	s := &Server{
		config:         cfg,
		projects:       manager,
		sections:       sections,
		checks:         checks,
		authMiddleware: NewAuthMiddleware(repo, auth.Enabled),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "Range"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Range", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	read := s.authMiddleware.RequirePermission(models.PermProjectsRead)
	write := s.authMiddleware.RequirePermission(models.PermProjectsWrite)

	// Health checks (public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware.Authenticate)

			// The live editor holds its connection open, so it runs
			// without the request timeout.
			r.With(read).Get("/projects/{id}/estimate/ws", s.handleEditorWS)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(timeout))

				r.Route("/projects", func(r chi.Router) {
					r.With(read).Get("/", s.handleListProjects)
					r.With(write).Post("/", s.handleCreateProject)

					r.Route("/{id}", func(r chi.Router) {
						r.With(read).Get("/", s.handleGetProject)
						r.With(write).Put("/", s.handleUpdateProject)
						r.With(write).Delete("/", s.handleDeleteProject)

						r.With(read).Get("/estimate", s.handleGetEstimate)
						r.With(write).Put("/estimate", s.handleSaveEstimate)
						r.With(read).Get("/estimate/export.csv", s.handleExportEstimate)
					})
				})

				r.With(read).Get("/schema", s.handleSchema)
				r.With(read).Get("/dashboard", s.handleDashboard)

				r.With(read).Get("/sections", s.handleListSections)
				r.With(read).Get("/sections/{id}", s.handleGetSection)

				r.With(read).Post("/estimates/calculate", s.handleCalculate)
				r.With(read).Post("/providers/validate", s.handleValidateProviders)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
