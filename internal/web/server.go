// Package web provides the HTTP API for the assumptions manager:
// table metadata, CSV import/export, version snapshots, diffs, and the
// approval workflow. Tenant isolation and role checks live here; the
// core services below assume an authorized caller.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/assumptions/internal/config"
	"github.com/ledgerline/assumptions/internal/core"
	"github.com/ledgerline/assumptions/internal/web/middleware"
)

// Server is the HTTP server for the assumptions API.
type Server struct {
	cfg        *config.Config
	tables     *core.TableService
	versioning *core.VersioningService
	approvals  *core.ApprovalService
	importer   *core.ImportService
	exporter   *core.ExportService
	router     *chi.Mux
	server     *http.Server
}

// NewServer wires the core services and routes.
func NewServer(cfg *config.Config, pool *pgxpool.Pool) *Server {
	s := &Server{
		cfg:        cfg,
		tables:     core.NewTableService(pool),
		versioning: core.NewVersioningService(pool),
		approvals:  core.NewApprovalService(pool),
		importer:   core.NewImportService(pool, cfg.Import.MaxFileSize),
		exporter:   core.NewExportService(pool, cfg.Export.BatchSize),
		router:     chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(chimw.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.BearerAuth(s.cfg.Auth.JWTSecret))

		r.Route("/tables", func(r chi.Router) {
			r.Get("/", s.handleListTables)
			r.Post("/import", s.handleCreateTableFromCSV)
			r.Post("/import/preview", s.handleImportPreview)

			r.Route("/{tableID}", func(r chi.Router) {
				r.Get("/", s.handleGetTable)
				r.Patch("/", s.handleUpdateTable)
				r.Delete("/", s.handleDeleteTable)

				// Data loads
				r.Put("/data", s.handleReplaceData)
				r.Post("/data/append", s.handleAppendData)

				// Export
				r.Get("/export", s.handleExportTable)
				r.Get("/export/approved", s.handleExportLatestApproved)

				// Versioning
				r.Route("/versions", func(r chi.Router) {
					r.Post("/", s.handleCreateSnapshot)
					r.Get("/", s.handleListVersions)
					r.Get("/compare", s.handleCompareVersions)
					r.Get("/diff", s.handleFormattedDiff)

					r.Route("/{versionID}", func(r chi.Router) {
						r.Get("/", s.handleGetVersion)
						r.Delete("/", s.handleDeleteVersion)
						r.Get("/data", s.handleGetVersionData)
						r.Post("/restore", s.handleRestoreVersion)
						r.Get("/export", s.handleExportVersion)

						// Approval workflow
						r.Post("/submit", s.handleSubmitVersion)
						r.Post("/approve", s.handleApproveVersion)
						r.Post("/reject", s.handleRejectVersion)
						r.Get("/history", s.handleApprovalHistory)
					})
				})
			})
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
