// Package api is the HTTP surface of MezzoFS.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/admission"
	"github.com/mezzofs/mezzofs/pkg/api/handlers"
	"github.com/mezzofs/mezzofs/pkg/command"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/nashealth"
	"github.com/mezzofs/mezzofs/pkg/upload"
)

// Deps carries the services the router exposes.
type Deps struct {
	Store     *metastore.Store
	Folders   *command.FolderService
	Files     *command.FileService
	Uploads   *upload.Engine
	Admission *admission.Controller
	Health    *nashealth.Cache
}

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// Routes:
//   - GET /health - liveness probe
//   - GET /health/ready - readiness probe (NAS gate)
//   - /api/v1/folders/* - folder commands, stats, sync status
//   - /api/v1/files/* - file commands, content streaming, sync status
//   - /api/v1/uploads/* - multipart sessions and admission queue
//   - GET /api/v1/sync-events/{id} - single outbox row
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	healthHandler := handlers.NewHealthHandler(deps.Health)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	folderHandler := handlers.NewFolderHandler(deps.Folders)
	fileHandler := handlers.NewFileHandler(deps.Files)
	uploadHandler := handlers.NewUploadHandler(deps.Uploads, deps.Admission)
	syncHandler := handlers.NewSyncEventHandler(deps.Store)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/folders", func(r chi.Router) {
			r.Post("/", folderHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", folderHandler.Get)
				r.Get("/stats", folderHandler.Stats)
				r.Get("/sync-status", folderHandler.SyncStatus)
				r.Post("/rename", folderHandler.Rename)
				r.Post("/move", folderHandler.Move)
				r.Post("/trash", folderHandler.Trash)
				r.Post("/restore", folderHandler.Restore)
				r.Post("/purge", folderHandler.Purge)
			})
		})

		r.Route("/files", func(r chi.Router) {
			r.Post("/", fileHandler.Upload)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", fileHandler.Get)
				r.Get("/content", fileHandler.Download)
				r.Get("/sync-status", fileHandler.SyncStatus)
				r.Post("/rename", fileHandler.Rename)
				r.Post("/move", fileHandler.Move)
				r.Post("/trash", fileHandler.Trash)
				r.Post("/restore", fileHandler.Restore)
				r.Post("/purge", fileHandler.Purge)
			})
		})

		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", uploadHandler.Initiate)

			// Ticket routes before /{id} so "queue" is not parsed as a
			// session id.
			r.Route("/queue/{ticket}", func(r chi.Router) {
				r.Get("/", uploadHandler.PollTicket)
				r.Delete("/", uploadHandler.CancelTicket)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", uploadHandler.Status)
				r.Delete("/", uploadHandler.Abort)
				r.Put("/parts/{n}", uploadHandler.UploadPart)
				r.Post("/complete", uploadHandler.Complete)
			})
		})

		r.Get("/sync-events/{id}", syncHandler.Get)
	})

	return r
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs requests using the internal logger. Healthcheck
// requests land at DEBUG to keep probe noise out of the logs.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
