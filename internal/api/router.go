package api

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rflorenc/mailbox-move-workbench/internal/migration"
	"github.com/rflorenc/mailbox-move-workbench/internal/progress"
	"github.com/rflorenc/mailbox-move-workbench/internal/store"
)

// Server holds shared state for all API handlers.
type Server struct {
	Sessions     store.Store
	Orchestrator *migration.Orchestrator
	Notifier     *progress.Notifier
	Logger       *slog.Logger

	// Backend names reported by the health endpoint.
	StoreBackend string
	MoverBackend string
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// NewRouter builds the chi router with all API routes and static file serving.
func NewRouter(s *Server, webFS fs.FS) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.Health)

		// Input
		r.Post("/upload", s.UploadRecords)
		r.Post("/validate", s.ValidateRecords)

		// Migration (async)
		r.Post("/migrate", s.StartMigration)

		// Sessions
		r.Get("/sessions", s.ListSessions)
		r.Get("/sessions/{id}", s.GetSession)
		r.Get("/sessions/{id}/progress", s.StreamProgress)
		r.Get("/sessions/{id}/report", s.DownloadReport)
	})

	// WebSocket (outside /api to avoid JSON content-type assumptions)
	r.Get("/ws/sessions/{id}/progress", s.StreamProgressWS)

	// Serve embedded frontend (catch-all)
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		path := req.URL.Path
		if path == "/" {
			path = "/index.html"
		}

		// Try to serve the actual file (JS, CSS, fonts, etc.)
		f, err := webFS.Open(path[1:])
		if err == nil {
			f.Close()
			http.ServeFileFS(w, req, webFS, path[1:])
			return
		}

		// For any non-file path, serve index.html (SPA client-side routing)
		http.ServeFileFS(w, req, webFS, "index.html")
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
