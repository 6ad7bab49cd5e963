// Package api wires the HTTP surface: route registration, the middleware
// chain, and request logging. Handlers live in handlers.go.
package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/grayline/grayline/internal/aurora"
	"github.com/grayline/grayline/internal/auth"
	"github.com/grayline/grayline/internal/health"
	"github.com/grayline/grayline/internal/metrics"
	"github.com/grayline/grayline/internal/overlay"
	"github.com/grayline/grayline/internal/stream"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(
	addr string,
	logger *slog.Logger,
	authCfg auth.Config,
	engine *overlay.Engine,
	store *aurora.Store,
	fetcher *aurora.Fetcher,
	cache *aurora.Cache,
	streamHandler *stream.Handler,
	webContent fs.FS,
) *Server {
	h := &handlers{
		engine:  engine,
		store:   store,
		fetcher: fetcher,
		cache:   cache,
		logger:  logger,
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool {
		return engine.Geometry() != nil
	}))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/terminator", h.terminator)
	mux.HandleFunc("GET /api/v1/overlays/terminator", h.overlayTerminator)
	mux.HandleFunc("GET /api/v1/overlays/aurora.png", h.auroraPNG)
	mux.HandleFunc("GET /api/v1/overlays/aurora/metadata", h.auroraMetadata)
	mux.HandleFunc("GET /api/v1/overlays/stats", h.stats)
	mux.HandleFunc("POST /api/v1/aurora/refresh", h.auroraRefresh)
	if streamHandler != nil {
		mux.HandleFunc("GET /api/v1/stream/overlays", streamHandler.HandleOverlays)
	}
	if webContent != nil {
		mux.Handle("GET /", http.FileServerFS(webContent))
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the connection through the
// wrapper; the SSE handler relies on it to clear the write deadline.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
