// Package api exposes the knowledge base over HTTP: document upload and
// catalog management as JSON endpoints, conversational tasks as SSE streams.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout bounds reading an entire request, uploads included.
	ReadTimeout = 2 * time.Minute

	// WriteTimeout bounds one response. Task streams carry a full model
	// generation, so this is generous.
	WriteTimeout = 10 * time.Minute

	// IdleTimeout closes idle keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// ServerConfig carries the dependencies and knobs for the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Engine      Ingester   // required
	Executor    TaskRunner // required
	Pool        *pgxpool.Pool
	CORSOrigins []string
	TrustProxy  bool
	RateBurst   int // per-IP burst, 0 means 60
}

// Server is the HTTP server for the knowledge base API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer builds the route table and middleware stack.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("ingestion engine is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("task executor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dh := &documentsHandler{engine: cfg.Engine, logger: logger}
	th := &tasksHandler{executor: cfg.Executor, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/documents", dh.upload)
	mux.HandleFunc("GET /api/v1/documents", dh.list)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", dh.remove)

	mux.HandleFunc("POST /api/v1/tasks", th.submit)
	mux.HandleFunc("GET /api/v1/tasks/{id}", th.get)
	mux.HandleFunc("POST /api/v1/tasks/{id}/cancel", th.cancel)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID sits before Logging so request_id appears in log attributes;
	// CORS sits before RateLimit so preflight OPTIONS always gets headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
