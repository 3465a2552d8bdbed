package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"agrirec/config"
	"agrirec/internal/usecase"
	"go.uber.org/zap"
)

// Deps are the use cases served over HTTP.
type Deps struct {
	Catalog   *usecase.Catalog
	Recommend *usecase.RecommendUseCase
	Ingest    *usecase.IngestUseCase
}

// Server exposes the recommender over HTTP.
type Server struct {
	cfg    config.ServerConfig
	apiKey string
	deps   Deps
	log    *zap.Logger
}

// New creates a server. An empty apiKey disables the x-api-key check.
func New(cfg config.ServerConfig, apiKey string, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		apiKey: apiKey,
		deps:   deps,
		log:    log,
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/recommend", s.handleRecommend)
	mux.HandleFunc("POST /api/recommend/{$}", s.handleRecommend)
	mux.HandleFunc("POST /api/recommend/add-item", s.handleAddItem)
	mux.HandleFunc("GET /api/recommend/stats", s.handleStats)

	var h http.Handler = mux
	h = s.limitBody(h)
	h = s.requireAPIKey(h)
	h = s.recoverPanics(h)
	h = s.logRequests(h)
	h = s.assignRequestID(h)
	return h
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("http server shutting down", zap.Duration("timeout", timeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	<-errCh
	return nil
}
