package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const shutdownTimeout = 20 * time.Second

// MiddlewareFunc wraps a handler. Middlewares run in the order they were added,
// the first one added being the outermost.
type MiddlewareFunc func(next http.Handler) http.Handler

type Server interface {
	AddMiddleware(middleware MiddlewareFunc)
	AddHandler(path string, handler http.HandlerFunc)
	Handler() http.Handler
	Start(ctx context.Context, addr string) error
}

type httpServer struct {
	mu          sync.Mutex
	mux         *http.ServeMux
	middlewares []MiddlewareFunc
}

func NewServer() Server {
	return &httpServer{
		mux: http.NewServeMux(),
	}
}

// AddMiddleware appends a middleware to the chain.
func (s *httpServer) AddMiddleware(middleware MiddlewareFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, middleware)
}

// AddHandler registers a handler for a pattern such as "GET /books/{id}".
func (s *httpServer) AddHandler(path string, handler http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slog.Debug("Registering handler", "path", path)
	s.mux.HandleFunc(path, handler)
}

// Handler returns the mux wrapped by the registered middlewares.
func (s *httpServer) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()

	var handler http.Handler = s.mux
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		handler = s.middlewares[i](handler)
	}

	return handler
}

// Start listens on addr and serves until ctx is done, then shuts down gracefully.
// In-flight requests get shutdownTimeout to complete.
func (s *httpServer) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server", "address", addr)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	slog.Info("Server stopped", "address", addr)
	return nil
}
