// Package server serves the host dashboard: the page holding the
// hostTableBody mount point, the current table fragment, a websocket stream
// of fragment updates, widget state as JSON, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kylerisse/hostboard/pkg/mount"
	"github.com/kylerisse/hostboard/pkg/widget"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Widget is the part of widget.Widget the dashboard reports on.
type Widget interface {
	State() widget.State
	Stats() widget.Stats
	Interval() time.Duration
}

// Server represents the dashboard HTTP server.
type Server struct {
	widget     Widget
	hub        *mount.Hub
	endpoint   string
	listenAddr string
	limiter    *rate.Limiter
	logger     *logrus.Logger
	httpServer *http.Server
}

// Option is a functional option for configuring a Server.
type Option func(*Server) error

// WithRateLimit limits requests across all clients. Without it requests are
// not limited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) error {
		if perSecond <= 0 {
			return fmt.Errorf("rate limit must be positive, got %v", perSecond)
		}
		if burst <= 0 {
			return fmt.Errorf("burst must be positive, got %d", burst)
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithEndpoint records the polled data endpoint for display on the page.
func WithEndpoint(endpoint string) Option {
	return func(s *Server) error {
		s.endpoint = endpoint
		return nil
	}
}

// NewServer creates a dashboard server for the given widget and hub.
func NewServer(listenAddr string, w Widget, hub *mount.Hub, logger *logrus.Logger, opts ...Option) (*Server, error) {
	if w == nil {
		return nil, fmt.Errorf("server: widget must not be nil")
	}
	if hub == nil {
		return nil, fmt.Errorf("server: hub must not be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		widget:     w,
		hub:        hub,
		listenAddr: listenAddr,
		logger:     logger,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	}

	handler, err := s.routes()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the full HTTP handler stack.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves HTTP in a goroutine. Listener errors other than a clean
// shutdown are sent on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Infof("Starting dashboard server on %s...", s.listenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown closes websocket clients and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}
