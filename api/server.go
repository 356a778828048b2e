// Package api Keystone API
//
//	@title			Keystone API
//	@version		1.0
//	@description	Domain-driven service starter: health, metrics and domain routers.
//
// @license.name	MIT
// @license.url	https://opensource.org/licenses/MIT
//
// @BasePath	/api
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"keystone/config"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Server owns the HTTP router and listener.
type Server struct {
	settings       config.Settings
	logger         *zap.SugaredLogger
	router         *mux.Router
	apiRouter      *mux.Router
	limiter        Limiter
	tracerProvider trace.TracerProvider
	httpServer     *http.Server
	handler        http.Handler
}

// ServerOption customizes NewServer.
type ServerOption func(*Server)

// WithTracerProvider enables request spans through otelmux.
func WithTracerProvider(tp trace.TracerProvider) ServerOption {
	return func(s *Server) { s.tracerProvider = tp }
}

// WithLimiter replaces the in-memory per-IP limiter. The server closes it
// on Shutdown.
func WithLimiter(l Limiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

// NewServer builds the router with health, metrics and, when enabled, docs.
// Domain routers are mounted afterwards on APIRouter.
func NewServer(settings config.Settings, logger *zap.SugaredLogger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		settings: settings,
		logger:   logger,
		router:   mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.limiter == nil && settings.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(settings.RateLimitRPS, settings.RateLimitBurst)
	}

	s.setupRoutes()
	s.handler = s.requestContextMiddleware(s.corsMiddleware(s.rateLimitMiddleware(s.router)))
	s.httpServer = &http.Server{
		Addr:              settings.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          zap.NewStdLog(logger.Desugar()),
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.recoveryMiddleware)
	if s.tracerProvider != nil {
		s.router.Use(otelmux.Middleware(s.settings.AppName, otelmux.WithTracerProvider(s.tracerProvider)))
	}
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.accessLogMiddleware)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, "Not Found", nil, s.logger)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)

	if prefix := s.settings.APIPrefix; prefix != "" {
		s.apiRouter = s.router.PathPrefix(prefix).Subrouter()
	} else {
		s.apiRouter = s.router.NewRoute().Subrouter()
	}
	s.apiRouter.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)

	s.apiRouter.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if s.settings.DocsEnabled {
		s.mountDocs()
	}
}

// APIRouter returns the subrouter under API_PREFIX.
func (s *Server) APIRouter() *mux.Router { return s.apiRouter }

// Mount gives a domain its own subrouter at {API_PREFIX}/{name}.
func (s *Server) Mount(name string) *mux.Router {
	sub := s.apiRouter.PathPrefix("/" + name).Subrouter()
	// Subrouters do not inherit the 405 handler; without it a method
	// mismatch inside sub surfaces as 404.
	sub.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)
	return sub
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", nil, s.logger)
}

// Handler returns the full middleware chain around the router.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Infow("HTTP server listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops background work.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		if err := s.limiter.Close(); err != nil {
			s.logger.Warnw("Failed to close rate limiter", "error", err)
		}
	}
	return s.httpServer.Shutdown(ctx)
}
