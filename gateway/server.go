// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"toolgate/platform/governor"
	"toolgate/platform/ledger"
	"toolgate/platform/relay"
	"toolgate/platform/shared/logger"
)

// StorePinger reports reachability of the ledger store for health checks
type StorePinger interface {
	Ping(ctx context.Context) error
}

// Server is the assembled gateway: routes, auth, rate limiting, and the
// governor and ledger behind them.
type Server struct {
	cfg      *Config
	auth     *Authenticator
	limiter  RateLimiter
	gov      *governor.Governor
	registry *governor.Registry
	ledger   relay.UsageSink
	pricing  *ledger.PricingConfig
	pinger   StorePinger
	log      *logger.Logger
	router   *mux.Router
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithStorePinger wires a ledger store health probe into /health
func WithStorePinger(p StorePinger) ServerOption {
	return func(s *Server) { s.pinger = p }
}

// WithRateLimiter overrides the default in-memory limiter
func WithRateLimiter(l RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

// NewServer assembles the gateway
func NewServer(cfg *Config, registry *governor.Registry, gov *governor.Governor, sink relay.UsageSink, pricing *ledger.PricingConfig, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		auth:     NewAuthenticator(cfg.Auth.JWTSecret),
		limiter:  NewMemoryRateLimiter(),
		gov:      gov,
		registry: registry,
		ledger:   sink,
		pricing:  pricing,
		log:      logger.New("gateway"),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/runs", s.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/tools", s.handleTools).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router = r

	return s
}

// Handler returns the full middleware-wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	})
	return c.Handler(s.router)
}

// ListenAndServe runs the gateway until ctx is cancelled, then shuts down
// gracefully within the configured grace window.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("", "", "gateway listening", map[string]interface{}{
			"addr": s.cfg.Server.ListenAddr,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace())
		defer cancel()
		s.log.Info("", "", "gateway shutting down", nil)
		return srv.Shutdown(shutdownCtx)
	}
}
