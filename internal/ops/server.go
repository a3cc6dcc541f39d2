// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package ops serves the operational HTTP surface: liveness, readiness
// and Prometheus metrics. The subsystem has no user-facing API.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vardaops/logship/internal/logging"
)

// Pinger reports whether a backing resource is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config holds the ops server settings.
type Config struct {
	Addr string `koanf:"addr"`
}

// Server is the operational HTTP server. It implements suture.Service.
type Server struct {
	cfg     Config
	pingers map[string]Pinger
}

// NewServer creates an ops server. pingers maps a resource name to its
// readiness check; all must pass for /readyz to return 200.
func NewServer(cfg Config, pingers map[string]Pinger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
	return &Server{cfg: cfg, pingers: pingers}
}

// String implements suture's service naming.
func (s *Server) String() string {
	return "ops-server"
}

// Serve runs the HTTP server until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	log := logging.With().Str("component", "ops").Logger()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", s.cfg.Addr).Msg("Ops server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for name, p := range s.pingers {
		if err := p.Ping(r.Context()); err != nil {
			http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
