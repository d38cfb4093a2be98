// Package api serves the optional status and control HTTP endpoints,
// letting other tools on the machine observe and drive the dictation
// control remotely.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ashpool/dictate/internal/config"
	"github.com/ashpool/dictate/internal/control"
	"github.com/ashpool/dictate/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, ctrl *control.Controller, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := NewRouter(cfg, ctrl, version, startTime, log)

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: log,
	}
}

// NewRouter builds the route tree; split out so tests can exercise it
// without binding a listener.
func NewRouter(cfg *config.Config, ctrl *control.Controller, version string, startTime time.Time, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	// Health and metrics endpoints — no auth
	health := NewHealthHandler(ctrl, version, startTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	state := &stateHandler{ctrl: ctrl}
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Get("/api/v1/state", state.getState)
		r.Post("/api/v1/toggle", state.postToggle)
		r.Post("/api/v1/reset", state.postReset)
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
