// Package server assembles the bridge's HTTP surface.
package server

import (
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go"

	"github.com/voicelink/voicelink/pkg/bridge/registry"
	"github.com/voicelink/voicelink/pkg/gateway/config"
	"github.com/voicelink/voicelink/pkg/gateway/handlers"
	"github.com/voicelink/voicelink/pkg/gateway/mw"
	"github.com/voicelink/voicelink/pkg/metrics"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	registry *registry.Registry
	metrics  *metrics.Metrics
	calls    handlers.CallCreator
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	var calls handlers.CallCreator
	if cfg.OutboundCallsEnabled() {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
		})
		calls = client.Api
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: registry.New(),
		metrics:  metrics.New("voicelink"),
		calls:    calls,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.NotFoundHandler{})
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Registry: s.registry})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/incoming-call", handlers.IncomingCallHandler{
		Config: s.cfg,
		Logger: s.logger,
	})
	s.mux.Handle("/media-stream", handlers.StreamHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Registry: s.registry,
		Metrics:  s.metrics,
	})
	s.mux.Handle("POST /outbound-call", handlers.OutboundCallHandler{
		Config: s.cfg,
		Logger: s.logger,
		Calls:  s.calls,
	})

	s.mux.Handle("GET /v1/calls", handlers.CallsHandler{Registry: s.registry})
	s.mux.Handle("GET /v1/calls/{id}/transcript", handlers.TranscriptHandler{Registry: s.registry})
}

// Registry exposes the session registry, mainly for tests.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
