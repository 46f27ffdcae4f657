package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/coinhook/internal/config"
	"github.com/shohag/coinhook/internal/metrics"
	"github.com/shohag/coinhook/internal/webhook"
)

type Server struct {
	cfg        config.ServerConfig
	webhook    config.WebhookConfig
	dispatcher *webhook.Dispatcher
	metrics    *metrics.Metrics
	router     *chi.Mux
	log        zerolog.Logger
	http       *http.Server
}

func NewServer(cfg *config.Config, dispatcher *webhook.Dispatcher, m *metrics.Metrics, log zerolog.Logger) *Server {
	wh := cfg.Webhook
	if wh.Path == "" {
		wh.Path = "/webhook/coinbase"
	}
	s := &Server{
		cfg:        cfg.Server,
		webhook:    wh,
		dispatcher: dispatcher,
		metrics:    m,
		log:        log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.log))
	r.Use(MetricsMiddleware(s.metrics))
	r.Use(middleware.Recoverer)

	healthHandler := NewHealthHandler(s.cfg.ServiceName)
	webhookHandler := NewWebhookHandler(s.webhook, s.dispatcher, s.metrics, s.log)

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Post(s.webhook.Path, webhookHandler.Receive)

	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	addr := s.Addr()
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().
		Str("addr", addr).
		Str("webhook_path", s.webhook.Path).
		Bool("verification_enabled", s.webhook.VerificationEnabled).
		Strs("event_types", s.dispatcher.EventTypes()).
		Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
