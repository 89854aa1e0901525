// Package httpapi wires the gamification engine's storage, bus, rule
// engine, and domain modules onto a single chi router: the minimal
// event/stats/award surface spec.md names, plus health, metrics, and a
// per-connection WebSocket event feed.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/config"
	"github.com/R3E-Network/gamification-engine/internal/modules"
	"github.com/R3E-Network/gamification-engine/internal/modules/points"
	"github.com/R3E-Network/gamification-engine/internal/platform/logging"
	"github.com/R3E-Network/gamification-engine/internal/platform/metrics"
	"github.com/R3E-Network/gamification-engine/internal/platform/middleware"
	"github.com/R3E-Network/gamification-engine/internal/platform/security"
	"github.com/R3E-Network/gamification-engine/internal/ratelimit"
	"github.com/R3E-Network/gamification-engine/internal/storage"
	"github.com/R3E-Network/gamification-engine/internal/webhook"
)

const eventReplayWindow = 5 * time.Minute

// Deps bundles every collaborator the HTTP surface reads from or writes
// to. Nothing here is owned by the service: the orchestrator builds and
// tears down each of these independently.
type Deps struct {
	Config  *config.Config
	Bus     *bus.Bus
	Storage storage.Interface
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Limiter *ratelimit.Limiter
	Webhook *webhook.Dispatcher

	// Modules is keyed by Name() (points, levels, badges, streaks,
	// quests, leaderboard) and drives the generic stats/reset routes.
	Modules map[string]modules.Module
	// Points is Modules["points"] narrowed to its concrete type so the
	// award route can reach its points-specific Award method.
	Points *points.Module

	// Ready is flipped by the orchestrator once startup has completed;
	// nil is treated as "always ready" (useful in tests).
	Ready *bool
}

// Service owns the HTTP listener lifecycle: chi router construction,
// binding, and graceful shutdown.
type Service struct {
	deps    Deps
	router  chi.Router
	logger  *logging.Logger
	server  *http.Server
	healthC *middleware.HealthChecker
	replay  *security.ReplayProtection
}

// New builds the router from deps. The returned Service has no open
// socket until Start is called.
func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewFromEnv("httpapi")
	}
	s := &Service{deps: deps, logger: logger}
	s.replay = security.NewReplayProtection(eventReplayWindow, logger)
	s.healthC = middleware.NewHealthChecker("gamification-engine")
	s.registerHealthChecks()
	s.router = s.buildRouter()
	return s
}

// Handler exposes the constructed router, primarily for tests that
// drive it with httptest.Server without opening a real socket.
func (s *Service) Handler() http.Handler { return s.router }

// Start binds addr and begins serving in the background. It returns
// once the listener is bound so callers can observe bind failures
// (e.g. a port already in use) synchronously.
func (s *Service) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("http server exited")
		}
	}()
	return nil
}

// Stop gracefully drains in-flight requests, including open WebSocket
// connections, within ctx's deadline.
func (s *Service) Stop(ctx context.Context) error {
	closeAllConnections()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Service) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(s.logger).Handler)
	if s.deps.Metrics != nil {
		r.Use(middleware.MetricsMiddleware("gamification-engine", s.deps.Metrics))
	}
	r.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: []string{"*"}}).Handler)
	r.Use(middleware.LoggingMiddleware(s.logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)

	bodyLimit := s.deps.Config.BodySizeLimitBytes
	r.Use(middleware.NewBodyLimitMiddleware(bodyLimit).Handler)

	mount := s.deps.Config.HTTPMount
	if mount == "" {
		mount = "/gamification"
	}

	r.Route(mount, func(r chi.Router) {
		r.Get("/health", s.healthC.Handler())
		r.Get("/health/live", middleware.LivenessHandler())
		r.Get("/health/ready", middleware.ReadinessHandler(s.deps.Ready))
		r.Get("/health/detailed", s.handleDetailedHealth)
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Use(s.requireAPIKey)

			r.Post("/events", s.handlePostEvent)
			r.Get("/stats/{userId}", s.handleGetStats)
			r.Get("/{module}/{userId}", s.handleGetModuleStats)
			r.Post("/{module}/award", s.handlePostAward)
			r.Post("/admin/reset/{userId}", s.handleAdminReset)
			r.Post("/admin/award", s.handleAdminAward)
		})
	})

	return r
}

func (s *Service) registerHealthChecks() {
	if s.deps.Storage != nil {
		s.healthC.RegisterCheck("storage", func() error {
			if !s.deps.Storage.Connected() {
				return errNotConnected
			}
			return nil
		})
	}
	if s.deps.Webhook != nil {
		s.healthC.RegisterCheck("webhook_queue", func() error {
			if s.deps.Webhook.Degraded() {
				return errWebhookDegraded
			}
			return nil
		})
	}
}

func (s *Service) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	stats := middleware.RuntimeStats()
	stats["uptime_modules"] = s.moduleUptimes()
	writeJSON(w, http.StatusOK, stats)
}

func (s *Service) moduleUptimes() map[string]string {
	out := make(map[string]string, len(s.deps.Modules))
	for name, m := range s.deps.Modules {
		if b, ok := m.(interface{ Uptime() time.Duration }); ok {
			out[name] = b.Uptime().String()
		}
	}
	return out
}
