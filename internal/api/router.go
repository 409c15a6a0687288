// Package api provides the HTTP API for the fleet service.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sortepremiada/fleet/internal/api/handler"
	"github.com/sortepremiada/fleet/internal/api/middleware"
	"github.com/sortepremiada/fleet/internal/auth"
	"github.com/sortepremiada/fleet/internal/terminal"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version          string
	BuildTime        string
	Logger           zerolog.Logger
	ServiceName      string
	Metrics          *middleware.Metrics
	TerminalService  *terminal.Service
	Tokens           *auth.TokenService
	OperatorVerifier *auth.OperatorVerifier
	DB               handler.Pinger
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "fleet-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.DB)
	activationHandler := handler.NewActivationHandler(cfg.TerminalService)
	heartbeatHandler := handler.NewHeartbeatHandler(cfg.TerminalService)
	terminalHandler := handler.NewTerminalHandler(cfg.TerminalService)

	// Auth middleware
	deviceAuth := middleware.DeviceAuth(cfg.Tokens)
	operatorAuth := middleware.OperatorAuth(cfg.OperatorVerifier)

	// Rate limits
	activationRateLimit := middleware.RateLimitByIP(middleware.ActivationRateLimit) // 10 req/min per IP
	heartbeatRateLimit := middleware.RateLimitByDevice(middleware.HeartbeatRateLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		// Code redemption (public) - strict rate limiting
		r.With(activationRateLimit).Post("/activations", activationHandler.Activate)

		// Heartbeat (device token) - per-device rate limiting
		r.With(deviceAuth, heartbeatRateLimit).Post("/heartbeat", heartbeatHandler.Heartbeat)

		// Legacy relay ingest (platform role)
		r.With(operatorAuth, middleware.RequirePlatformRole, standardRateLimit).
			Post("/ingest/heartbeats", heartbeatHandler.IngestHeartbeat)

		// Terminal registry (operator)
		r.Route("/terminals", func(r chi.Router) {
			r.Use(operatorAuth)
			r.Use(standardRateLimit)

			r.Post("/", terminalHandler.Create)
			r.Get("/", terminalHandler.List)
			r.Get("/map", terminalHandler.Map)

			// Platform-only maintenance
			r.With(middleware.RequirePlatformRole).Post("/force-unbind", terminalHandler.ForceUnbind)

			r.Route("/{terminalId}", func(r chi.Router) {
				r.Get("/", terminalHandler.Get)
				r.Post("/deactivate", terminalHandler.Deactivate)
				r.Post("/reactivate", terminalHandler.Reactivate)
				r.With(middleware.RequirePlatformRole).Delete("/", terminalHandler.Delete)
			})
		})
	})

	return r
}
