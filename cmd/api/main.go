// Package main provides the entrypoint for the fleet API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sortepremiada/fleet/internal/api"
	"github.com/sortepremiada/fleet/internal/api/middleware"
	"github.com/sortepremiada/fleet/internal/auth"
	"github.com/sortepremiada/fleet/internal/database"
	"github.com/sortepremiada/fleet/internal/events"
	"github.com/sortepremiada/fleet/internal/telemetry"
	"github.com/sortepremiada/fleet/internal/tenant"
	"github.com/sortepremiada/fleet/internal/terminal"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "fleet-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting fleet API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize HTTP metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	fleetMetrics, err := terminal.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize fleet metrics")
		os.Exit(1)
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	store := terminal.NewPostgresStore(pool)

	// Device token service (get signing key from environment)
	signingKey := os.Getenv("DEVICE_TOKEN_SIGNING_KEY")
	if signingKey == "" {
		signingKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default device token signing key - not secure for production")
	}

	tokens := auth.NewTokenService(auth.TokenConfig{
		SigningKey: signingKey,
		Issuer:     "https://api.sortepremiada.com.br",
		Audience:   "fleet-api",
		Devices:    store,
		Logger:     log,
	})

	// Operator tokens are minted by the identity service; this service only
	// verifies them, against the shared key.
	operatorKey := os.Getenv("OPERATOR_TOKEN_SIGNING_KEY")
	if operatorKey == "" {
		operatorKey = signingKey
		log.Warn().Msg("OPERATOR_TOKEN_SIGNING_KEY not set - falling back to device token key")
	}
	operatorIssuer := os.Getenv("OPERATOR_TOKEN_ISSUER")
	if operatorIssuer == "" {
		operatorIssuer = "https://id.sortepremiada.com.br"
	}
	operatorVerifier := auth.NewOperatorVerifier(operatorKey, operatorIssuer, "fleet-api")

	// Tenant directory (platform service, with a local fallback for dev)
	var tenants tenant.Directory
	if directoryURL := os.Getenv("TENANT_DIRECTORY_URL"); directoryURL != "" {
		tenants = tenant.NewHTTPDirectory(tenant.HTTPDirectoryConfig{
			BaseURL: directoryURL,
			APIKey:  os.Getenv("TENANT_DIRECTORY_API_KEY"),
			Logger:  log,
		})
		log.Info().Str("url", directoryURL).Msg("tenant directory initialized")
	} else {
		tenants = tenant.NewMemoryDirectory(&tenant.Tenant{
			ID:         "tnt_local",
			Name:       "Local Development",
			CodePrefix: "XX",
		})
		log.Warn().Msg("TENANT_DIRECTORY_URL not set - using local development tenant")
	}

	// Lifecycle event publisher (may be a no-op if not configured)
	var publisher events.Publisher = events.Nop{}
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		topic := os.Getenv("PUBSUB_TOPIC")
		if topic == "" {
			topic = "fleet-events"
		}
		pubsubPublisher, err := events.NewPubSubPublisher(ctx, events.PubSubConfig{
			ProjectID: projectID,
			Topic:     topic,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize pubsub publisher")
		}
		defer func() {
			if closeErr := pubsubPublisher.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub publisher")
			}
		}()
		publisher = pubsubPublisher
		log.Info().Str("topic", topic).Msg("pubsub publisher initialized")
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - lifecycle events disabled")
	}

	// Terminal service
	terminalService := terminal.NewService(terminal.ServiceConfig{
		Store:               store,
		Tenants:             tenants,
		Tokens:              tokens,
		Events:              publisher,
		Logger:              log,
		Metrics:             fleetMetrics,
		AllowUnknownDevices: os.Getenv("HEARTBEAT_ALLOW_UNKNOWN") == "true",
	})
	log.Info().Msg("terminal service initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:          Version,
		BuildTime:        BuildTime,
		Logger:           log,
		ServiceName:      serviceName,
		Metrics:          httpMetrics,
		TerminalService:  terminalService,
		Tokens:           tokens,
		OperatorVerifier: operatorVerifier,
		DB:               pool,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
