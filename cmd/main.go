package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/zakzackr/knowme/config"
	"github.com/zakzackr/knowme/internal/api"
	"github.com/zakzackr/knowme/internal/authx"
	"github.com/zakzackr/knowme/internal/relay"
	"github.com/zakzackr/knowme/internal/session"
	v1 "github.com/zakzackr/knowme/internal/web/v1"
	"github.com/zakzackr/knowme/middleware"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	middleware.SetupLogging(cfg.Logging.Level)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Str("port", cfg.Service.Port).
		Msg("Service starting")

	// Initialize OpenTelemetry tracing
	var tp interface{ Shutdown(context.Context) error }
	if cfg.Tracing.Enabled {
		provider, err := middleware.InitTracing(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			tp = provider
			log.Info().
				Str("endpoint", cfg.Tracing.Endpoint).
				Float64("sample_rate", cfg.Tracing.SampleRate).
				Msg("Tracing initialized")
		}
	} else {
		log.Info().Msg("Tracing disabled (TRACING_ENABLED=false)")
	}

	// Initialize Pyroscope profiling
	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize profiling")
		} else {
			log.Info().
				Str("endpoint", cfg.Profiling.Endpoint).
				Msg("Profiling initialized")
			defer middleware.StopProfiling()
		}
	} else {
		log.Info().Msg("Profiling disabled (PROFILING_ENABLED=false)")
	}

	// Hosted session store client
	store, err := session.NewClient(session.ClientOptions{
		StoreURL:      cfg.Session.StoreURL,
		JWTPublicKey:  cfg.Session.JWTPublicKey,
		CookieName:    cfg.Session.CookieName,
		SecureCookies: !cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session store client")
	}
	log.Info().Str("store", cfg.Session.StoreURL).Msg("Session store client ready")

	// In-process auth facade for server-side UI embeddings. It shares the
	// store client with the gateway handlers, so their sign-in/sign-out
	// notifications drive its state.
	apiClient := api.NewClient(cfg.API.ServerBaseURL, nil)
	facade := authx.New(store, apiClient, session.NewMemoryCookies())
	facade.Mount(context.Background())
	defer facade.Close()

	sessionRelay := relay.New(store)
	guard := &relay.Guard{
		ProtectedPrefixes: cfg.Guard.ProtectedPrefixes,
		AuthOnlyPaths:     cfg.Guard.AuthOnlyPaths,
		LoginPath:         cfg.Guard.LoginPath,
		HomePath:          cfg.Guard.HomePath,
	}
	authHandler := v1.NewHandler(store)

	r := gin.New()
	r.Use(gin.Recovery())

	var isShuttingDown atomic.Bool

	// Tracing middleware
	if cfg.Tracing.Enabled {
		r.Use(middleware.TracingMiddleware(cfg.Service.Name))
	}

	// Logging middleware
	r.Use(middleware.LoggingMiddleware())

	// Prometheus middleware
	r.Use(middleware.PrometheusMiddleware())

	// Session relay + route guard on every navigation
	r.Use(relay.Middleware(sessionRelay, guard))

	// Facade provisioning for embeddings rendered below this point
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(authx.WithFacade(c.Request.Context(), facade))
		c.Next()
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness check
	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if isShuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth routes
	apiGroup := r.Group("/api")
	authHandler.RegisterRoutes(apiGroup)

	// Page shell: rendering lives in the frontend; navigations that pass
	// the guard answer with the resolved auth state.
	r.NoRoute(func(c *gin.Context) {
		user, _ := relay.UserFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"path":       c.Request.URL.Path,
			"user":       user,
			"apiBaseURL": cfg.API.BrowserBaseURL,
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Service.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Service.Port).Msg("Starting knowme gateway")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	// Fail readiness first and wait for propagation before stopping HTTP.
	isShuttingDown.Store(true)
	drainDelay := cfg.GetReadinessDrainDelayDuration()
	if drainDelay > 0 {
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay started")
		time.Sleep(drainDelay)
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay completed")
	}

	// Shutdown context with configurable timeout
	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		log.Info().Msg("HTTP server shutdown complete")
	}

	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Tracer shutdown error")
		} else {
			log.Info().Msg("Tracer shutdown complete")
		}
	}

	log.Info().Msg("Graceful shutdown complete")
}
