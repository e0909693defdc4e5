package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/estateway/gatekeeper/internal/auth"
	"github.com/estateway/gatekeeper/internal/background"
	"github.com/estateway/gatekeeper/internal/captcha"
	"github.com/estateway/gatekeeper/internal/config"
	"github.com/estateway/gatekeeper/internal/credentials"
	"github.com/estateway/gatekeeper/internal/database"
	"github.com/estateway/gatekeeper/internal/geo"
	"github.com/estateway/gatekeeper/internal/handlers"
	middlewareCustom "github.com/estateway/gatekeeper/internal/middleware"
	"github.com/estateway/gatekeeper/internal/repositories"
	"github.com/estateway/gatekeeper/internal/routes"
	"github.com/estateway/gatekeeper/internal/services"
	pkghttp "github.com/estateway/gatekeeper/pkg/http"
	pkglogger "github.com/estateway/gatekeeper/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	alertRepo := repositories.NewAlertRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Credential store adapter
	credentialVerifier := credentials.NewPostgresVerifier(db, logger)

	// CAPTCHA verifier: remote siteverify when configured, otherwise a
	// static dev verifier that accepts any non-empty token
	var captchaVerifier captcha.Verifier
	if cfg.Defense.CaptchaSecret != "" {
		captchaVerifier = captcha.NewSiteverifyVerifier(cfg.Defense.CaptchaVerifyURL, cfg.Defense.CaptchaSecret, logger)
	} else {
		logger.Warn("CAPTCHA_SECRET not set, using static captcha verifier")
		captchaVerifier = captcha.StaticVerifier{}
	}

	// Geolocation resolver
	var geoResolver geo.Resolver = geo.NoopResolver{}
	if cfg.Defense.GeoLookupURL != "" {
		geoResolver = geo.NewHTTPResolver(cfg.Defense.GeoLookupURL, logger)
	}

	// Alert notifier: optional email delivery via SES
	var alertNotifier services.AlertNotifier
	if cfg.Alerts.EmailEnabled {
		notifier, err := services.NewSESAlertNotifier(cfg.Alerts.AWSRegion, cfg.Alerts.FromAddress, credentialVerifier, logger)
		if err != nil {
			logger.Error("failed to initialize alert notifier", slog.Any("error", err))
			os.Exit(1)
		}
		alertNotifier = notifier
	}

	// Initialize services
	alertService := services.NewAlertService(alertRepo, alertNotifier, logger)

	lockoutService := services.NewLockoutService(lockoutRepo, logger, auditLogger)
	defer lockoutService.Stop()

	backoff := auth.NewBackoff(auth.BackoffConfig{
		Base: cfg.Defense.BackoffBase,
		Cap:  cfg.Defense.BackoffCap,
	})

	riskService := services.NewRiskService(
		attemptRepo,
		lockoutService,
		captchaVerifier,
		backoff,
		alertService,
		credentialVerifier,
		services.RiskConfig{
			FailureWindow:      cfg.Defense.FailureWindow,
			CaptchaThreshold:   cfg.Defense.CaptchaThreshold,
			LockoutThreshold:   cfg.Defense.LockoutThreshold,
			IPFailureThreshold: cfg.Defense.IPFailureThreshold,
			LockoutDuration:    cfg.Defense.LockoutDuration,
			EnforceBackoff:     cfg.Defense.EnforceBackoff,
			AttemptRetention:   cfg.Defense.AttemptRetention,
		},
		logger,
		auditLogger,
	)

	tokenCodec := auth.NewTokenCodec(cfg.Session.TokenSecret)

	sessionService := services.NewSessionService(
		sessionRepo,
		tokenCodec,
		alertService,
		services.SessionServiceConfig{
			TTL:           cfg.Session.TTL,
			TouchDebounce: cfg.Session.TouchDebounce,
		},
		logger,
		auditLogger,
	)
	defer sessionService.Stop()

	authService := services.NewAuthService(
		riskService,
		sessionService,
		alertService,
		credentialVerifier,
		geoResolver,
		attemptRepo,
		logger,
	)

	// Background reaper
	reaper := background.NewReaper(
		attemptRepo,
		lockoutRepo,
		sessionRepo,
		alertRepo,
		cfg.Defense.AttemptRetention,
		logger,
	)
	if err := reaper.Start(cfg.Defense.CleanupSchedule); err != nil {
		logger.Error("failed to start reaper", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, sessionService, credentialVerifier, ipConfig)
	sessionHandler := handlers.NewSessionHandler(sessionService, alertService)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, sessionHandler, tokenCodec, sessionService)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	reaper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
