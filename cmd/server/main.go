package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/cookies"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/httpx"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/modules"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/modules/profiles"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/modules/rbacadmin"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/oauth"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/routes"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/store"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	stdout := logging.Setup(cfg.LogLevel)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Database
	db, err := database.Open(cfg.DSN())
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected", "host", cfg.DBHost, "name", cfg.DBName)

	if err := database.MigrateCore(db); err != nil {
		slog.Error("core migration failed", "error", err)
		os.Exit(1)
	}

	// ERROR+ records are also batched into system_logs
	dbLogHandler := logging.NewDBHandler(logging.GormWriter{DB: db}, logging.DBHandlerOptions{})
	slog.SetDefault(slog.New(logging.NewMultiHandler(stdout, dbLogHandler)))

	// Redis is optional: without it there are no server-side sessions and
	// revoked tokens live in postgres.
	rdb, err := store.NewClient(cfg)
	if err != nil {
		slog.Warn("redis unavailable, falling back to postgres revocation", "error", err)
		rdb = nil
	}

	revocations := repository.NewTokenRevocations(db)
	var (
		blacklist     tokens.Blacklist = revocations
		sessions      services.SessionStore
		sessionLookup middleware.SessionLookup
	)
	if rdb != nil {
		blacklist = store.NewTokenBlacklist(rdb)
		ss := store.NewSessionStore(rdb, cfg.SessionTTL)
		sessions, sessionLookup = ss, ss
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	}

	// Retention
	cleanupDone := make(chan struct{})
	logging.StartCleanup(24*time.Hour, cleanupDone,
		logging.PurgeSystemLogs(db),
		logging.CleanupTask{Name: "revoked_tokens", Run: revocations.PurgeExpired},
	)

	// Tokens and cookies
	tokenManager, err := tokens.NewManager(cfg.JWTSecret, tokens.Lifetimes{
		Access:       cfg.JWTAccessExpiry,
		Refresh:      cfg.JWTRefreshExpiry,
		Reset:        cfg.JWTResetExpiry,
		Verification: cfg.JWTVerificationExpiry,
	})
	if err != nil {
		slog.Error("invalid jwt configuration", "error", err)
		os.Exit(1)
	}
	cookieManager := cookies.NewManager(cookies.Config{
		Production: cfg.IsProduction(),
		Domain:     cfg.CookieDomain,
		AccessTTL:  cfg.JWTAccessExpiry,
		RefreshTTL: cfg.JWTRefreshExpiry,
		SessionTTL: cfg.SessionTTL,
	})

	// Services
	users := repository.NewUserRepository(db)
	rbacService := services.NewRBACService(repository.NewRBACRepository(db))
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if err := rbacService.SeedDefaults(seedCtx); err != nil {
		cancelSeed()
		slog.Error("rbac seed failed", "error", err)
		os.Exit(1)
	}
	cancelSeed()

	authService := services.NewAuthService(services.AuthDeps{
		Users:       users,
		RBAC:        rbacService,
		Tokens:      tokenManager,
		Sessions:    sessions,
		Blacklist:   blacklist,
		Notifier:    services.LogNotifier{RevealTokens: !cfg.IsProduction()},
		AdminEmails: cfg.AdminEmailList(),
	})

	auth := middleware.NewAuth(middleware.AuthConfig{
		Tokens:           tokenManager,
		Cookies:          cookieManager,
		Sources:          cfg.TokenSources,
		RefreshThreshold: cfg.TokenRefreshThreshold,
		Sessions:         sessionLookup,
		Blacklist:        blacklist,
		Refresh:          authService,
	})

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: httpx.ErrorHandler(cfg.IsProduction()),
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.Timeout(cfg.RequestTimeout))
	app.Use(metrics.Middleware())

	api := routes.API(app, routes.DefaultLimits)

	// Modules
	report := modules.Bootstrap(api, modules.Deps{
		DB:       db,
		Settings: modules.NewSettings(cfg),
		Tokens:   tokenManager,
		Cookies:  cookieManager,
		Auth:     auth,
		RBAC:     rbacService,
		Users:    users,
	}, []modules.Module{
		rbacadmin.New(),
		profiles.New(),
	})

	authHandler := handlers.NewAuthHandler(authService, cookieManager, auth, oauth.NewRegistry(cfg), cfg.OAuthSuccessRedirect)
	healthHandler := handlers.NewHealthHandler(db, rdb, report)
	routes.Setup(api, auth, routes.DefaultLimits, authHandler, healthHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "modules", report.Mounted)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(cleanupDone)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	dbLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if err := database.Close(db); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}
