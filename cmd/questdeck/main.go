package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/questdeck/questdeck/internal/app"
	"github.com/questdeck/questdeck/internal/audit"
	audithttp "github.com/questdeck/questdeck/internal/audit/http"
	"github.com/questdeck/questdeck/internal/observability"
	"github.com/questdeck/questdeck/internal/platform/cache"
	"github.com/questdeck/questdeck/internal/platform/db"
	"github.com/questdeck/questdeck/internal/rbac"
	"github.com/questdeck/questdeck/internal/roles"
	"github.com/questdeck/questdeck/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry, err := rbac.DefaultRegistry()
	if err != nil {
		logger.Error("build permission registry", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditExporter := audit.NewExporter()
	auditHandler := audithttp.NewHandler(logger, auditService, auditExporter)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)

	rbacRepo := rbac.NewRepository(dbpool)
	rbacCache := rbac.NewCache(redisClient, cfg.PermissionCacheTTL)
	rbacService := rbac.NewService(rbacRepo, registry, auditService, rbacCache, metrics, logger)
	resolver := rbac.NewResolver(rbacRepo, registry, usersService, auditService, rbacCache, metrics, logger)
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger}

	rolesHandler := roles.NewHandler(logger, rbacService, rbacMiddleware)
	usersHandler := users.NewHandler(logger, usersService, rbacService, resolver, rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, registry, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
		AuditHandler:       auditHandler,
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
