package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flextraff-service/internal/auth"
	"flextraff-service/internal/cache"
	"flextraff-service/internal/config"
	"flextraff-service/internal/cycle"
	"flextraff-service/internal/db"
	httphandler "flextraff-service/internal/http"
	"flextraff-service/internal/http/middleware"
	"flextraff-service/internal/logger"
	"flextraff-service/internal/metrics"
	"flextraff-service/internal/repository"
	"flextraff-service/internal/service"
	"flextraff-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment, cfg.LogLevel)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	trafficRepo := repository.NewTrafficRepository(database)

	// Redis is optional; without it drafts and the dashboard cache stay in process.
	appCache, err := cache.New(cfg.Redis.URL, appLogger)
	if err != nil {
		appLogger.Warn().Err(err).Msg("redis unavailable, using in-process cache")
	}
	defer appCache.Close()

	appMetrics := metrics.New(nil)

	// Initialize R2 client (optional, won't fail if not configured)
	var uploader service.ExportUploader
	r2Client, err := storage.NewR2ClientFromEnv()
	switch {
	case err == nil:
		uploader = r2Client
	case errors.Is(err, storage.ErrNotConfigured):
		appLogger.Warn().Msg("R2 storage not configured, cycle exports will not be uploaded")
	default:
		appLogger.Fatal().Err(err).Msg("failed to initialize R2 client")
	}

	cycleOpts := cycle.DefaultOptions()
	cycleOpts.MinCycleFloor = cfg.Traffic.MinCycleFloor

	trafficService := service.NewTrafficService(trafficRepo, appCache, appMetrics, uploader, service.Options{
		DetectionWindow: cfg.Traffic.DetectionWindow,
		YellowShare:     cfg.Traffic.LightYellowShare,
		DashboardTTL:    cfg.Cache.DashboardTTL,
		DraftTTL:        cfg.Cache.DraftTTL,
		Cycle:           cycleOpts,
	}, appLogger)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	tokenIssuer := auth.NewIssuer(cfg.Auth.AccessSecret, cfg.Auth.AccessTTL)
	credentials := auth.NewAdminCredentials(cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash)
	if cfg.Auth.AdminPasswordHash == "" {
		appLogger.Warn().Msg("ADMIN_PASSWORD_HASH not set, login is disabled")
	}

	handler := httphandler.NewHandler(trafficService, credentials, tokenIssuer, tokenParser, appLogger)
	authMiddleware := middleware.Auth(tokenParser)
	ready := func(ctx context.Context) error {
		if err := db.HealthCheck(ctx, database); err != nil {
			return err
		}
		return appCache.Ping(ctx)
	}
	router := httphandler.NewRouter(handler, authMiddleware, cfg, ready, appMetrics, appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting flextraff service")

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("server exited")
}
