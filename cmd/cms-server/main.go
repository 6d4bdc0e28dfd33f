package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-cms-api/internal/app"
	"github.com/noah-isme/course-cms-api/pkg/cache"
	"github.com/noah-isme/course-cms-api/pkg/config"
	"github.com/noah-isme/course-cms-api/pkg/database"
	"github.com/noah-isme/course-cms-api/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.AutoMigrate {
		if err := database.EnsureSchema(ctx, db); err != nil {
			logr.Sugar().Fatalw("schema migration failed", "error", err)
		}
		logr.Info("schema ensured")
	}

	var redisClient *redis.Client
	if cfg.Outline.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable; outline cache disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	svcs, err := app.NewServices(cfg, db, redisClient, logr)
	if err != nil {
		logr.Sugar().Fatalw("service wiring failed", "error", err)
	}
	svcs.Janitor.Start(ctx)
	defer svcs.Janitor.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.NewRouter(cfg, svcs, db, logr),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "strict_order_scope", cfg.Ordering.StrictScope)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}
