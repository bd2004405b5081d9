package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	_ "github.com/noah-isme/learnhub-api/api/swagger"
	"github.com/noah-isme/learnhub-api/internal/router"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/cache"
	"github.com/noah-isme/learnhub-api/pkg/config"
	"github.com/noah-isme/learnhub-api/pkg/database"
	"github.com/noah-isme/learnhub-api/pkg/logger"
)

const (
	shutdownTimeout = 15 * time.Second
	cleanupTimeout  = 5 * time.Minute
)

// @title LearnHub API
// @version 1.0.0
// @description Course catalog, enrollment, assessment and payment backend.
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer rdb.Close()

	app, err := buildContainer(cfg, logr, db, rdb)
	if err != nil {
		logr.Sugar().Fatalw("failed to build application", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.queue.Start(ctx)
	defer app.queue.Stop()

	if cfg.Maintenance.CronEnabled {
		scheduler, err := scheduleCleanup(cfg.Maintenance.CronSchedule, app.maintenance, logr)
		if err != nil {
			logr.Sugar().Fatalw("invalid maintenance schedule", "schedule", cfg.Maintenance.CronSchedule, "error", err)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router.New(app.options, app.handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func scheduleCleanup(spec string, maintenance *service.MaintenanceService, logr *zap.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		report, err := maintenance.Cleanup(ctx)
		if err != nil {
			logr.Warn("scheduled cleanup finished with errors", zap.Error(err), zap.Any("report", report))
			return
		}
		logr.Info("scheduled cleanup finished", zap.Any("report", report))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
