package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/policies"
	"github.com/noah-isme/learnhub-api/internal/repository"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/cache"
	"github.com/noah-isme/learnhub-api/pkg/config"
	"github.com/noah-isme/learnhub-api/pkg/database"
	"github.com/noah-isme/learnhub-api/pkg/logger"
	"github.com/noah-isme/learnhub-api/pkg/payments"
)

const usage = `usage: maintenance <command> [flags]

commands:
  check-connections   verify database, redis and stripe credentials
  cleanup             purge expired tokens, checkouts and webhook events
  deploy-policies     apply changed row level security policies (-dry-run to preview)`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	timeout := fs.Duration("timeout", 2*time.Minute, "overall command timeout")
	dryRun := fs.Bool("dry-run", false, "report pending policies without applying them")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch command {
	case "check-connections":
		err = checkConnections(ctx, cfg, logr)
	case "cleanup":
		err = withStores(cfg, func(db *sqlx.DB, rdb *redis.Client) error {
			return runCleanup(ctx, cfg, logr, db, rdb)
		})
	case "deploy-policies":
		err = withStores(cfg, func(db *sqlx.DB, _ *redis.Client) error {
			return deployPolicies(ctx, logr, db, *dryRun)
		})
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logr.Error("maintenance command failed", zap.String("command", command), zap.Error(err))
		logr.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func withStores(cfg *config.Config, fn func(*sqlx.DB, *redis.Client) error) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	return fn(db, rdb)
}

func checkConnections(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	failed := 0
	report := func(name string, err error) {
		if err != nil {
			failed++
			logr.Error("connection check failed", zap.String("target", name), zap.Error(err))
			return
		}
		logr.Info("connection ok", zap.String("target", name))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err == nil {
		err = db.PingContext(ctx)
		db.Close()
	}
	report("postgres", err)

	rdb, err := cache.NewRedis(cfg.Redis)
	if err == nil {
		err = rdb.Ping(ctx).Err()
		rdb.Close()
	}
	report("redis", err)

	if cfg.Stripe.SecretKey != "" {
		report("stripe", payments.NewStripeGateway(cfg.Stripe).Verify(ctx))
	} else {
		logr.Info("stripe check skipped", zap.String("reason", "no secret key configured"))
	}

	if failed > 0 {
		return fmt.Errorf("%d connection checks failed", failed)
	}
	return nil
}

func runCleanup(ctx context.Context, cfg *config.Config, logr *zap.Logger, db *sqlx.DB, rdb *redis.Client) error {
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(rdb, logr), metrics, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled)
	maintenance := service.NewMaintenanceService(
		repository.NewUserRepository(db),
		repository.NewCredentialRepository(db),
		repository.NewPaymentRepository(db),
		repository.NewSubscriptionRepository(db),
		cacheSvc,
		service.MaintenanceConfig{
			RefreshTokenRetention: cfg.Maintenance.RefreshTokenRetention,
			WebhookRetention:      cfg.Maintenance.WebhookRetention,
			CheckoutTTL:           service.ClampCheckoutTTL(cfg.Stripe.CheckoutSessionTTL),
		},
		logr,
	)
	report, err := maintenance.Cleanup(ctx)
	printJSON(report)
	return err
}

func deployPolicies(ctx context.Context, logr *zap.Logger, db *sqlx.DB, dryRun bool) error {
	loaded, err := service.LoadPolicies(policies.Files)
	if err != nil {
		return err
	}
	results, err := service.NewPolicyService(repository.NewPolicyRepository(db), loaded, logr).Deploy(ctx, dryRun)
	if err != nil {
		return err
	}
	printJSON(results)
	return nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
