package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type refreshTokenPurger interface {
	PurgeRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)
	ClearExpiredMFASetups(ctx context.Context, now time.Time) (int64, error)
}

type passwordResetPurger interface {
	PurgePasswordResets(ctx context.Context, cutoff time.Time) (int64, error)
}

type paymentSweeper interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
	PruneWebhookEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

type subscriptionSweeper interface {
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// MaintenanceConfig sets retention windows for cleanup.
type MaintenanceConfig struct {
	RefreshTokenRetention time.Duration
	WebhookRetention      time.Duration
	CheckoutTTL           time.Duration
}

// CleanupReport counts rows touched by one cleanup run.
type CleanupReport struct {
	RefreshTokens        int64         `json:"refresh_tokens"`
	PasswordResets       int64         `json:"password_resets"`
	MFASetups            int64         `json:"mfa_setups"`
	ExpiredPayments      int64         `json:"expired_payments"`
	WebhookEvents        int64         `json:"webhook_events"`
	ExpiredSubscriptions int64         `json:"expired_subscriptions"`
	Duration             time.Duration `json:"duration"`
}

// MaintenanceService purges expired credentials and reconciles billing state.
type MaintenanceService struct {
	users         refreshTokenPurger
	resets        passwordResetPurger
	payments      paymentSweeper
	subscriptions subscriptionSweeper
	cache         *CacheService
	cfg           MaintenanceConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewMaintenanceService constructs the service.
func NewMaintenanceService(users refreshTokenPurger, resets passwordResetPurger, payments paymentSweeper, subscriptions subscriptionSweeper, cache *CacheService, cfg MaintenanceConfig, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RefreshTokenRetention <= 0 {
		cfg.RefreshTokenRetention = 30 * 24 * time.Hour
	}
	if cfg.WebhookRetention <= 0 {
		cfg.WebhookRetention = 30 * 24 * time.Hour
	}
	if cfg.CheckoutTTL <= 0 {
		cfg.CheckoutTTL = 24 * time.Hour
	}
	return &MaintenanceService{users: users, resets: resets, payments: payments, subscriptions: subscriptions, cache: cache, cfg: cfg, logger: logger, now: time.Now}
}

// Cleanup runs every step even when one fails; failures are joined into the returned error.
func (s *MaintenanceService) Cleanup(ctx context.Context) (CleanupReport, error) {
	start := s.now()
	now := start.UTC()
	var report CleanupReport
	var errs []error

	steps := []struct {
		name string
		into *int64
		run  func() (int64, error)
	}{
		{"refresh_tokens", &report.RefreshTokens, func() (int64, error) {
			return s.users.PurgeRefreshTokens(ctx, now.Add(-s.cfg.RefreshTokenRetention))
		}},
		{"password_resets", &report.PasswordResets, func() (int64, error) { return s.resets.PurgePasswordResets(ctx, now) }},
		{"mfa_setups", &report.MFASetups, func() (int64, error) { return s.users.ClearExpiredMFASetups(ctx, now) }},
		{"pending_payments", &report.ExpiredPayments, func() (int64, error) {
			return s.payments.ExpireStale(ctx, now.Add(-s.cfg.CheckoutTTL))
		}},
		{"webhook_events", &report.WebhookEvents, func() (int64, error) {
			return s.payments.PruneWebhookEvents(ctx, now.Add(-s.cfg.WebhookRetention))
		}},
		{"subscriptions", &report.ExpiredSubscriptions, func() (int64, error) { return s.subscriptions.ExpireLapsed(ctx, now) }},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := step.run()
		if err != nil {
			s.logger.Error("cleanup step failed", zap.String("step", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		*step.into = n
	}

	if report.ExpiredPayments > 0 || report.ExpiredSubscriptions > 0 {
		_ = s.cache.Invalidate(ctx, StatsCacheKey)
	}
	report.Duration = s.now().Sub(start)
	s.logger.Info("maintenance cleanup finished",
		zap.Int64("refresh_tokens", report.RefreshTokens),
		zap.Int64("password_resets", report.PasswordResets),
		zap.Int64("mfa_setups", report.MFASetups),
		zap.Int64("expired_payments", report.ExpiredPayments),
		zap.Int64("webhook_events", report.WebhookEvents),
		zap.Int64("expired_subscriptions", report.ExpiredSubscriptions),
		zap.Duration("duration", report.Duration),
	)
	return report, errors.Join(errs...)
}
