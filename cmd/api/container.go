package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/handler"
	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/repository"
	"github.com/noah-isme/learnhub-api/internal/router"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/config"
	"github.com/noah-isme/learnhub-api/pkg/export"
	"github.com/noah-isme/learnhub-api/pkg/jobs"
	"github.com/noah-isme/learnhub-api/pkg/mailer"
	"github.com/noah-isme/learnhub-api/pkg/oauth"
	"github.com/noah-isme/learnhub-api/pkg/payments"
	"github.com/noah-isme/learnhub-api/pkg/storage"
)

const (
	queueBuffer     = 256
	queueRetryDelay = 2 * time.Second
)

// container owns every long-lived collaborator of the API process.
type container struct {
	queue       *jobs.Queue
	maintenance *service.MaintenanceService
	options     router.Options
	handlers    router.Handlers
}

func buildContainer(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, rdb *redis.Client) (*container, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	users := repository.NewUserRepository(db)
	credentials := repository.NewCredentialRepository(db)
	courses := repository.NewCourseRepository(db)
	modules := repository.NewModuleRepository(db)
	lessons := repository.NewLessonRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	assessments := repository.NewAssessmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	subscriptions := repository.NewSubscriptionRepository(db)
	questions := repository.NewQuestionRepository(db)
	messages := repository.NewMessageRepository(db)

	cache := service.NewCacheService(repository.NewCacheRepository(rdb, logr), metrics, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled)

	jobHandlers := map[string]jobs.Handler{}
	queue := jobs.NewQueue("background", jobs.Route(jobHandlers), jobs.QueueConfig{
		Workers:    cfg.Mail.Workers,
		BufferSize: queueBuffer,
		MaxRetries: cfg.Mail.Retries,
		RetryDelay: queueRetryDelay,
		Logger:     logr,
		Observer:   metrics.ObserveJob,
	})
	notifications := service.NewNotificationService(queue, mailer.New(cfg.Mail, logr), logr)

	authCfg := service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		MFAChallengeTTL:    cfg.MFA.ChallengeTTL,
		OAuthStateTTL:      cfg.OAuth.StateTTL,
		PasswordResetTTL:   cfg.JWT.PasswordResetTTL,
		FrontendURL:        cfg.FrontendURL,
	}
	tokens := service.NewTokenIssuer(users, authCfg, logr)
	authSvc := service.NewAuthService(users, credentials, tokens, notifications, validate, logr, authCfg)
	mfaSvc := service.NewMFAService(users, credentials, tokens, validate, logr, service.MFAConfig{Issuer: cfg.MFA.Issuer, SetupTTL: cfg.MFA.SetupTTL})
	oauthSvc := service.NewOAuthService(oauth.NewRegistry(cfg.OAuth), users, credentials, tokens, logr, cfg.FrontendURL)
	userSvc := service.NewUserService(users, validate, logr)

	courseSvc := service.NewCourseService(courses, modules, lessons, enrollments, users, cache, queue, validate, logr, service.CourseServiceConfig{
		DefaultCurrency: cfg.Stripe.Currency,
		CatalogTTL:      cfg.Catalog.CacheTTL,
	})

	files, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init certificate storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
	certificates := service.NewCertificateService(enrollments, courses, files, signer, export.NewCertificateRenderer(), logr, service.CertificateConfig{
		APIPrefix: cfg.APIPrefix,
		Issuer:    cfg.Mail.FromName,
	})
	enrollmentSvc := service.NewEnrollmentService(enrollments, courses, lessons, subscriptions, certificates, queue, notifications, validate, logr, service.EnrollmentConfig{
		SubscriptionsGrantAll: cfg.Stripe.SubscriptionsGrantAll,
		FrontendURL:           cfg.FrontendURL,
	})
	assessmentSvc := service.NewAssessmentService(assessments, courses, enrollments, lessons, validate, logr)

	paymentSvc := service.NewPaymentService(db, paymentRepo, subscriptions, enrollments, courses, payments.NewStripeGateway(cfg.Stripe), cache, validate, logr, service.PaymentConfig{
		Currency:            cfg.Stripe.Currency,
		SubscriptionPriceID: cfg.Stripe.SubscriptionPriceID,
		SuccessURL:          cfg.Stripe.SuccessURL,
		CancelURL:           cfg.Stripe.CancelURL,
		CheckoutSessionTTL:  cfg.Stripe.CheckoutSessionTTL,
	})
	qnaSvc := service.NewQnAService(questions, courses, enrollments, lessons, notifications, validate, logr, service.QnAConfig{FrontendURL: cfg.FrontendURL})
	messageSvc := service.NewMessageService(messages, users, validate, logr)
	statsSvc := service.NewStatsService(service.StatsSources{
		Users:         users,
		Courses:       courses,
		Enrollments:   enrollments,
		Payments:      paymentRepo,
		Subscriptions: subscriptions,
		Questions:     questions,
	}, cache, cfg.Catalog.StatsTTL, cfg.Stripe.Currency, logr)
	maintenance := service.NewMaintenanceService(users, credentials, paymentRepo, subscriptions, cache, service.MaintenanceConfig{
		RefreshTokenRetention: cfg.Maintenance.RefreshTokenRetention,
		WebhookRetention:      cfg.Maintenance.WebhookRetention,
		CheckoutTTL:           paymentSvc.CheckoutTTL(),
	}, logr)

	jobHandlers[service.JobTypeEmail] = notifications.HandleEmailJob
	jobHandlers[service.JobTypeCertificate] = certificates.HandleJob

	var limiter, authLimiter *middleware.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		authLimiter = middleware.NewIPRateLimiter(cfg.RateLimit.AuthPerSecond, cfg.RateLimit.AuthBurst)
	}

	return &container{
		queue:       queue,
		maintenance: maintenance,
		options: router.Options{
			APIPrefix:      cfg.APIPrefix,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			EnableDocs:     cfg.Env != config.EnvProduction,
			Logger:         logr,
			Metrics:        metrics,
			Tokens:         authSvc,
			Audit:          users,
			Limiter:        limiter,
			AuthLimiter:    authLimiter,
		},
		handlers: router.Handlers{
			Auth:        handler.NewAuthHandler(authSvc),
			MFA:         handler.NewMFAHandler(mfaSvc),
			OAuth:       handler.NewOAuthHandler(oauthSvc, cfg.Env == config.EnvProduction),
			Users:       handler.NewUserHandler(userSvc),
			Courses:     handler.NewCourseHandler(courseSvc),
			Assessments: handler.NewAssessmentHandler(assessmentSvc),
			Enrollments: handler.NewEnrollmentHandler(enrollmentSvc, certificates),
			Payments:    handler.NewPaymentHandler(paymentSvc),
			QnA:         handler.NewQnAHandler(qnaSvc),
			Messages:    handler.NewMessageHandler(messageSvc),
			Admin:       handler.NewAdminHandler(statsSvc, metrics),
			System: handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
				"postgres": db.PingContext,
				"redis": func(ctx context.Context) error {
					return rdb.Ping(ctx).Err()
				},
			}),
		},
	}, nil
}
