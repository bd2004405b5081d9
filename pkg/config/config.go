package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	FrontendURL string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	RateLimit    RateLimitConfig
	MFA          MFAConfig
	OAuth        OAuthConfig
	Stripe       StripeConfig
	Mail         MailConfig
	Certificates CertificatesConfig
	Catalog      CatalogConfig
	Maintenance  MaintenanceConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	PasswordResetTTL  time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig tunes the per-client request limiter.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
	AuthPerSecond     float64
	AuthBurst         int
}

// MFAConfig configures TOTP enrolment.
type MFAConfig struct {
	Issuer       string
	ChallengeTTL time.Duration
	SetupTTL     time.Duration
}

// OAuthProviderConfig holds the credentials for a single identity provider.
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether the provider has credentials.
func (p OAuthProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// OAuthConfig groups supported SSO providers.
type OAuthConfig struct {
	StateTTL time.Duration
	Google   OAuthProviderConfig
	GitHub   OAuthProviderConfig
}

// StripeConfig configures checkout and webhooks.
type StripeConfig struct {
	SecretKey             string
	WebhookSecret         string
	SubscriptionPriceID   string
	Currency              string
	SuccessURL            string
	CancelURL             string
	CheckoutSessionTTL    time.Duration
	SubscriptionsGrantAll bool
}

// MailConfig configures outbound email.
type MailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	Workers        int
	Retries        int
}

// CertificatesConfig controls completion certificate storage.
type CertificatesConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// CatalogConfig tunes course catalog caching.
type CatalogConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	StatsTTL     time.Duration
}

// MaintenanceConfig governs scheduled cleanup.
type MaintenanceConfig struct {
	CronEnabled           bool
	CronSchedule          string
	RefreshTokenRetention time.Duration
	WebhookRetention      time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.FrontendURL = strings.TrimRight(v.GetString("FRONTEND_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 15*time.Minute),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		PasswordResetTTL:  parseDuration(v.GetString("PASSWORD_RESET_TTL"), time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:           v.GetBool("RATE_LIMIT_ENABLED"),
		RequestsPerSecond: v.GetFloat64("RATE_LIMIT_RPS"),
		Burst:             v.GetInt("RATE_LIMIT_BURST"),
		AuthPerSecond:     v.GetFloat64("RATE_LIMIT_AUTH_RPS"),
		AuthBurst:         v.GetInt("RATE_LIMIT_AUTH_BURST"),
	}

	cfg.MFA = MFAConfig{
		Issuer:       v.GetString("MFA_ISSUER"),
		ChallengeTTL: parseDuration(v.GetString("MFA_CHALLENGE_TTL"), 5*time.Minute),
		SetupTTL:     parseDuration(v.GetString("MFA_SETUP_TTL"), 10*time.Minute),
	}

	cfg.OAuth = OAuthConfig{
		StateTTL: parseDuration(v.GetString("OAUTH_STATE_TTL"), 10*time.Minute),
		Google: OAuthProviderConfig{
			ClientID:     v.GetString("OAUTH_GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("OAUTH_GOOGLE_CLIENT_SECRET"),
			RedirectURL:  v.GetString("OAUTH_GOOGLE_REDIRECT_URL"),
		},
		GitHub: OAuthProviderConfig{
			ClientID:     v.GetString("OAUTH_GITHUB_CLIENT_ID"),
			ClientSecret: v.GetString("OAUTH_GITHUB_CLIENT_SECRET"),
			RedirectURL:  v.GetString("OAUTH_GITHUB_REDIRECT_URL"),
		},
	}

	cfg.Stripe = StripeConfig{
		SecretKey:             v.GetString("STRIPE_SECRET_KEY"),
		WebhookSecret:         v.GetString("STRIPE_WEBHOOK_SECRET"),
		SubscriptionPriceID:   v.GetString("STRIPE_SUBSCRIPTION_PRICE_ID"),
		Currency:              strings.ToLower(v.GetString("STRIPE_CURRENCY")),
		SuccessURL:            v.GetString("STRIPE_SUCCESS_URL"),
		CancelURL:             v.GetString("STRIPE_CANCEL_URL"),
		CheckoutSessionTTL:    parseDuration(v.GetString("STRIPE_CHECKOUT_TTL"), 24*time.Hour),
		SubscriptionsGrantAll: v.GetBool("SUBSCRIPTIONS_GRANT_ALL_COURSES"),
	}

	cfg.Mail = MailConfig{
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromEmail:      v.GetString("MAIL_FROM_EMAIL"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		Workers:        v.GetInt("MAIL_WORKERS"),
		Retries:        v.GetInt("MAIL_RETRIES"),
	}

	cfg.Certificates = CertificatesConfig{
		StorageDir:      v.GetString("CERTIFICATES_STORAGE_DIR"),
		SignedURLSecret: v.GetString("CERTIFICATES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("CERTIFICATES_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Catalog = CatalogConfig{
		CacheEnabled: v.GetBool("CATALOG_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("CATALOG_CACHE_TTL"), 5*time.Minute),
		StatsTTL:     parseDuration(v.GetString("ADMIN_STATS_CACHE_TTL"), time.Minute),
	}

	cfg.Maintenance = MaintenanceConfig{
		CronEnabled:           v.GetBool("MAINTENANCE_CRON_ENABLED"),
		CronSchedule:          v.GetString("MAINTENANCE_CRON"),
		RefreshTokenRetention: parseDuration(v.GetString("REFRESH_TOKEN_RETENTION"), 30*24*time.Hour),
		WebhookRetention:      parseDuration(v.GetString("WEBHOOK_EVENT_RETENTION"), 30*24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "learnhub")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "learnhub-api")
	v.SetDefault("JWT_EXPIRATION", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("PASSWORD_RESET_TTL", "1h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_AUTH_RPS", 1)
	v.SetDefault("RATE_LIMIT_AUTH_BURST", 5)

	v.SetDefault("MFA_ISSUER", "LearnHub")
	v.SetDefault("MFA_CHALLENGE_TTL", "5m")
	v.SetDefault("MFA_SETUP_TTL", "10m")

	v.SetDefault("OAUTH_STATE_TTL", "10m")
	v.SetDefault("OAUTH_GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/oauth/google/callback")
	v.SetDefault("OAUTH_GITHUB_REDIRECT_URL", "http://localhost:8080/api/auth/oauth/github/callback")

	v.SetDefault("STRIPE_CURRENCY", "usd")
	v.SetDefault("STRIPE_SUCCESS_URL", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("STRIPE_CANCEL_URL", "http://localhost:3000/checkout/cancelled")
	v.SetDefault("STRIPE_CHECKOUT_TTL", "24h")
	v.SetDefault("SUBSCRIPTIONS_GRANT_ALL_COURSES", true)

	v.SetDefault("MAIL_FROM_EMAIL", "no-reply@learnhub.local")
	v.SetDefault("MAIL_FROM_NAME", "LearnHub")
	v.SetDefault("MAIL_WORKERS", 2)
	v.SetDefault("MAIL_RETRIES", 3)

	v.SetDefault("CERTIFICATES_STORAGE_DIR", "./certificates")
	v.SetDefault("CERTIFICATES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("CERTIFICATES_SIGNED_URL_TTL", "30m")

	v.SetDefault("CATALOG_CACHE_ENABLED", true)
	v.SetDefault("CATALOG_CACHE_TTL", "5m")
	v.SetDefault("ADMIN_STATS_CACHE_TTL", "1m")

	v.SetDefault("MAINTENANCE_CRON_ENABLED", false)
	v.SetDefault("MAINTENANCE_CRON", "0 3 * * *")
	v.SetDefault("REFRESH_TOKEN_RETENTION", "720h")
	v.SetDefault("WEBHOOK_EVENT_RETENTION", "720h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
