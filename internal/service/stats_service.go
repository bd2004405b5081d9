package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type groupedCounter interface {
	CountByStatus(ctx context.Context) ([]models.CountByKey, error)
}

type roleCounter interface {
	CountByRole(ctx context.Context) ([]models.CountByKey, error)
}

type revenueSummer interface {
	SumCompleted(ctx context.Context) (int64, error)
}

type activeCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type openCounter interface {
	CountOpen(ctx context.Context) (int, error)
}

// StatsSources groups the repositories behind the admin summary.
type StatsSources struct {
	Users         roleCounter
	Courses       groupedCounter
	Enrollments   groupedCounter
	Payments      revenueSummer
	Subscriptions activeCounter
	Questions     openCounter
}

// StatsService builds the cached admin dashboard summary.
type StatsService struct {
	src      StatsSources
	cache    *CacheService
	ttl      time.Duration
	currency string
	logger   *zap.Logger
	now      func() time.Time
}

// NewStatsService constructs the service.
func NewStatsService(src StatsSources, cache *CacheService, ttl time.Duration, currency string, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "usd"
	}
	return &StatsService{src: src, cache: cache, ttl: ttl, currency: currency, logger: logger, now: time.Now}
}

// Summary returns platform wide counts and revenue. The boolean reports a cache hit.
func (s *StatsService) Summary(ctx context.Context) (*models.AdminStats, bool, error) {
	var stats models.AdminStats
	hit, err := s.cache.Remember(ctx, StatsCacheKey, s.ttl, &stats, func(ctx context.Context) (interface{}, error) {
		return s.collect(ctx)
	})
	if err != nil {
		return nil, false, err
	}
	return &stats, hit, nil
}

func (s *StatsService) collect(ctx context.Context) (*models.AdminStats, error) {
	users, err := s.src.Users.CountByRole(ctx)
	if err != nil {
		return nil, statsErr(err, "users")
	}
	courses, err := s.src.Courses.CountByStatus(ctx)
	if err != nil {
		return nil, statsErr(err, "courses")
	}
	enrollments, err := s.src.Enrollments.CountByStatus(ctx)
	if err != nil {
		return nil, statsErr(err, "enrollments")
	}
	cents, err := s.src.Payments.SumCompleted(ctx)
	if err != nil {
		return nil, statsErr(err, "revenue")
	}
	subs, err := s.src.Subscriptions.CountActive(ctx)
	if err != nil {
		return nil, statsErr(err, "subscriptions")
	}
	open, err := s.src.Questions.CountOpen(ctx)
	if err != nil {
		return nil, statsErr(err, "questions")
	}

	return &models.AdminStats{
		UsersByRole:         toCountMap(users),
		CoursesByStatus:     toCountMap(courses),
		EnrollmentsByStatus: toCountMap(enrollments),
		ActiveSubscriptions: subs,
		OpenQuestions:       open,
		Revenue:             decimal.New(cents, -2),
		RevenueCurrency:     s.currency,
		GeneratedAt:         s.now().UTC(),
	}, nil
}

func toCountMap(rows []models.CountByKey) map[string]int {
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Count
	}
	return out
}

func statsErr(err error, what string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count "+what)
}
