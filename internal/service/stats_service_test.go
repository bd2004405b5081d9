package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
)

type stubCounts struct {
	rows  []models.CountByKey
	calls int
	err   error
}

func (s *stubCounts) CountByStatus(ctx context.Context) ([]models.CountByKey, error) {
	s.calls++
	return s.rows, s.err
}

func (s *stubCounts) CountByRole(ctx context.Context) ([]models.CountByKey, error) {
	s.calls++
	return s.rows, s.err
}

type stubScalar struct {
	value int
}

func (s stubScalar) SumCompleted(ctx context.Context) (int64, error) { return int64(s.value), nil }
func (s stubScalar) CountActive(ctx context.Context) (int, error)    { return s.value, nil }
func (s stubScalar) CountOpen(ctx context.Context) (int, error)      { return s.value, nil }

func TestStatsServiceSummaryCaches(t *testing.T) {
	users := &stubCounts{rows: []models.CountByKey{{Key: "STUDENT", Count: 10}, {Key: "ADMIN", Count: 1}}}
	cache := NewCacheService(newMemoryCacheRepo(), NewMetricsService(), time.Minute, zap.NewNop(), true)
	svc := NewStatsService(StatsSources{
		Users:         users,
		Courses:       &stubCounts{rows: []models.CountByKey{{Key: "PUBLISHED", Count: 3}}},
		Enrollments:   &stubCounts{},
		Payments:      stubScalar{value: 123456},
		Subscriptions: stubScalar{value: 4},
		Questions:     stubScalar{value: 2},
	}, cache, time.Minute, "usd", zap.NewNop())

	stats, hit, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 10, stats.UsersByRole["STUDENT"])
	assert.Equal(t, 3, stats.CoursesByStatus["PUBLISHED"])
	assert.NotNil(t, stats.EnrollmentsByStatus)
	assert.Equal(t, "1234.56", stats.Revenue.StringFixed(2))

	stats, hit, err = svc.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, users.calls)
	assert.Equal(t, 4, stats.ActiveSubscriptions)

	require.NoError(t, cache.Invalidate(context.Background(), StatsCacheKey))
	_, hit, err = svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, users.calls)
}

func TestStatsServiceSummaryError(t *testing.T) {
	svc := NewStatsService(StatsSources{Users: &stubCounts{err: errors.New("db down")}}, nil, time.Minute, "", nil)
	_, _, err := svc.Summary(context.Background())
	require.Error(t, err)
}
