package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemMetrics represents system level figures captured from instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	JobsProcessed            uint64    `json:"jobs_processed"`
	JobsFailed               uint64    `json:"jobs_failed"`
	Goroutines               int       `json:"goroutines"`
	UptimeSeconds            int64     `json:"uptime_seconds"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// CountByKey is a grouped count row.
type CountByKey struct {
	Key   string `db:"key" json:"key"`
	Count int    `db:"count" json:"count"`
}

// AdminStats is the dashboard summary.
type AdminStats struct {
	UsersByRole         map[string]int  `json:"users_by_role"`
	CoursesByStatus     map[string]int  `json:"courses_by_status"`
	EnrollmentsByStatus map[string]int  `json:"enrollments_by_status"`
	ActiveSubscriptions int             `json:"active_subscriptions"`
	OpenQuestions       int             `json:"open_questions"`
	Revenue             decimal.Decimal `json:"revenue"`
	RevenueCurrency     string          `json:"revenue_currency"`
	GeneratedAt         time.Time       `json:"generated_at"`
}
