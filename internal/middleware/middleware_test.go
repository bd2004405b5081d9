package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	switch token {
	case "admin":
		return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, nil
	case "student":
		return &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func performRequest(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndRBAC(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", JWT(stubValidator{}), RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/users/:id", JWT(stubValidator{}), RBAC(string(models.RoleAdmin), "SELF"), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, performRequest(r, http.MethodGet, "/admin", "").Code)
	assert.Equal(t, http.StatusUnauthorized, performRequest(r, http.MethodGet, "/admin", "forged").Code)
	assert.Equal(t, http.StatusForbidden, performRequest(r, http.MethodGet, "/admin", "student").Code)
	assert.Equal(t, http.StatusOK, performRequest(r, http.MethodGet, "/admin", "admin").Code)
	assert.Equal(t, http.StatusOK, performRequest(r, http.MethodGet, "/users/stu-1", "student").Code)
	assert.Equal(t, http.StatusForbidden, performRequest(r, http.MethodGet, "/users/stu-2", "student").Code)
}

func TestOptionalJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/courses", OptionalJWT(stubValidator{}), func(c *gin.Context) {
		if claims := Claims(c); claims != nil {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	assert.Equal(t, "anonymous", performRequest(r, http.MethodGet, "/courses", "").Body.String())
	assert.Equal(t, "anonymous", performRequest(r, http.MethodGet, "/courses", "forged").Body.String())
	assert.Equal(t, "stu-1", performRequest(r, http.MethodGet, "/courses", "student").Body.String())
}

type countingRecorder struct{ n int }

func (r *countingRecorder) RecordRateLimited() { r.n++ }

func TestRateLimitRejectsWith429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewIPRateLimiter(1, 2)
	recorder := &countingRecorder{}
	r := gin.New()
	r.Use(RateLimit(limiter, recorder))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, performRequest(r, http.MethodGet, "/ping", "").Code)
	assert.Equal(t, http.StatusOK, performRequest(r, http.MethodGet, "/ping", "").Code)
	w := performRequest(r, http.MethodGet, "/ping", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.Equal(t, 1, recorder.n)
}

func TestIPRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewIPRateLimiter(5, 5)
	clock := time.Now()
	limiter.now = func() time.Time { return clock }

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))
	assert.Equal(t, 2, limiter.Size())

	clock = clock.Add(10 * time.Minute)
	assert.True(t, limiter.Allow("10.0.0.3"))
	assert.Equal(t, 1, limiter.Size())
}

type memoryAuditStore struct {
	logs []*models.AuditLog
	err  error
}

func (m *memoryAuditStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return m.err
}

func TestAuditRecordsSuccessOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &memoryAuditStore{err: errors.New("ignored")}
	r := gin.New()
	r.PATCH("/qna/:id", JWT(stubValidator{}), Audit(store, nil, models.AuditActionQnAUpdate, "questions"), func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	performRequest(r, http.MethodPatch, "/qna/q-1", "admin")
	performRequest(r, http.MethodPatch, "/qna/q-1?fail=1", "admin")

	require.Len(t, store.logs, 1)
	assert.Equal(t, "q-1", *store.logs[0].ResourceID)
	assert.Equal(t, "admin-1", *store.logs[0].UserID)
}

func TestResponseMetaTracksCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/catalog", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	performRequest(r, http.MethodGet, "/catalog", "")
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
}
