package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		*captured = Value(c)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestMiddlewareKeepsValidHeader(t *testing.T) {
	var got string
	r := newRouter(&got)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", got)
	assert.Equal(t, "abc-123", w.Header().Get(headerKey))
}

func TestMiddlewareReplacesUnsafeHeader(t *testing.T) {
	var got string
	r := newRouter(&got)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "bad id\n"+strings.Repeat("x", 80))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Len(t, got, 36)
	assert.Equal(t, got, w.Header().Get(headerKey))
}
