package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/route", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func doGet(router *gin.Engine, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodGet, "/route", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	router := newTestRouter(rl)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doGet(router, "10.0.0.1:1234"))
	}
}

func TestRateLimiter_BlocksBeyondBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	router := newTestRouter(rl)

	doGet(router, "10.0.0.2:1234")
	doGet(router, "10.0.0.2:1234")
	assert.Equal(t, http.StatusTooManyRequests, doGet(router, "10.0.0.2:1234"))
}

func TestRateLimiter_TracksPerIPIndependently(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	router := newTestRouter(rl)

	assert.Equal(t, http.StatusOK, doGet(router, "10.0.0.3:1234"))
	assert.Equal(t, http.StatusOK, doGet(router, "10.0.0.4:1234"))
	assert.Equal(t, http.StatusTooManyRequests, doGet(router, "10.0.0.3:1234"))
}
