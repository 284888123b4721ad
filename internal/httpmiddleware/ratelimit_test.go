package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleTokenBucket(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok, "bucket drained")

	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(2 * time.Second)
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok, "refilled at one token per second")
}

func TestRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 9, 0, 5, 0, time.UTC)
	l := NewRedisWindow(client, 3)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, err = l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "new window")
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func serve(r http.Handler) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w.Code
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	limited := gin.New()
	limited.GET("/", Middleware(NewSimpleTokenBucket(1, 1), nil), ok)
	assert.Equal(t, http.StatusOK, serve(limited))
	assert.Equal(t, http.StatusTooManyRequests, serve(limited))

	failOpen := gin.New()
	failOpen.GET("/", Middleware(brokenLimiter{}, nil), ok)
	assert.Equal(t, http.StatusOK, serve(failOpen))
}
