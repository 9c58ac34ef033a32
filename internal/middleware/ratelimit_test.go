package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(t *testing.T, client *redis.Client, uid string) *gin.Engine {
	t.Helper()
	r := gin.New()
	if uid != "" {
		r.Use(func(c *gin.Context) { c.Set(ContextUIDKey, uid); c.Next() })
	}
	r.Use(RateLimit(client, "test:", 2, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func doGet(r http.Handler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	return w
}

func TestRateLimit_BlocksAfterLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	r := newLimitedRouter(t, client, "alice")

	first := doGet(r)
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusNoContent, doGet(r).Code)

	blocked := doGet(r)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))

	assert.True(t, mr.Exists("test:ratelimit:alice"))
	assert.Greater(t, mr.TTL("test:ratelimit:alice"), time.Duration(0))

	// 窗口过期后恢复
	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusNoContent, doGet(r).Code)
}

func TestRateLimit_KeysByUIDOrIP(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	for i := 0; i < 3; i++ {
		doGet(newLimitedRouter(t, client, "alice"))
	}
	assert.Equal(t, http.StatusNoContent, doGet(newLimitedRouter(t, client, "bob")).Code)

	anon := newLimitedRouter(t, client, "")
	assert.Equal(t, http.StatusNoContent, doGet(anon).Code)
	keys := mr.Keys()
	require.Len(t, keys, 3)
	assert.Contains(t, keys, "test:ratelimit:ip:192.0.2.1")
}

func TestRateLimit_RedisDownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	r := newLimitedRouter(t, client, "alice")
	mr.Close()

	assert.Equal(t, http.StatusNoContent, doGet(r).Code)
}
