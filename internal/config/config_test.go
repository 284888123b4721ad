package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := fromViper(newViper())

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "redis", cfg.QueueBackend)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.True(t, cfg.MigrateOnStart)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.TrustedProxies)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, ":9091", cfg.WorkerMetrics)
	assert.False(t, cfg.Production())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("QUEUE_BACKEND", "MEMORY")
	t.Setenv("RATE_LIMIT_PER_MIN", "-5")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("MIGRATE_ON_START", "false")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8")
	t.Setenv("WORKER_POOL_SIZE", "0")
	t.Setenv("WORKER_METRICS", ":9100")

	cfg := fromViper(newViper())

	assert.True(t, cfg.Production())
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.QueueBackend)
	assert.Equal(t, 120, cfg.RateLimitPerMin, "non-positive limits fall back")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.MigrateOnStart)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.TrustedProxies)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, ":9100", cfg.WorkerMetrics)
}
