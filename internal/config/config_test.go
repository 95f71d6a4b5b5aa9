package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 100, cfg.Analytics.RecentRingSize)
	assert.Equal(t, 30, cfg.Analytics.TimelineDays)
	assert.Equal(t, 90, cfg.Analytics.RetentionDays)
	assert.Equal(t, time.Hour, cfg.Analytics.EvictionInterval)
	assert.Equal(t, 64, cfg.Realtime.SendBufferSize)
	assert.Equal(t, 30*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.Realtime.HeartbeatTimeout)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Simulator.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Simulator.Interval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Endpoint)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
environment: production
server:
  http:
    port: 9090
store:
  type: postgres
  database:
    host: db.internal
    port: 5433
    name: threats
    username: monitor
analytics:
  recent_ring_size: 250
realtime:
  heartbeat_interval: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.HTTP.Port)
	assert.Equal(t, "postgres", cfg.Store.Type)
	assert.Equal(t, 250, cfg.Analytics.RecentRingSize)
	assert.Equal(t, 10*time.Second, cfg.Realtime.HeartbeatInterval)
	// Values absent from the file keep their defaults.
	assert.Equal(t, 30, cfg.Analytics.TimelineDays)
	assert.Equal(t, "disable", cfg.Store.Database.SSLMode)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvVarOverrides(t *testing.T) {
	t.Setenv("DATABASE_HOST", "pg.example.com")
	t.Setenv("DATABASE_PASSWORD", "hunter2")
	t.Setenv("REDIS_HOST", "cache.example.com")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pg.example.com", cfg.Store.Database.Host)
	assert.Equal(t, "hunter2", cfg.Store.Database.Password)
	assert.Equal(t, "cache.example.com", cfg.Store.Redis.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestDSNAndAddr(t *testing.T) {
	db := DatabaseConfig{
		Host: "localhost", Port: 5432, Name: "protego",
		Username: "monitor", Password: "secret", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=monitor password=secret dbname=protego sslmode=disable",
		db.DSN())

	r := RedisConfig{Host: "localhost", Port: 6379}
	assert.Equal(t, "localhost:6379", r.Addr())
}
