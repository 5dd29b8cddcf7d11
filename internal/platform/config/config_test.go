package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"LEDGER_ADDR", "DATABASE_URL", "REDIS_URL", "S3_BUCKET", "KAFKA_BROKERS", "LOG_LEVEL", "SEAL_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Postgres.URL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.S3.Bucket)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Evidence.SealTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Evidence.IdempotencyTTL)
	assert.Equal(t, 60*time.Second, cfg.Evidence.IdempotencyLease)
	assert.Equal(t, int64(10<<20), cfg.Evidence.MaxPayloadBytes)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LEDGER_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SEAL_TIMEOUT", "30s")
	t.Setenv("REDIS_POOL_SIZE", "not-a-number")
	t.Setenv("S3_USE_PATH_STYLE", "true")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Evidence.SealTimeout)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.True(t, cfg.S3.UsePathStyle)
}
