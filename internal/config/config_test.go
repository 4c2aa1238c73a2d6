package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key New reads so a developer's .env or shell does
// not leak into the test.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, k := range []string{
		"SERVER_HOST", "SERVER_PORT", "LOG_LEVEL", "STORAGE_DRIVER",
		"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST",
		"POSTGRES_PORT", "POSTGRES_SSLMODE", "POSTGRES_MAX_CONNS", "POSTGRES_MIN_CONNS",
		"POSTGRES_CONNECT_TIMEOUT", "MIGRATE_ON_START",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"JWT_SECRET", "TICKET_SECRET",
		"RATE_LIMIT_PER_MINUTE", "MAX_SEATS_PER_BOOKING", "IDEMPOTENCY_TTL",
	} {
		t.Setenv(k, "")
	}
}

func TestNew_MemoryDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.TicketSecret)
	assert.Equal(t, 10, cfg.Booking.RateLimitPerMinute)
	assert.Equal(t, 24*time.Hour, cfg.Booking.IdempotencyTTL)
}

func TestNew_Postgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("POSTGRES_USER", "trip")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "tripgo")
	t.Setenv("POSTGRES_MAX_CONNS", "20")
	t.Setenv("POSTGRES_MIN_CONNS", "2")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, "postgres://trip:pw@localhost:5432/tripgo?sslmode=disable", cfg.Postgres.DSN())
	assert.Equal(t, int32(20), cfg.Postgres.MaxConns)
	assert.Equal(t, int32(2), cfg.Postgres.MinConns)
	assert.Equal(t, 5*time.Second, cfg.Postgres.ConnectTimeout)
	assert.True(t, cfg.Postgres.MigrateOnStart)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing jwt secret", map[string]string{"STORAGE_DRIVER": "memory"}},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "sqlite", "JWT_SECRET": "x"}},
		{"missing postgres user", map[string]string{"JWT_SECRET": "x"}},
		{"bad port", map[string]string{"STORAGE_DRIVER": "memory", "JWT_SECRET": "x", "SERVER_PORT": "http"}},
		{"bad ttl", map[string]string{"STORAGE_DRIVER": "memory", "JWT_SECRET": "x", "IDEMPOTENCY_TTL": "1 day"}},
		{"bad log level", map[string]string{"STORAGE_DRIVER": "memory", "JWT_SECRET": "x", "LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := New()
			assert.Error(t, err)
		})
	}
}
