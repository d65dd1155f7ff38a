package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ESCROW_DB_HOST", "db")
	t.Setenv("ESCROW_DB_NAME", "escrow")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Fees.PlatformPercent.Equal(decimal.NewFromInt(10)))
	assert.True(t, cfg.Fees.WithdrawalPercent.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int64(100), cfg.Fees.WithdrawalMinimum)
	assert.Equal(t, 10*time.Second, cfg.Paystack.Timeout)
	assert.Equal(t, "escrow:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ESCROW_DB_HOST", "db")
	t.Setenv("ESCROW_DB_NAME", "escrow")
	t.Setenv("ESCROW_FEE_PLATFORM_PERCENT", "7.5")
	t.Setenv("ESCROW_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ESCROW_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("ESCROW_OUTBOX_BATCH_SIZE", "20")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7.5", cfg.Fees.PlatformPercent.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 20, cfg.Outbox.BatchSize)
}

func TestLoadConfig_RejectsOutOfRangeFee(t *testing.T) {
	t.Setenv("ESCROW_DB_HOST", "db")
	t.Setenv("ESCROW_DB_NAME", "escrow")
	t.Setenv("ESCROW_FEE_PLATFORM_PERCENT", "120")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "ESCROW_FEE_PLATFORM_PERCENT")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{User: "app", Password: "p@ss", Host: "db", Port: 5432, Name: "escrow", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/escrow?sslmode=disable", c.DSN())
}
