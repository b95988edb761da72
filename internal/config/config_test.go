package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "minishop-inventory", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.App.Addr())
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Inventory.CartHoldTTL)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Pricing.DriftTolerance.Equal(decimal.RequireFromString("0.01")))
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[app]
port = "9090"

[storage]
driver = "sqlite"

[database]
dsn = "file:minishop.db"

[kafka]
enabled = true
brokers = ["k1:9092"]

[pricing]
shipping = "5.00"
`), 0o644))

	t.Setenv("MINISHOP_APP_PORT", "7070")
	t.Setenv("MINISHOP_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("MINISHOP_INVENTORY_CART_HOLD_TTL", "2m")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.App.Port)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "file:minishop.db", cfg.Database.DSN)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Minute, cfg.Inventory.CartHoldTTL)
	assert.True(t, cfg.Pricing.Shipping.Equal(decimal.NewFromInt(5)))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"MINISHOP_STORAGE_DRIVER": "oracle"}, "storage.driver"},
		{"sql without dsn", map[string]string{"MINISHOP_STORAGE_DRIVER": "postgres"}, "database.dsn"},
		{"sampling out of range", map[string]string{"MINISHOP_TELEMETRY_SAMPLING_RATIO": "1.5"}, "telemetry.sampling_ratio"},
		{"negative tax", map[string]string{"MINISHOP_PRICING_TAX": "-1"}, "pricing"},
		{"bad money", map[string]string{"MINISHOP_PRICING_SHIPPING": "five"}, "pricing.shipping"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
