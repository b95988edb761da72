// Package config loads service settings from config.toml and MINISHOP_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "MINISHOP"

type Config struct {
	App       AppConfig
	Log       LogConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
	Inventory InventoryConfig
	Payment   PaymentConfig
	Pricing   PricingConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

func (c AppConfig) Addr() string { return ":" + c.Port }

type LogConfig struct {
	Level string
	File  string
}

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMongo    = "mongo"
)

type StorageConfig struct {
	Driver string
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Enabled        bool
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type TelemetryConfig struct {
	Enabled       bool
	Endpoint      string
	Insecure      bool
	SamplingRatio float64
}

type InventoryConfig struct {
	CartHoldTTL     time.Duration
	SweepInterval   time.Duration
	ConflictRetries int
}

type PaymentConfig struct {
	SuccessRate   float64
	CallbackDelay time.Duration
}

type PricingConfig struct {
	DriftTolerance decimal.Decimal
	Shipping       decimal.Decimal
	Tax            decimal.Decimal
}

// Load reads config.toml from the working directory (or the given search
// paths) and applies environment overrides. Priority, highest first:
// MINISHOP_* variables, config.toml, built-in defaults.
func Load(searchPaths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if len(searchPaths) == 0 {
		searchPaths = []string{".", "/app"}
	}
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := build(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "minishop-inventory")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "minishop")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.idempotency_ttl", 24*time.Hour)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "minishop.events")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("inventory.cart_hold_ttl", 15*time.Minute)
	v.SetDefault("inventory.sweep_interval", 30*time.Second)
	v.SetDefault("inventory.conflict_retries", 5)
	v.SetDefault("payment.success_rate", 0.9)
	v.SetDefault("payment.callback_delay", 500*time.Millisecond)
	v.SetDefault("pricing.drift_tolerance", "0.01")
	v.SetDefault("pricing.shipping", "0")
	v.SetDefault("pricing.tax", "0")
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		Storage: StorageConfig{Driver: strings.ToLower(v.GetString("storage.driver"))},
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		Redis: RedisConfig{
			Enabled:        v.GetBool("redis.enabled"),
			Addr:           v.GetString("redis.addr"),
			Password:       v.GetString("redis.password"),
			DB:             v.GetInt("redis.db"),
			IdempotencyTTL: v.GetDuration("redis.idempotency_ttl"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("kafka.enabled"),
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Telemetry: TelemetryConfig{
			Enabled:       v.GetBool("telemetry.enabled"),
			Endpoint:      v.GetString("telemetry.endpoint"),
			Insecure:      v.GetBool("telemetry.insecure"),
			SamplingRatio: v.GetFloat64("telemetry.sampling_ratio"),
		},
		Inventory: InventoryConfig{
			CartHoldTTL:     v.GetDuration("inventory.cart_hold_ttl"),
			SweepInterval:   v.GetDuration("inventory.sweep_interval"),
			ConflictRetries: v.GetInt("inventory.conflict_retries"),
		},
		Payment: PaymentConfig{
			SuccessRate:   v.GetFloat64("payment.success_rate"),
			CallbackDelay: v.GetDuration("payment.callback_delay"),
		},
	}

	var err error
	if cfg.Pricing.DriftTolerance, err = money(v, "pricing.drift_tolerance"); err != nil {
		return nil, err
	}
	if cfg.Pricing.Shipping, err = money(v, "pricing.shipping"); err != nil {
		return nil, err
	}
	if cfg.Pricing.Tax, err = money(v, "pricing.tax"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func money(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.GetString(key))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

// splitList accepts both a TOML array and a comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StorageMongo:
	case StoragePostgres, StorageSQLite:
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database.dsn is required for storage driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of memory, postgres, sqlite, mongo", c.Storage.Driver))
	}
	if c.Storage.Driver == StorageMongo && (c.Mongo.URI == "" || c.Mongo.Database == "") {
		errs = append(errs, errors.New("mongo.uri and mongo.database are required for the mongo driver"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic are required when kafka is enabled"))
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_ratio %v must be within [0, 1]", c.Telemetry.SamplingRatio))
	}
	if c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 1 {
		errs = append(errs, fmt.Errorf("payment.success_rate %v must be within [0, 1]", c.Payment.SuccessRate))
	}
	if c.Inventory.CartHoldTTL <= 0 {
		errs = append(errs, errors.New("inventory.cart_hold_ttl must be positive"))
	}
	if c.Inventory.SweepInterval <= 0 {
		errs = append(errs, errors.New("inventory.sweep_interval must be positive"))
	}
	if c.Pricing.DriftTolerance.IsNegative() || c.Pricing.Shipping.IsNegative() || c.Pricing.Tax.IsNegative() {
		errs = append(errs, errors.New("pricing values must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
