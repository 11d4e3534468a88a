// Package config loads process configuration from an optional YAML file
// overlaid by environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	AWSRegion        string `yaml:"aws_region"`
	IdempotencyTable string `yaml:"idempotency_table"`
	DiscountQueueURL string `yaml:"discount_queue_url"`
	MetricsNamespace string `yaml:"metrics_namespace"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	AuditTopic   string   `yaml:"audit_topic"`

	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"redis_password"`
	SummaryCacheTTL time.Duration `yaml:"summary_cache_ttl"`

	RelayInterval    time.Duration `yaml:"relay_interval"`
	RelayBatch       int           `yaml:"relay_batch"`
	RelayMaxAttempts int           `yaml:"relay_max_attempts"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`

	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	HTTPAddr       string        `yaml:"http_addr"`
	RunLocal       bool          `yaml:"run_local"`
	LogLevel       string        `yaml:"log_level"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DBDriver:         "sqlite3",
		DBDSN:            "ledger.db",
		AWSRegion:        "us-east-1",
		MetricsNamespace: "LoyaltyLedger",
		AuditTopic:       "loyalty-audit",
		SummaryCacheTTL:  5 * time.Minute,
		RelayInterval:    10 * time.Second,
		RelayBatch:       50,
		RelayMaxAttempts: 8,
		SweepInterval:    time.Hour,
		IdempotencyTTL:   48 * time.Hour,
		HTTPAddr:         ":8080",
		LogLevel:         "info",
	}
}

// Load reads the YAML file named by LEDGER_CONFIG, if any, then applies
// environment overrides.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("LEDGER_CONFIG"))
}

// LoadFrom is Load with an explicit file path. An empty path skips the file.
func LoadFrom(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("DB_DRIVER", &c.DBDriver)
	str("DB_DSN", &c.DBDSN)
	str("AWS_REGION", &c.AWSRegion)
	str("IDEMPOTENCY_TABLE", &c.IdempotencyTable)
	str("DISCOUNT_QUEUE_URL", &c.DiscountQueueURL)
	str("METRICS_NAMESPACE", &c.MetricsNamespace)
	str("AUDIT_TOPIC", &c.AuditTopic)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.KafkaBrokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.KafkaBrokers = append(c.KafkaBrokers, b)
			}
		}
	}
	if v, ok := lookup("RUN_LOCAL"); ok {
		c.RunLocal = v == "true"
	}

	for key, dst := range map[string]*time.Duration{
		"SUMMARY_CACHE_TTL": &c.SummaryCacheTTL,
		"RELAY_INTERVAL":    &c.RelayInterval,
		"SWEEP_INTERVAL":    &c.SweepInterval,
		"IDEMPOTENCY_TTL":   &c.IdempotencyTTL,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	if err := num("RELAY_BATCH", &c.RelayBatch); err != nil {
		return err
	}
	return num("RELAY_MAX_ATTEMPTS", &c.RelayMaxAttempts)
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.RelayBatch <= 0 || c.RelayMaxAttempts <= 0 {
		return fmt.Errorf("relay batch and max attempts must be positive")
	}
	if c.RelayInterval <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("relay and sweep intervals must be positive")
	}
	return nil
}

// NewLogger returns a JSON logger at the configured level.
func (c Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
