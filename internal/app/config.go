package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Драйверы хранилища.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config описывает настройки запуска сервиса; источник — переменные окружения.
type Config struct {
	HTTPAddr    string `env:"LDC_HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"LDC_METRICS_ADDR" envDefault:":9090"`

	// StorageDriver выбирает хранилище: memory или postgres.
	StorageDriver string `env:"LDC_STORAGE_DRIVER" envDefault:"memory"`
	PostgresDSN   string `env:"LDC_POSTGRES_DSN"`

	// KafkaBrokers — список брокеров через запятую; пусто — без Kafka.
	KafkaBrokers string `env:"LDC_KAFKA_BROKERS"`
	// RedisAddr — адрес Redis для дедупликации колбэков; пусто — без Redis.
	RedisAddr string `env:"LDC_REDIS_ADDR"`

	SweepInterval time.Duration `env:"LDC_SWEEP_INTERVAL" envDefault:"1m"`

	LogLevel  string `env:"LDC_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LDC_LOG_FORMAT" envDefault:"json"`
}

// LoadConfig читает конфигурацию из окружения и валидирует её.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность конфигурации.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("LDC_POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	return nil
}

// DefaultConfig возвращает конфигурацию по умолчанию (in-memory, без брокеров).
func DefaultConfig() Config {
	return Config{
		HTTPAddr:      ":8080",
		MetricsAddr:   ":9090",
		StorageDriver: StorageMemory,
		SweepInterval: time.Minute,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}
