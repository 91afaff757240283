package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL    string `env:"DATABASE_URL,required"`
	Port           int    `env:"PORT" envDefault:"8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv         string `env:"APP_ENV" envDefault:"production"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`

	SettlementMaxRetries  int `env:"SETTLEMENT_MAX_RETRIES" envDefault:"5"`
	SettlementRetryBaseMS int `env:"SETTLEMENT_RETRY_BASE_MS" envDefault:"20"`

	// StatusRefreshInterval of 0 turns the periodic status sweep off.
	StatusRefreshInterval time.Duration `env:"STATUS_REFRESH_INTERVAL" envDefault:"1h"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"loan-settlement-events"`
}

// Load reads an optional .env file from the working directory, then parses
// the process environment. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.SettlementRetryBaseMS) * time.Millisecond
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) validate() error {
	if c.SettlementMaxRetries < 0 {
		return fmt.Errorf("SETTLEMENT_MAX_RETRIES must be >= 0, got %d", c.SettlementMaxRetries)
	}
	if c.SettlementRetryBaseMS <= 0 {
		return fmt.Errorf("SETTLEMENT_RETRY_BASE_MS must be > 0, got %d", c.SettlementRetryBaseMS)
	}
	if c.StatusRefreshInterval < 0 {
		return fmt.Errorf("STATUS_REFRESH_INTERVAL must be >= 0, got %s", c.StatusRefreshInterval)
	}
	if c.KafkaEnabled() && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
