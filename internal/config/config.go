// Package config содержит логику чтения конфигурации кассового сервиса.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress      = "localhost:8080"
	defaultRewardQueueSize = 256
	defaultRewardTimeout   = 10 * time.Second
)

// Config содержит параметры конфигурации кассового сервиса.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	AuthSecret      string        `env:"AUTH_SECRET"`
	RewardQueueSize int           `env:"REWARD_QUEUE_SIZE"`
	RewardTimeout   time.Duration `env:"REWARD_TIMEOUT"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами; файл .env, если есть, дополняет окружение.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAuthSecret := cfg.AuthSecret
	envQueueSize := cfg.RewardQueueSize
	envTimeout := cfg.RewardTimeout

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret used to verify owner tokens")
	flag.IntVar(&cfg.RewardQueueSize, "q", defaultRewardQueueSize, "size of the post-commit reward queue")
	flag.DurationVar(&cfg.RewardTimeout, "t", defaultRewardTimeout, "timeout of one post-commit reward step")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envQueueSize != 0 {
		cfg.RewardQueueSize = envQueueSize
	}
	if envTimeout != 0 {
		cfg.RewardTimeout = envTimeout
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.RewardQueueSize <= 0 {
		return nil, fmt.Errorf("reward queue size must be positive, got %d", cfg.RewardQueueSize)
	}
	if cfg.RewardTimeout <= 0 {
		return nil, fmt.Errorf("reward timeout must be positive, got %s", cfg.RewardTimeout)
	}

	return cfg, nil
}
