package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBSource   string
	Port       string
	Env        string
	OpTimeout  time.Duration
	FeePercent string
}

// Load reads configuration from the environment, after merging an optional
// .env file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	opTimeout := 5 * time.Second
	if raw := os.Getenv("OP_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid OP_TIMEOUT: %w", err)
		}
		opTimeout = d
	}

	return &Config{
		DBSource:   dbSource,
		Port:       port,
		Env:        env,
		OpTimeout:  opTimeout,
		FeePercent: os.Getenv("FEE_PERCENT"),
	}, nil
}
