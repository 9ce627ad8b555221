package config

import (
	"fmt"
	"os"
	"strconv"

	"rctmle/domain/core"
)

// Config represents the complete application configuration for the
// command-line and HTTP surfaces. The estimation core itself is
// configured per call through app.Options.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Estimator EstimatorConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds result-store connection settings; empty URL
// disables persistence.
type DatabaseConfig struct {
	URL string
}

// EstimatorConfig holds estimation defaults overridable per request.
type EstimatorConfig struct {
	Folds   int
	Seed    int64
	Epsilon float64
	Level   float64
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server:   ServerConfig{Port: getEnv("PORT", "8080")},
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Estimator: EstimatorConfig{
			Folds:   0, // automatic
			Seed:    1,
			Epsilon: 1e-6,
			Level:   0.95,
		},
	}

	var err error
	if cfg.Estimator.Folds, err = getEnvInt("ESTIMATOR_FOLDS", cfg.Estimator.Folds); err != nil {
		return nil, err
	}
	seed, err := getEnvInt("ESTIMATOR_SEED", int(cfg.Estimator.Seed))
	if err != nil {
		return nil, err
	}
	cfg.Estimator.Seed = int64(seed)
	if cfg.Estimator.Epsilon, err = getEnvFloat("ESTIMATOR_EPSILON", cfg.Estimator.Epsilon); err != nil {
		return nil, err
	}
	if cfg.Estimator.Level, err = getEnvFloat("ESTIMATOR_LEVEL", cfg.Estimator.Level); err != nil {
		return nil, err
	}

	if cfg.Estimator.Level <= 0 || cfg.Estimator.Level >= 1 {
		return nil, core.NewDataError("ESTIMATOR_LEVEL", "must lie strictly between 0 and 1")
	}
	if cfg.Estimator.Epsilon <= 0 || cfg.Estimator.Epsilon >= 0.5 {
		return nil, core.NewDataError("ESTIMATOR_EPSILON", "must lie strictly between 0 and 0.5")
	}
	if cfg.Estimator.Folds < 0 {
		return nil, core.NewDataError("ESTIMATOR_FOLDS", "must be >= 0")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}
