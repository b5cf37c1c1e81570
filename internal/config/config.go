package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"kickchoice/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Estimation EstimationConfig
	Data       DataConfig
	Database   DatabaseConfig
	Server     ServerConfig
	Report     ReportConfig
}

// EstimationConfig holds optimizer and simulation settings
type EstimationConfig struct {
	Model             string
	Draws             int
	DrawMethod        string
	Seed              uint64
	MaxIterations     int
	GradientTolerance float64
	Workers           int
	MaxConcurrentRuns int
	Timeout           time.Duration
	Verbose           bool
}

// DataConfig points at the shot sheet. Dir roots the files API requests
// may name; empty disables them.
type DataConfig struct {
	File     string
	Dir      string
	Sheet    string
	SkipRows int
}

// DatabaseConfig holds database connection settings. An empty URL disables
// persistence.
type DatabaseConfig struct {
	Driver string
	URL    string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	UIPort  string
	GinMode string
}

// ReportConfig holds output locations
type ReportConfig struct {
	Dir string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Estimation: *loadEstimationConfig(),
		Data:       *loadDataConfig(),
		Database:   *loadDatabaseConfig(),
		Server:     *loadServerConfig(),
		Report:     ReportConfig{Dir: getEnvOrDefault("REPORT_DIR", "./reports")},
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadEstimationConfig() *EstimationConfig {
	return &EstimationConfig{
		Model:             getEnvOrDefault("ESTIMATION_MODEL", "panel_logit_alt_specific"),
		Draws:             getEnvIntOrDefault("ESTIMATION_DRAWS", 2000),
		DrawMethod:        strings.ToLower(getEnvOrDefault("ESTIMATION_DRAW_METHOD", "halton")),
		Seed:              getEnvUintOrDefault("ESTIMATION_SEED", 20240601),
		MaxIterations:     getEnvIntOrDefault("ESTIMATION_MAX_ITERATIONS", 500),
		GradientTolerance: getEnvFloatOrDefault("ESTIMATION_GRADIENT_TOL", 1e-6),
		Workers:           getEnvIntOrDefault("ESTIMATION_WORKERS", runtime.NumCPU()),
		MaxConcurrentRuns: getEnvIntOrDefault("ESTIMATION_MAX_CONCURRENT", 2),
		Timeout:           getEnvDurationOrDefault("ESTIMATION_TIMEOUT", 30*time.Minute),
		Verbose:           getEnvBoolOrDefault("ESTIMATION_VERBOSE", false),
	}
}

func loadDataConfig() *DataConfig {
	return &DataConfig{
		File:     getEnvOrDefault("DATA_FILE", ""),
		Dir:      getEnvOrDefault("DATA_DIR", ""),
		Sheet:    getEnvOrDefault("DATA_SHEET", ""),
		SkipRows: getEnvIntOrDefault("DATA_SKIP_ROWS", 0),
	}
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Driver: strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", "postgres")),
		URL:    getEnvOrDefault("DATABASE_URL", ""),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		UIPort:  getEnvOrDefault("UI_PORT", "8081"),
		GinMode: getEnvOrDefault("GIN_MODE", "debug"),
	}
}

// Validate rejects settings the estimator cannot run with
func (c *Config) Validate() error {
	e := c.Estimation
	if e.Draws < 1 {
		return errors.ConfigInvalid("ESTIMATION_DRAWS must be at least 1")
	}
	switch e.DrawMethod {
	case "pseudo", "antithetic", "halton":
	default:
		return errors.ConfigInvalid("ESTIMATION_DRAW_METHOD must be pseudo, antithetic or halton")
	}
	if e.MaxIterations < 1 {
		return errors.ConfigInvalid("ESTIMATION_MAX_ITERATIONS must be at least 1")
	}
	if e.GradientTolerance <= 0 {
		return errors.ConfigInvalid("ESTIMATION_GRADIENT_TOL must be positive")
	}
	if e.MaxConcurrentRuns < 1 {
		return errors.ConfigInvalid("ESTIMATION_MAX_CONCURRENT must be at least 1")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.ConfigInvalid("DATABASE_DRIVER must be postgres or sqlite")
	}
	if c.Data.SkipRows < 0 {
		return errors.ConfigInvalid("DATA_SKIP_ROWS cannot be negative")
	}
	return nil
}

// PersistenceEnabled reports whether runs are stored
func (c *Config) PersistenceEnabled() bool {
	return c.Database.URL != ""
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUintOrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
