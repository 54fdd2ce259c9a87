package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds application configuration
type Config struct {
	Port              string
	StorageDriver     string
	SQLitePath        string
	MongoURI          string
	MongoDatabase     string
	LogLevel          string
	LogFormat         string
	ReconcileSchedule string
	CORSOrigins       []string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// Load reads an optional .env file from the working directory, then builds the
// configuration from the environment. Variables already set in the
// environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", DriverSQLite)),
		SQLitePath:        getEnv("SQLITE_PATH", "loanbook.db"),
		MongoURI:          getEnv("MONGO_URI", ""),
		MongoDatabase:     getEnv("MONGO_DATABASE", "loanbook"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "json")),
		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@daily"),
		CORSOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.ReadTimeout, err = getDuration("HTTP_READ_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = getDuration("HTTP_WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo driver")
		}
		if c.MongoDatabase == "" {
			return errors.New("MONGO_DATABASE is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want %s or %s)", c.StorageDriver, DriverSQLite, DriverMongo)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q (want json or text)", c.LogFormat)
	}
	if c.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			return fmt.Errorf("invalid RECONCILE_SCHEDULE %q: %w", c.ReconcileSchedule, err)
		}
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("HTTP timeouts must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
