package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"daily-tracker/internal/resetclock"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config keeps runtime settings for the tracker.
type Config struct {
	TelegramToken  string
	HTTPAddr       string
	JWTSecret      string
	StoreDriver    string
	DatabaseURL    string
	MongoURI       string
	MongoDB        string
	LegacyDir      string
	Location       *time.Location
	ReportInterval time.Duration
	ReportTime     string
	AutoReset      bool
	StoreTimeout   time.Duration
}

// Load reads configuration from a .env file, if present, and environment variables
// with sane defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[warn] .env: %v", err)
	}

	cfg := Config{
		TelegramToken:  strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		HTTPAddr:       strings.TrimSpace(getEnv("HTTP_ADDR", ":8080")),
		JWTSecret:      strings.TrimSpace(os.Getenv("JWT_SECRET")),
		StoreDriver:    strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", DriverSQLite))),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MongoURI:       strings.TrimSpace(getEnv("MONGO_URI", "mongodb://localhost:27017")),
		MongoDB:        strings.TrimSpace(getEnv("MONGO_DB", "daily_tracker")),
		LegacyDir:      strings.TrimSpace(os.Getenv("LEGACY_DIR")),
		ReportInterval: parseInterval(strings.TrimSpace(os.Getenv("REPORT_INTERVAL_HOURS"))),
		ReportTime:     strings.TrimSpace(os.Getenv("REPORT_TIME")),
		AutoReset:      getEnvAsBool("AUTO_RESET", false),
		StoreTimeout:   getEnvAsDuration("STORE_TIMEOUT", 10*time.Second),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "daily_tracker.db"
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	if cfg.ReportTime != "" {
		rt, err := resetclock.ParseResetTime(cfg.ReportTime)
		if err != nil {
			return cfg, fmt.Errorf("REPORT_TIME: %w", err)
		}
		cfg.ReportTime = rt.String()
	}

	loc, err := loadLocation(os.Getenv("TIMEZONE"))
	if err != nil {
		return cfg, err
	}
	cfg.Location = loc

	switch cfg.StoreDriver {
	case DriverSQLite, DriverMongo:
	default:
		return cfg, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMongo, cfg.StoreDriver)
	}

	return cfg, nil
}

// ValidateServe checks what the long-running server needs on top of Load.
func (c Config) ValidateServe() error {
	if c.TelegramToken == "" && c.HTTPAddr == "" {
		return fmt.Errorf("nothing to serve: set TELEGRAM_TOKEN or HTTP_ADDR")
	}
	if c.HTTPAddr != "" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when HTTP_ADDR is set")
	}
	return nil
}

func loadLocation(raw string) (*time.Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(raw)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if result, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return result
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if result, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return result
		}
	}
	return defaultVal
}
