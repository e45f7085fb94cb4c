// Package config loads the server configuration.
//
// Values come from built-in defaults, then an optional YAML file (path in
// LEDGER_CONFIG), then environment variables, each layer overriding the last.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Driver names accepted in DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the complete server configuration.
type Config struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Limits   LimitsConfig   `yaml:"limits"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	// Path is the SQLite file.
	Path string `yaml:"path"`
	// URL is the PostgreSQL DSN.
	URL string `yaml:"url"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwtSecret"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
}

// LimitsConfig throttles settlement mutations per operator.
// A zero RPS disables limiting.
type LimitsConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:     8080,
		LogLevel: "info",
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "./data/ledger.db",
		},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		Limits: LimitsConfig{
			RPS:   2,
			Burst: 5,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// any) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv loads the configuration using the file named by LEDGER_CONFIG.
func FromEnv() (Config, error) {
	return Load(os.Getenv("LEDGER_CONFIG"))
}

func getEnv(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func applyEnv(cfg *Config) error {
	if v, ok := getEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v, ok := getEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := getEnv("DB_DRIVER"); ok {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v, ok := getEnv("DB_PATH"); ok {
		cfg.Database.Path = v
	}
	if v, ok := getEnv("DATABASE_URL"); ok {
		cfg.Database.URL = v
	}
	if v, ok := getEnv("JWT_SECRET"); ok {
		cfg.Auth.JWTSecret = v
	}
	if v, ok := getEnv("RATE_LIMIT_RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", v, err)
		}
		cfg.Limits.RPS = rps
	}
	if v, ok := getEnv("RATE_LIMIT_BURST"); ok {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST %q: %w", v, err)
		}
		cfg.Limits.Burst = burst
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("sqlite driver needs DB_PATH"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("postgres driver needs DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Limits.RPS < 0 || c.Limits.Burst < 0 {
		errs = append(errs, errors.New("rate limits cannot be negative"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}
