package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "LOG_LEVEL", "DB_DRIVER", "DB_PATH", "DATABASE_URL",
		"JWT_SECRET", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Database.Driver != DriverSQLite {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("expected missing secret error, got %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "ledger.yaml")
	yaml := `
port: 9090
logLevel: debug
database:
  driver: postgres
  url: postgres://file/ledger
auth:
  jwtSecret: from-file
  tokenTTL: 1h
limits:
  rps: 0.5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PORT", "7070")
	t.Setenv("RATE_LIMIT_BURST", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Port != 7070 {
		t.Errorf("env PORT should win, got %d", cfg.Port)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.URL != "postgres://file/ledger" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Database.Path != "./data/ledger.db" {
		t.Errorf("unset file keys should keep defaults, got path %q", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != "from-file" || cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Limits.RPS != 0.5 || cfg.Limits.Burst != 3 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if level, _ := cfg.Level(); level != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	t.Setenv("PORT", "eighty")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric PORT")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Auth.JWTSecret = "s"

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 0 }, "port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unknown database driver"},
		{"postgres without url", func(c *Config) { c.Database.Driver = DriverPostgres }, "DATABASE_URL"},
		{"negative limits", func(c *Config) { c.Limits.RPS = -1 }, "negative"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
