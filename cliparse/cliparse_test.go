// cliparse/cliparse_test.go
package cliparse

import (
	"strings"
	"testing"
	"time"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 3318 {
		t.Errorf("expected port 3318, got %d", cfg.Port)
	}
	if cfg.DatabaseType != "memory" || cfg.BusType != "local" {
		t.Errorf("expected memory/local, got %s/%s", cfg.DatabaseType, cfg.BusType)
	}
	if cfg.MaxParticipants != 50 || cfg.StaleAfter != 90*time.Second || cfg.OpTimeout != 300*time.Millisecond {
		t.Errorf("unexpected limits %+v", cfg)
	}
	if cfg.InstanceID == "" {
		t.Error("expected a generated instance ID")
	}
}

func TestParseFlags_EnvVars(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("BUS_TYPE", "postgres")
	t.Setenv("STALE_AFTER", "2m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.BusURL != "postgres://test" {
		t.Errorf("bus URL should default to the database URL, got %q", cfg.BusURL)
	}
	if cfg.StaleAfter != 2*time.Minute {
		t.Errorf("expected 2m, got %v", cfg.StaleAfter)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := ParseFlags([]string{"-p", "8080", "-t", "sqlite", "-d", "livepoll.db", "--log-level", "warn"})
	if err != nil {
		t.Fatal(err)
	}

	// CLI should override env
	if cfg.Port != 8080 {
		t.Errorf("CLI should override env: expected 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("CLI should override env: expected warn, got %s", cfg.LogLevel)
	}
	if cfg.DatabaseType != "sqlite" || cfg.DatabaseURL != "livepoll.db" {
		t.Errorf("unexpected database %s %s", cfg.DatabaseType, cfg.DatabaseURL)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:            3318,
			DatabaseType:    "memory",
			BusType:         "local",
			MaxParticipants: 50,
			StaleAfter:      time.Minute,
			PurgeAfter:      time.Minute,
			SweepInterval:   time.Second,
			PollTTL:         time.Hour,
			OpTimeout:       time.Second,
			LogLevel:        "info",
			LogFormat:       "text",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown database", func(c *Config) { c.DatabaseType = "mysql" }, "unknown database type"},
		{"postgres without url", func(c *Config) { c.DatabaseType = "postgres" }, "database URL required"},
		{"postgres bus without url", func(c *Config) { c.BusType = "postgres" }, "postgres bus requires"},
		{"unknown bus", func(c *Config) { c.BusType = "kafka" }, "unknown bus type"},
		{"zero participants", func(c *Config) { c.MaxParticipants = 0 }, "max-participants"},
		{"negative timeout", func(c *Config) { c.OpTimeout = -time.Second }, "op-timeout"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "unknown log format"},
		{"bad port", func(c *Config) { c.Port = 0 }, "port"},
		{"stale before ping", func(c *Config) { c.StaleAfter = 30 * time.Second }, "ping period"},
		{"stale equals ping", func(c *Config) { c.StaleAfter = 54 * time.Second }, "ping period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
