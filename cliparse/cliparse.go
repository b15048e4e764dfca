package cliparse

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/ws"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Port            int
	DatabaseType    string
	DatabaseURL     string
	BusType         string
	BusURL          string
	InstanceID      string
	MaxParticipants int
	StaleAfter      time.Duration
	PurgeAfter      time.Duration
	SweepInterval   time.Duration
	PollTTL         time.Duration
	OpTimeout       time.Duration
	AllowedOrigins  []string
	LogLevel        string
	LogFormat       string
}

// RegisterFlags adds every configuration flag to fs. Each flag can also be
// set through the environment variable with the upper-snake form of its name
// (database-url → DATABASE_URL).
func RegisterFlags(fs *pflag.FlagSet) {
	// Network and storage
	fs.IntP("port", "p", 3318, "Server port")
	fs.StringP("database-type", "t", "memory", "Store backend (memory, sqlite or postgres)")
	fs.StringP("database-url", "d", "", "Database URL, or file path for sqlite")
	fs.String("bus-type", "local", "Broadcast bus (local or postgres)")
	fs.String("bus-url", "", "Postgres URL for the bus (defaults to the database URL)")
	fs.String("instance-id", "", "Unique name of this instance on the bus (defaults to a random UUID)")

	// Limits
	fs.Int("max-participants", 50, "Connected participants allowed per poll")
	fs.Duration("stale-after", 90*time.Second, "Inactivity before a participant is marked disconnected")
	fs.Duration("purge-after", 30*time.Minute, "Time a disconnected participant is kept before removal")
	fs.Duration("sweep-interval", 15*time.Second, "Period of the staleness and expiry sweep")
	fs.Duration("poll-ttl", 24*time.Hour, "Lifetime of a poll when the creator sets none")
	fs.Duration("op-timeout", 300*time.Millisecond, "Deadline for a single store operation")

	// HTTP and logging
	fs.String("allowed-origins", "", "Comma-separated websocket origins (empty allows all)")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text or json)")
}

// Load resolves the configuration from parsed flags, the environment, and
// .env files, in that order of precedence
func Load(fs *pflag.FlagSet) (Config, error) {
	// Existing environment variables win over both files
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("failed to bind flags: %w", err)
	}

	cfg := Config{
		Port:            v.GetInt("port"),
		DatabaseType:    strings.ToLower(v.GetString("database-type")),
		DatabaseURL:     v.GetString("database-url"),
		BusType:         strings.ToLower(v.GetString("bus-type")),
		BusURL:          v.GetString("bus-url"),
		InstanceID:      v.GetString("instance-id"),
		MaxParticipants: v.GetInt("max-participants"),
		StaleAfter:      v.GetDuration("stale-after"),
		PurgeAfter:      v.GetDuration("purge-after"),
		SweepInterval:   v.GetDuration("sweep-interval"),
		PollTTL:         v.GetDuration("poll-ttl"),
		OpTimeout:       v.GetDuration("op-timeout"),
		AllowedOrigins:  splitList(v.GetString("allowed-origins")),
		LogLevel:        v.GetString("log-level"),
		LogFormat:       strings.ToLower(v.GetString("log-format")),
	}

	if cfg.BusURL == "" && cfg.DatabaseType == "postgres" {
		cfg.BusURL = cfg.DatabaseURL
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = auth.NewInstanceID()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseFlags parses args into a fresh flag set and loads the configuration
func ParseFlags(args []string) (Config, error) {
	fs := pflag.NewFlagSet("livepoll", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return Load(fs)
}

// Validate rejects configurations the server cannot start with
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	switch c.DatabaseType {
	case "memory":
	case "sqlite", "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("database URL required for %s (use -d or DATABASE_URL env)", c.DatabaseType))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database type %q", c.DatabaseType))
	}

	switch c.BusType {
	case "local":
	case "postgres":
		if c.BusURL == "" {
			errs = append(errs, errors.New("postgres bus requires a postgres URL (use --bus-url or BUS_URL env)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bus type %q", c.BusType))
	}

	if c.MaxParticipants <= 0 {
		errs = append(errs, errors.New("max-participants must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"stale-after":    c.StaleAfter,
		"purge-after":    c.PurgeAfter,
		"sweep-interval": c.SweepInterval,
		"poll-ttl":       c.PollTTL,
		"op-timeout":     c.OpTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.StaleAfter > 0 && c.StaleAfter <= ws.PingPeriod {
		errs = append(errs, fmt.Errorf("stale-after must be longer than the websocket ping period (%s)", ws.PingPeriod))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// SlogLevel parses LogLevel
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return level, nil
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
