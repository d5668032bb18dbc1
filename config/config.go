// Package config loads application settings from environment variables,
// overridable by command-line flags.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// ErrHelp is returned by Load when --help was requested.
var ErrHelp = pflag.ErrHelp

// Config holds all application settings.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Seed     SeedConfig
	Redis    RedisConfig
	// StrictFilters rejects unknown task list parameters instead of ignoring them.
	StrictFilters bool
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Port int
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path  string
	Debug bool
}

// JWTConfig configures token signing and verification.
type JWTConfig struct {
	SecretKey  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ClockSkew  time.Duration
}

// SeedConfig holds the bootstrap administrator account.
type SeedConfig struct {
	AdminEmail    string
	AdminPassword string
}

// RedisConfig configures the login throttle and label cache.
// An empty Addr disables both.
type RedisConfig struct {
	Addr           string
	Password       string
	LoginRateLimit int
	LoginWindow    time.Duration
	CacheTTL       time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// Default values.
const (
	DefaultPort           = 3000
	DefaultDBPath         = "task_manager.db"
	DefaultSecretKey      = "task-manager-development-secret-change-me"
	DefaultIssuer         = "task-manager"
	DefaultAccessTTL      = 24 * time.Hour
	DefaultRefreshTTL     = 7 * 24 * time.Hour
	DefaultClockSkew      = 30 * time.Second
	DefaultAdminEmail     = "hexlet@example.com"
	DefaultAdminPassword  = "qwerty"
	DefaultLoginRateLimit = 10
	DefaultLoginWindow    = time.Minute
	DefaultCacheTTL       = 5 * time.Minute
	DefaultShutdown       = 30 * time.Second
)

// Load reads settings from the process environment and then applies
// command-line overrides from args (without the program name).
func Load(args []string) (*Config, error) {
	return load(args, os.Getenv)
}

func load(args []string, getenv func(string) string) (*Config, error) {
	env := envReader{getenv: getenv}

	cfg := &Config{
		HTTP: HTTPConfig{
			Port: env.getInt("HTTP_PORT", DefaultPort),
		},
		Database: DatabaseConfig{
			Path:  env.getString("DB_PATH", DefaultDBPath),
			Debug: env.getBool("DB_DEBUG", false),
		},
		JWT: JWTConfig{
			SecretKey:  env.getString("JWT_SECRET_KEY", DefaultSecretKey),
			Issuer:     env.getString("JWT_ISSUER", DefaultIssuer),
			AccessTTL:  env.getDuration("JWT_ACCESS_TTL", DefaultAccessTTL),
			RefreshTTL: env.getDuration("JWT_REFRESH_TTL", DefaultRefreshTTL),
			ClockSkew:  env.getDuration("JWT_CLOCK_SKEW", DefaultClockSkew),
		},
		Seed: SeedConfig{
			AdminEmail:    env.getString("ADMIN_EMAIL", DefaultAdminEmail),
			AdminPassword: env.getString("ADMIN_PASSWORD", DefaultAdminPassword),
		},
		Redis: RedisConfig{
			Addr:           env.getString("REDIS_ADDR", ""),
			Password:       env.getString("REDIS_PASSWORD", ""),
			LoginRateLimit: env.getInt("LOGIN_RATE_LIMIT", DefaultLoginRateLimit),
			LoginWindow:    env.getDuration("LOGIN_RATE_WINDOW", DefaultLoginWindow),
			CacheTTL:       env.getDuration("CACHE_TTL", DefaultCacheTTL),
		},
		StrictFilters:   env.getBool("FILTER_STRICT", false),
		ShutdownTimeout: env.getDuration("SHUTDOWN_TIMEOUT", DefaultShutdown),
	}

	flagSet := pflag.NewFlagSet("task-manager", pflag.ContinueOnError)
	flagSet.IntVarP(&cfg.HTTP.Port, "port", "p", cfg.HTTP.Port, "HTTP listen port")
	flagSet.StringVar(&cfg.Database.Path, "db", cfg.Database.Path, "path to the SQLite database file")
	flagSet.BoolVar(&cfg.Database.Debug, "db-debug", cfg.Database.Debug, "log every SQL statement")
	flagSet.StringVar(&cfg.Redis.Addr, "redis-addr", cfg.Redis.Addr, "Redis address for login throttling and caching (empty disables)")
	flagSet.BoolVar(&cfg.StrictFilters, "strict-filters", cfg.StrictFilters, "reject unknown task filter parameters")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port %d", c.HTTP.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("JWT secret key is required"))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.JWT.ClockSkew < 0 {
		errs = append(errs, errors.New("clock skew must not be negative"))
	}
	if c.Redis.LoginRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid login rate limit %d", c.Redis.LoginRateLimit))
	}
	return errors.Join(errs...)
}

// InsecureDefaults lists the settings still carrying their checked-in
// development values.
func (c *Config) InsecureDefaults() []string {
	var insecure []string
	if c.JWT.SecretKey == DefaultSecretKey {
		insecure = append(insecure, "JWT_SECRET_KEY")
	}
	if c.Seed.AdminPassword == DefaultAdminPassword {
		insecure = append(insecure, "ADMIN_PASSWORD")
	}
	return insecure
}

type envReader struct {
	getenv func(string) string
}

// getString returns environment variable value or default.
func (e envReader) getString(key, defaultValue string) string {
	if value := e.getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt returns environment variable as int or default.
func (e envReader) getInt(key string, defaultValue int) int {
	if value := e.getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getBool returns environment variable as bool or default.
func (e envReader) getBool(key string, defaultValue bool) bool {
	if value := e.getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

// getDuration returns environment variable as duration or default.
func (e envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := e.getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}
