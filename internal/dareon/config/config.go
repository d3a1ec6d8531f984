// Package config loads the Dareon server configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Environment names follow the historical deployment
// (PORT, JWT_SECRET, JWT_EXPIRE, ...) and may carry a DAREON_ prefix, which
// wins over the bare name.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dareon-io/dareon2/common/crypto"
	"github.com/dareon-io/dareon2/common/environment"
	"github.com/dareon-io/dareon2/internal/dareon/store"
)

// EnvPrefix is the optional prefix for environment overrides.
const EnvPrefix = "DAREON_"

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Mail      MailConfig      `yaml:"mail"`

	// MasterKey is the hex-encoded 32-byte key used to encrypt integration
	// tokens at rest.
	MasterKey string `yaml:"masterKey"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port"`
	// Environment mirrors NODE_ENV; "production" enables secure cookies.
	Environment     string        `yaml:"environment"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// PruneInterval is how often expired tokens and idle rate-limit buckets
	// are cleaned up.
	PruneInterval time.Duration `yaml:"pruneInterval"`
}

// DatabaseConfig selects the store dialect and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// StorageConfig locates per-user file storage.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwtSecret"`
	JWTExpire    time.Duration `yaml:"jwtExpire"`
	CookieExpire time.Duration `yaml:"cookieExpire"`
}

// LogConfig is passed to observability.Setup.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// RateLimitConfig sizes the two request limiters.
type RateLimitConfig struct {
	CommandRequests int           `yaml:"commandRequests"`
	CommandWindow   time.Duration `yaml:"commandWindow"`
	GlobalRequests  int           `yaml:"globalRequests"`
	GlobalWindow    time.Duration `yaml:"globalWindow"`
}

// MailConfig is used to build links and the From header of outgoing mail.
type MailConfig struct {
	FromName  string `yaml:"fromName"`
	FromEmail string `yaml:"fromEmail"`
	ClientURL string `yaml:"clientUrl"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			Environment:     "development",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			PruneInterval:   10 * time.Minute,
		},
		Database: DatabaseConfig{
			Driver: string(store.SQLite),
			URL:    "./dareon.db",
		},
		Storage: StorageConfig{Dir: "./storage"},
		Auth: AuthConfig{
			JWTExpire:    30 * 24 * time.Hour,
			CookieExpire: 30 * 24 * time.Hour,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		RateLimit: RateLimitConfig{
			CommandRequests: 100,
			CommandWindow:   time.Minute,
			GlobalRequests:  100,
			GlobalWindow:    15 * time.Minute,
		},
		Mail: MailConfig{
			FromName:  "Dareon2.0",
			FromEmail: "noreply@dareon.io",
			ClientURL: "http://localhost:3000",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and env.
func Load(path string, env environment.Source) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(env)
	return cfg, nil
}

func (c *Config) applyEnv(env environment.Source) {
	c.Server.Port = env.IntOr("PORT", c.Server.Port)
	c.Server.Environment = env.StringOr("NODE_ENV", c.Server.Environment)
	c.Server.PruneInterval = env.DurationOr("PRUNE_INTERVAL", c.Server.PruneInterval)

	c.Database.Driver = env.StringOr("DATABASE_DRIVER", c.Database.Driver)
	c.Database.URL = env.StringOr("DATABASE_URL", c.Database.URL)

	c.Storage.Dir = env.StringOr("STORAGE_DIR", c.Storage.Dir)

	c.Auth.JWTSecret = env.StringOr("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTExpire = env.DurationOr("JWT_EXPIRE", c.Auth.JWTExpire)
	c.Auth.CookieExpire = env.DurationOr("JWT_COOKIE_EXPIRE", c.Auth.CookieExpire)

	c.MasterKey = env.StringOr("MASTER_KEY", c.MasterKey)

	c.Log.Level = env.StringOr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = env.StringOr("LOG_FORMAT", c.Log.Format)
	c.Log.Dir = env.StringOr("LOG_DIR", c.Log.Dir)

	c.RateLimit.CommandRequests = env.IntOr("RATE_LIMIT_COMMAND_REQUESTS", c.RateLimit.CommandRequests)
	c.RateLimit.CommandWindow = env.DurationOr("RATE_LIMIT_COMMAND_WINDOW", c.RateLimit.CommandWindow)
	c.RateLimit.GlobalRequests = env.IntOr("RATE_LIMIT_GLOBAL_REQUESTS", c.RateLimit.GlobalRequests)
	c.RateLimit.GlobalWindow = env.DurationOr("RATE_LIMIT_GLOBAL_WINDOW", c.RateLimit.GlobalWindow)

	c.Mail.FromName = env.StringOr("FROM_NAME", c.Mail.FromName)
	c.Mail.FromEmail = env.StringOr("FROM_EMAIL", c.Mail.FromEmail)
	c.Mail.ClientURL = env.StringOr("CLIENT_URL", c.Mail.ClientURL)
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// MasterKeyBytes decodes MasterKey.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	return crypto.ParseMasterKey(c.MasterKey)
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.JWTExpire <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRE must be positive"))
	}
	if _, err := c.MasterKeyBytes(); err != nil {
		errs = append(errs, fmt.Errorf("MASTER_KEY: %w", err))
	}
	if _, err := store.ParseDialect(c.Database.Driver); err != nil {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER: %w", err))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Storage.Dir == "" {
		errs = append(errs, errors.New("STORAGE_DIR is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Server.Port))
	}
	if c.RateLimit.CommandRequests <= 0 || c.RateLimit.GlobalRequests <= 0 {
		errs = append(errs, errors.New("rate limit request counts must be positive"))
	}
	return errors.Join(errs...)
}
