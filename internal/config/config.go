package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"forumcore/internal/logging"
)

// Session store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds the runtime settings of the forum service. Keys match the
// environment variable names in lower case, so PORT and a config file
// entry `port` address the same setting.
type Config struct {
	Port               int    `mapstructure:"port" toml:"port"`
	DBPath             string `mapstructure:"db_path" toml:"db_path"`
	IdleTimeoutSeconds int    `mapstructure:"idle_timeout_seconds" toml:"idle_timeout_seconds"`
	Debug              bool   `mapstructure:"debug" toml:"debug"`
	CSRFCheckDisabled  bool   `mapstructure:"csrf_check_disabled" toml:"csrf_check_disabled"`
	SessionStore       string `mapstructure:"session_store" toml:"session_store"` // "sqlite" (default) or "memory"
	SweepSchedule      string `mapstructure:"sweep_schedule" toml:"sweep_schedule"`
	LogLevel           string `mapstructure:"log_level" toml:"log_level"`
	LogFile            string `mapstructure:"log_file" toml:"log_file"`
	BcryptCost         int    `mapstructure:"bcrypt_cost" toml:"bcrypt_cost"`
}

var defaults = map[string]any{
	"port":                 8080,
	"db_path":              "forum.db",
	"idle_timeout_seconds": 1200,
	"debug":                false,
	"csrf_check_disabled":  false,
	"session_store":        StoreSQLite,
	"sweep_schedule":       "@every 1m",
	"log_level":            "info",
	"log_file":             "",
	"bcrypt_cost":          bcrypt.DefaultCost,
}

// Load reads configuration from, in increasing precedence: built-in
// defaults, the optional config file (YAML or TOML, by extension), a .env
// file in the working directory, and the process environment.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("idle_timeout_seconds must be positive, got %d", c.IdleTimeoutSeconds)
	}
	switch c.SessionStore {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown session_store %q (want %q or %q)", c.SessionStore, StoreSQLite, StoreMemory)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost %d out of range [%d, %d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// IdleTimeout returns the session idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// SkipCSRF reports whether CSRF checks are bypassed. The bypass is only
// honoured in debug mode.
func (c *Config) SkipCSRF() bool {
	return c.Debug && c.CSRFCheckDisabled
}

// Level returns the parsed log level. Validate has already rejected
// unknown names.
func (c *Config) Level() slog.Level {
	l, _ := logging.ParseLevel(c.LogLevel)
	return l
}

// WriteTOML encodes the effective configuration to w.
func (c *Config) WriteTOML(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
