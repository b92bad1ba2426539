// Package config loads crewclock settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/sadopc/crewclock/internal/model"
)

// EnvPrefix namespaces environment overrides, e.g. CREWCLOCK_API_BASE_URL.
const EnvPrefix = "CREWCLOCK"

type APIConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// SessionConfig fills principal fields the token does not carry.
type SessionConfig struct {
	EmployeeID   string `mapstructure:"employee_id" yaml:"employee_id"`
	DepartmentID string `mapstructure:"department_id" yaml:"department_id"`
	Role         string `mapstructure:"role" yaml:"role"`
}

type DisplayConfig struct {
	DefaultView string `mapstructure:"default_view" yaml:"default_view"`
}

type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Level string `mapstructure:"level" yaml:"level"`
}

type SandboxConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Token     string `mapstructure:"token" yaml:"token"`
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
}

// Dir returns ~/.config/crewclock, or the working directory when the user
// config dir is unknown.
func Dir() string {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(cfg, "crewclock")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout_sec", 15)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("session.employee_id", "")
	v.SetDefault("session.department_id", "")
	v.SetDefault("session.role", string(model.RoleEmployee))
	v.SetDefault("display.default_view", string(model.ViewWeek))
	v.SetDefault("store.path", filepath.Join(Dir(), "crewclock.db"))
	v.SetDefault("log.path", filepath.Join(Dir(), "crewclock.log"))
	v.SetDefault("log.level", "info")
	v.SetDefault("sandbox.addr", ":8080")
	v.SetDefault("sandbox.token", "")
	v.SetDefault("sandbox.rate_limit", 0)
}

// Load reads the YAML file at path. A missing file yields the defaults.
// CREWCLOCK_* environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the app.
func (c *Config) Validate() error {
	if _, err := model.ParseView(c.Display.DefaultView); err != nil {
		return fmt.Errorf("display.default_view: %w", err)
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url must not be empty")
	}
	if c.API.TimeoutSec <= 0 {
		return errors.New("api.timeout_sec must be positive")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must not be negative")
	}
	return nil
}

// Save writes cfg to path as YAML, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("session", cfg.Session)
	v.Set("display", cfg.Display)
	v.Set("store", cfg.Store)
	v.Set("log", cfg.Log)
	v.Set("sandbox", cfg.Sandbox)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
