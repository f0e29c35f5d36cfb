// Package config provides Viper-based configuration loading for the raid service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// StorageConfig selects the session store backend.
type StorageConfig struct {
	// Backend is "postgres" for durable storage or "memory" for a
	// process-local store (development and tests only).
	Backend string `mapstructure:"backend"`
}

// RaidConfig holds turn-coordination tunables.
type RaidConfig struct {
	// SkipWindow is how long the current turn holder has to act before a
	// forced skip advances the turn.
	SkipWindow time.Duration `mapstructure:"skip_window"`
	// SessionTTL is the lifetime of a standalone session before it expires.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// SweepInterval is how often the expiration sweeper scans active sessions.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// MaxParticipants caps session membership for non-privileged joiners.
	MaxParticipants int `mapstructure:"max_participants"`
	// MaxWriteRetries bounds optimistic-write retry attempts per operation.
	MaxWriteRetries int `mapstructure:"max_write_retries"`
}

// ContentConfig holds filesystem paths for gameplay content.
type ContentConfig struct {
	// MonstersDir is the directory of monster catalog YAML files.
	MonstersDir string `mapstructure:"monsters_dir"`
	// ScriptsDir is the directory of Lua loot-hook scripts; empty disables hooks.
	ScriptsDir string `mapstructure:"scripts_dir"`
	// ActorsFile is the YAML roster of actors the engine serves.
	ActorsFile string `mapstructure:"actors_file"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Raid     RaidConfig     `mapstructure:"raid"`
	Content  ContentConfig  `mapstructure:"content"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Storage.Backend == "postgres" {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateRaid(c.Raid); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	validBackends := map[string]bool{"postgres": true, "memory": true}
	if !validBackends[s.Backend] {
		return fmt.Errorf("storage.backend must be one of [postgres, memory], got %q", s.Backend)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRaid(r RaidConfig) error {
	var errs []string
	if r.SkipWindow <= 0 {
		errs = append(errs, fmt.Sprintf("raid.skip_window must be > 0, got %s", r.SkipWindow))
	}
	if r.SessionTTL <= 0 {
		errs = append(errs, fmt.Sprintf("raid.session_ttl must be > 0, got %s", r.SessionTTL))
	}
	if r.SweepInterval <= 0 {
		errs = append(errs, fmt.Sprintf("raid.sweep_interval must be > 0, got %s", r.SweepInterval))
	}
	if r.MaxParticipants < 1 {
		errs = append(errs, fmt.Sprintf("raid.max_participants must be >= 1, got %d", r.MaxParticipants))
	}
	if r.MaxWriteRetries < 1 {
		errs = append(errs, fmt.Sprintf("raid.max_write_retries must be >= 1, got %d", r.MaxWriteRetries))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with RAID_ prefix
	v.SetEnvPrefix("RAID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "postgres")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "raid")
	v.SetDefault("database.password", "raid")
	v.SetDefault("database.name", "raid")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("raid.skip_window", "60s")
	v.SetDefault("raid.session_ttl", "30m")
	v.SetDefault("raid.sweep_interval", "1m")
	v.SetDefault("raid.max_participants", 10)
	v.SetDefault("raid.max_write_retries", 3)

	v.SetDefault("content.monsters_dir", "content/monsters")
	v.SetDefault("content.scripts_dir", "content/scripts/loot")
	v.SetDefault("content.actors_file", "content/actors.yaml")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
