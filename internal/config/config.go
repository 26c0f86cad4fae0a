// Package config loads CLI and server settings from flags, CONSULTFORM_*
// environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "CONSULTFORM"

// Keys understood by Load.
const (
	KeyTemplateSource = "template_source"
	KeyTiersFile      = "tiers_file"
	KeyOverridesFile  = "overrides_file"
	KeyPresetFile     = "preset_file"
	KeySpecialty      = "specialty"
	KeyPrefsDSN       = "prefs_dsn"
	KeyLogLevel       = "log_level"
	KeyLogPretty      = "log_pretty"
	KeyHTTPTimeout    = "http_timeout"
	KeyListen         = "listen"
	KeySessionTTL     = "session_ttl"
	KeyMaxSessions    = "max_sessions"
)

// Config is the resolved configuration.
type Config struct {
	TemplateSource string        `mapstructure:"template_source"`
	TiersFile      string        `mapstructure:"tiers_file"`
	OverridesFile  string        `mapstructure:"overrides_file"`
	PresetFile     string        `mapstructure:"preset_file"`
	Specialty      string        `mapstructure:"specialty"`
	PrefsDSN       string        `mapstructure:"prefs_dsn"`
	LogLevel       string        `mapstructure:"log_level"`
	LogPretty      bool          `mapstructure:"log_pretty"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	Listen         string        `mapstructure:"listen"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	MaxSessions    int           `mapstructure:"max_sessions"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)
	v.SetDefault(KeyHTTPTimeout, 10*time.Second)
	v.SetDefault(KeyListen, ":8080")
	v.SetDefault(KeyPrefsDSN, "")
	v.SetDefault(KeySessionTTL, 30*time.Minute)
	v.SetDefault(KeyMaxSessions, 1000)

	// Bind env vars explicitly so Unmarshal picks them up.
	for _, key := range []string{
		KeyTemplateSource, KeyTiersFile, KeyOverridesFile, KeyPresetFile, KeySpecialty,
		KeyPrefsDSN, KeyLogLevel, KeyLogPretty, KeyHTTPTimeout, KeyListen,
		KeySessionTTL, KeyMaxSessions,
	} {
		_ = v.BindEnv(key)
	}
	return v
}

// BindFlags binds every flag in flags whose name maps to a key ("tiers-file"
// binds tiers_file).
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("config: bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load reads the optional config file and unmarshals v. An empty path skips
// the file; a named file that cannot be read is an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.TemplateSource = strings.TrimSpace(cfg.TemplateSource)
	cfg.Specialty = strings.ToLower(strings.TrimSpace(cfg.Specialty))
	return cfg, nil
}

// Validate checks the settings a command needs before it starts.
func (c *Config) Validate() error {
	if c.TemplateSource == "" {
		return fmt.Errorf("config: %s is required (flag --template-source or %s_TEMPLATE_SOURCE)", KeyTemplateSource, EnvPrefix)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("config: %s must not be negative", KeyHTTPTimeout)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("config: %s must not be negative", KeySessionTTL)
	}
	return nil
}
