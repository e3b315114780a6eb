package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/loykin/tether/internal/backend"
	"github.com/loykin/tether/internal/env"
	"github.com/loykin/tether/internal/logger"
)

// EnvPrefix namespaces environment overrides, e.g. TETHER_BACKEND_INSTALL_DIR.
const EnvPrefix = "TETHER"

// Config represents the top-level TOML structure.
type Config struct {
	Backend BackendConfig `toml:"backend" mapstructure:"backend"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type BackendConfig struct {
	InstallDir       string        `toml:"install_dir" mapstructure:"install_dir"`
	Executable       string        `toml:"executable" mapstructure:"executable"`
	Args             []string      `toml:"args" mapstructure:"args"`
	Env              []string      `toml:"env" mapstructure:"env"`
	EnvFiles         []string      `toml:"env_files" mapstructure:"env_files"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout" mapstructure:"handshake_timeout"`
	KillWait         time.Duration `toml:"kill_wait" mapstructure:"kill_wait"`
	PIDFile          string        `toml:"pidfile" mapstructure:"pidfile"`
	PingPath         string        `toml:"ping_path" mapstructure:"ping_path"`
	SampleInterval   time.Duration `toml:"sample_interval" mapstructure:"sample_interval"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// FlagBinding maps a command line flag onto a config key.
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.install_dir", "")
	v.SetDefault("backend.executable", "")
	v.SetDefault("backend.args", []string{})
	v.SetDefault("backend.env", []string{})
	v.SetDefault("backend.env_files", []string{})
	v.SetDefault("backend.handshake_timeout", backend.DefaultHandshakeTimeout)
	v.SetDefault("backend.kill_wait", backend.DefaultKillWait)
	v.SetDefault("backend.pidfile", "")
	v.SetDefault("backend.ping_path", backend.DefaultPingPath)
	v.SetDefault("backend.sample_interval", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.stdout", "")
	v.SetDefault("log.stderr", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("server.listen", "127.0.0.1:7777")
	v.SetDefault("server.base_path", "/api")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", "")
}

// Load reads the TOML file at path (optional) and applies overrides in
// viper's order: flags, then TETHER_* environment, then the file, then defaults.
func Load(path string, flags ...FlagBinding) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	for _, b := range flags {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", b.Flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Backend.InstallDir) == "" {
		errs = append(errs, errors.New("backend.install_dir is required"))
	}
	for name, d := range map[string]time.Duration{
		"backend.handshake_timeout": c.Backend.HandshakeTimeout,
		"backend.kill_wait":         c.Backend.KillWait,
		"backend.sample_interval":   c.Backend.SampleInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DSN) == "" {
		errs = append(errs, errors.New("history.dsn is required when history is enabled"))
	}
	return errors.Join(errs...)
}

// Resolver returns the install dir resolver for backend.install_dir.
func (c *Config) Resolver() backend.Resolver {
	return backend.ParseResolver(c.Backend.InstallDir)
}

// BackendSpec converts the backend and log sections into a launch spec. The
// install dir is resolved and the environment merged here.
func (c *Config) BackendSpec() (backend.Spec, error) {
	dir, err := c.Resolver().InstallDir()
	if err != nil {
		return backend.Spec{}, fmt.Errorf("resolve install dir: %w", err)
	}
	e := env.New()
	for _, f := range c.Backend.EnvFiles {
		if err := e.LoadFile(f); err != nil {
			return backend.Spec{}, fmt.Errorf("load env file: %w", err)
		}
	}
	spec := backend.Spec{
		InstallDir:       dir,
		Executable:       c.Backend.Executable,
		Args:             c.Backend.Args,
		Env:              e.Merge(c.Backend.Env),
		HandshakeTimeout: c.Backend.HandshakeTimeout,
		KillWait:         c.Backend.KillWait,
		PIDFile:          c.Backend.PIDFile,
		PingPath:         c.Backend.PingPath,
		SampleInterval:   c.Backend.SampleInterval,
		Log:              c.Log.mirror(),
	}
	return spec.WithDefaults(), nil
}

// LoggerSettings returns the host logger settings.
func (c *Config) LoggerSettings() logger.Settings {
	s := logger.Settings{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Color:  c.Log.Color,
		File:   c.Log.File,
	}
	if c.Log.File != "" {
		s.Config = c.Log.mirror()
	}
	return s
}

func (l LogConfig) mirror() logger.Config {
	return logger.Config{
		Dir:        l.Dir,
		StdoutPath: l.Stdout,
		StderrPath: l.Stderr,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}
