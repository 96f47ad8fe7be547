// Package config loads the server's runtime settings: defaults, then an
// optional config file, then ZW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "ZW"

type Config struct {
	Addr      string `mapstructure:"addr"`
	DataDir   string `mapstructure:"data_dir"`
	MatchID   string `mapstructure:"match_id"`
	ConfigDir string `mapstructure:"config_dir"`
	Tuning    string `mapstructure:"tuning"`
	Map       string `mapstructure:"map"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	DisableDB          bool   `mapstructure:"disable_db"`
	Snapshot           string `mapstructure:"snapshot"`
	LoadLatestSnapshot bool   `mapstructure:"load_latest_snapshot"`

	EnableAdminHTTP bool `mapstructure:"enable_admin_http"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("match_id", "match_1")
	v.SetDefault("config_dir", "./configs")
	v.SetDefault("tuning", "")
	v.SetDefault("map", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("disable_db", false)
	v.SetDefault("snapshot", "")
	v.SetDefault("load_latest_snapshot", true)
	v.SetDefault("enable_admin_http", true)
}

// New returns a viper instance with defaults and env binding. Callers may
// layer flag values on top with Set before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (if non-empty) into v and decodes the result. The file
// type comes from its extension (yaml, json, toml).
func Load(v *viper.Viper, path string) (Config, error) {
	var cfg Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.fillPaths()
	return cfg, cfg.Validate()
}

func (c *Config) fillPaths() {
	if strings.TrimSpace(c.Tuning) == "" {
		c.Tuning = filepath.Join(c.ConfigDir, "tuning.yaml")
	}
	if strings.TrimSpace(c.Map) == "" {
		c.Map = filepath.Join(c.ConfigDir, "map.yaml")
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is empty"))
	}
	if strings.TrimSpace(c.MatchID) == "" || strings.ContainsAny(c.MatchID, `/\`) {
		errs = append(errs, fmt.Errorf("invalid match_id %q", c.MatchID))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// MatchDir is where a match keeps its events, snapshots and index.
func (c Config) MatchDir() string {
	return filepath.Join(c.DataDir, "matches", c.MatchID)
}
