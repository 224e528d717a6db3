package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix      = "OVERLAP_SERVER"
	envKeySep      = "_"
	defaultAddr    = ":8443"
	defaultSetName = "default"
)

// config holds everything overlap-server needs to start, loaded from an
// optional YAML file plus OVERLAP_SERVER_-prefixed environment variables
// (Sumatoshi-tech-codefang/internal/config's LoadConfig shape, trimmed to
// this binary's one process).
type config struct {
	Addr           string `mapstructure:"addr"`
	DatabaseURL    string `mapstructure:"database_url"`
	ServerSetName  string `mapstructure:"server_set_name"`
	ServerSetFile  string `mapstructure:"server_set_file"`
	OPRFKeyDecimal string `mapstructure:"oprf_key"`
	AuthTokenHash  string `mapstructure:"auth_token_hash"`
}

func (c *config) Validate() error {
	if c.ServerSetFile == "" {
		return errors.New("server_set_file is required (path to a file of newline-separated integers)")
	}
	if c.OPRFKeyDecimal == "" {
		return errors.New("oprf_key is required (decimal secret scalar)")
	}
	return nil
}

// loadConfig mirrors LoadConfig's file-then-env-then-default layering:
// configPath (if set) is read as YAML, OVERLAP_SERVER_* env vars override
// it, and field defaults fill in the rest.
func loadConfig(configPath string) (*config, error) {
	v := viper.New()

	v.SetDefault("addr", defaultAddr)
	v.SetDefault("server_set_name", defaultSetName)
	// viper's AutomaticEnv only binds a key for Unmarshal once viper knows
	// the key exists; registering empty defaults for the rest lets
	// OVERLAP_SERVER_DATABASE_URL etc. reach config without a YAML file.
	v.SetDefault("database_url", "")
	v.SetDefault("server_set_file", "")
	v.SetDefault("oprf_key", "")
	v.SetDefault("auth_token_hash", "")

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySep))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
