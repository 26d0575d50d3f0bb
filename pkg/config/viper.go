package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable override
// (RECALL_API_LISTEN, RECALL_PIPELINE_MAX_RETRIES, ...).
const EnvPrefix = "RECALL"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// found via dotdir resolution, and binds environment variables
// with the RECALL_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	v.AddConfigPath(target)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	for _, key := range orderedKeys {
		info := configKeys[key]
		if info.list {
			v.SetDefault(key, splitList(info.get(d)))
			continue
		}
		v.SetDefault(key, info.get(d))
	}
}

// FromViper resolves a Config from every layer viper knows about.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{Version: v.GetInt("version")}

	for _, key := range orderedKeys {
		info := configKeys[key]

		var raw string
		if info.list {
			// Env and flag values arrive as "a,b"; file values as arrays.
			if s, ok := v.Get(key).(string); ok {
				raw = s
			} else {
				raw = strings.Join(v.GetStringSlice(key), ",")
			}
		} else {
			raw = v.GetString(key)
		}

		if err := info.set(cfg, raw); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
