// Package config loads the previewer configuration: an optional YAML file
// with ${VAR} expansion, overlaid by environment variables, then defaulted.
// Role specific validation happens separately at process start.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// Load reads configPath (skipped when empty), overlays the environment and
// applies defaults. .env files in the working directory are loaded first.
func Load(configPath string) (*Config, error) {
	for _, p := range loadEnvFiles() {
		slog.Debug("Loaded environment file", "path", p)
	}

	var cfg Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
				WithContext("path", configPath).Fatal().Build()
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").
				WithContext("path", configPath).Fatal().Build()
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	var cfg Config
	_ = applyDefaults(&cfg)
	return &cfg
}

func invalidEnv(key, value string, err error) error {
	return ferrors.ConfigError(fmt.Sprintf("invalid value for %s", key)).
		WithCause(err).WithContext("value", value).Build()
}
