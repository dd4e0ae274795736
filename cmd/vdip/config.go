package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/intentlab/vdip/internal/config"
)

// loadConfig reads the config file named by the --config flag, layered over
// the built-in defaults. A missing file is not an error: defaults apply.
func loadConfig() (config.Config, error) {
	cfg := config.Default()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}

	settings := viper.AllSettings()
	delete(settings, "config")
	if err := config.ValidateSettings(settings); err != nil {
		return config.Config{}, err
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
