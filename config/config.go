package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/s0up4200/sinvoice/sinvoice"
)

// EnvPrefix prefixes every environment override, e.g. SINVOICE_API_PASSWORD
const EnvPrefix = "SINVOICE"

// Load loads the configuration from file and environment.
// Without an explicit path a missing config file is not an error, so credentials
// can come from the environment alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sinvoice"))
		}

		// Check /etc
		v.AddConfigPath("/etc/sinvoice/")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
// Every key needs a default (even empty) for AutomaticEnv to reach it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.endpoint", sinvoice.DefaultEndpoint)
	v.SetDefault("api.username", "")
	v.SetDefault("api.password", "")
	v.SetDefault("api.timeout", sinvoice.DefaultTimeout)
	v.SetDefault("api.user_agent", "")
	v.SetDefault("api.token_cache", true)

	// Output defaults
	v.SetDefault("output.format", "table")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)

	// Update defaults
	v.SetDefault("update.repository", "s0up4200/sinvoice")
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if err := cfg.API.ClientConfig().Validate(); err != nil {
		return err
	}

	if cfg.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}

	// Validate logging level
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	// Validate output format
	validOutputs := map[string]bool{
		"table": true,
		"json":  true,
	}
	if !validOutputs[cfg.Output.Format] {
		return fmt.Errorf("invalid output format: %s (must be 'table' or 'json')", cfg.Output.Format)
	}

	return nil
}
