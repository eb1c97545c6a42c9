package config

import (
	"time"

	"github.com/s0up4200/sinvoice/sinvoice"
)

// Config represents the complete configuration structure
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Output  OutputConfig  `mapstructure:"output"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Logging LoggingConfig `mapstructure:"logging"`
	Update  UpdateConfig  `mapstructure:"update"`
}

// APIConfig holds S-Invoice connection details
type APIConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
	TokenCache bool          `mapstructure:"token_cache"`
}

// ClientConfig converts the API section into the client library's configuration
func (a APIConfig) ClientConfig() sinvoice.Config {
	return sinvoice.Config{
		Endpoint: a.Endpoint,
		Username: a.Username,
		Password: a.Password,
	}
}

// OutputConfig controls how command results are printed
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// FilterConfig maps preset names to invoice filter expressions
type FilterConfig map[string]string

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// UpdateConfig contains self-update settings
type UpdateConfig struct {
	Repository string `mapstructure:"repository"`
}
