package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*CLIConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultCLIConfig
	v.SetDefault("cli.error_format", "text")
	v.SetDefault("cli.ndjson", false)
	v.SetDefault("cli.db_url", "")
	v.SetDefault("cli.context_file", "")
	v.SetDefault("cli.query_timeout", "5s")

	// Bind environment variables with RESHAPE_ prefix
	v.SetEnvPrefix("RESHAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &CLIConfig{
		ErrorFormat:  v.GetString("cli.error_format"),
		NDJSON:       v.GetBool("cli.ndjson"),
		DatabaseURL:  v.GetString("cli.db_url"),
		ContextFile:  v.GetString("cli.context_file"),
		QueryTimeout: v.GetDuration("cli.query_timeout"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks the error format and timeout bounds.
func validateConfig(cfg *CLIConfig) error {
	if cfg.ErrorFormat != "text" && cfg.ErrorFormat != "json" {
		return fmt.Errorf("error_format must be text or json, got %q", cfg.ErrorFormat)
	}
	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive, got %v", cfg.QueryTimeout)
	}
	return nil
}
