// Package config provides configuration management for the reshape CLI.
package config

import "time"

// CLIConfig holds settings shared by the reshape subcommands.
type CLIConfig struct {
	ErrorFormat  string
	NDJSON       bool
	DatabaseURL  string
	ContextFile  string
	QueryTimeout time.Duration
}

// DefaultCLIConfig returns configuration with default values.
func DefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		ErrorFormat:  "text",
		NDJSON:       false,
		DatabaseURL:  "",
		ContextFile:  "",
		QueryTimeout: 5 * time.Second,
	}
}
