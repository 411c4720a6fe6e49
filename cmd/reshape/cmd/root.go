package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reshapehq/reshape/internal/core/config"
)

const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	cliConfig  *config.CLIConfig
)

var rootCmd = &cobra.Command{
	Use:           "reshape",
	Short:         "Declarative CSV/JSON record transformation",
	Long:          `Reshape evaluates YAML mapping rules against CSV or JSON records and emits structured JSON.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			return exitWith(1, "")
		}
		cliConfig = cfg
		if dbURL == "" {
			dbURL = cfg.DatabaseURL
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "ruleset catalog URL (sqlite://path or postgres://...)")
}

// effectiveErrorFormat resolves flag > config > default precedence for the
// per-command --error-format flag.
func effectiveErrorFormat(cmd *cobra.Command, flagValue string) string {
	if cmd.Flags().Changed("error-format") {
		return flagValue
	}
	if cliConfig != nil && cliConfig.ErrorFormat != "" {
		return cliConfig.ErrorFormat
	}
	return flagValue
}

func Execute() error {
	return rootCmd.Execute()
}

// exitError carries a process exit code through cobra.
// 2 = static validation failure, 3 = runtime failure, 1 = other I/O.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string {
	return e.message
}

func exitWith(code int, message string) error {
	return &exitError{code: code, message: message}
}

// ExitCode maps an Execute error to the process exit code.
func ExitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return 1
}
