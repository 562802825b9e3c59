package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/taskpoll/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a taskpoll configuration file without starting the monitor.

This command parses the YAML, expands environment variables, validates all
fields and resolves every task to its poll URL. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  taskpoll validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	tasks, err := config.BuildTasks(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	untimed := 0
	for _, t := range tasks {
		if t.TimeoutDisabled() {
			untimed++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:            %d\n", cfg.Port)
	fmt.Fprintf(out, "  Max concurrency: %d\n", cfg.MaxConcurrency)
	fmt.Fprintf(out, "  Max attempts:    %d\n", cfg.MaxAttempts)
	fmt.Fprintf(out, "  Request timeout: %s\n", cfg.RequestTimeout.Duration())
	fmt.Fprintf(out, "  Tasks:           %d (%d without timeout)\n", len(tasks), untimed)
	for _, t := range tasks {
		fmt.Fprintf(out, "    - %s: %s\n", t.Name(), t.URL())
	}

	return nil
}
