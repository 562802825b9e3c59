// Package main is the entry point for the taskpoll CLI.
//
// The CLI exercises the library against a live application: it can poll a
// single task, start and follow one, drive a task page until it reloads,
// cast a review vote, or run the task monitor from a YAML config.
//
// Usage:
//
//	taskpoll poll https://app.example.com/tasks/abc/   # Poll one task
//	taskpoll perform https://app.example.com/import/  # Start a task, then poll it
//	taskpoll watch https://app.example.com/packages/foo/
//	taskpoll vote https://app.example.com/packages/foo/ yes
//	taskpoll serve -c config.yaml                       # Monitor tasks over HTTP
//	taskpoll validate -c config.yaml                    # Validate configuration
//	taskpoll version                                    # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "taskpoll",
	Short: "Follow asynchronous server tasks",
	Long: `taskpoll follows server-side asynchronous tasks by polling their
status endpoints with a linear backoff.

Quick start:
  1. Start a task:   taskpoll perform https://app.example.com/import/
  2. Or poll one:    taskpoll poll https://app.example.com/tasks/abc/
  3. Or monitor many from a config file:
       taskpoll serve -c taskpoll.yaml
     and query http://localhost:8080/api/tasks

Example config:
  base_url: https://app.example.com
  tasks:
    - name: import
      id: 0d9c6f1e`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this taskpoll binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "taskpoll %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringArrayP("header", "H", nil, `extra request header "Key: Value" (repeatable)`)
	rootCmd.PersistentFlags().Duration("request-timeout", 0, "per-request timeout (default 10s)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log every poll attempt")
}
