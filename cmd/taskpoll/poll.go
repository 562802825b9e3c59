package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/taskpoll"
)

// pollCmd polls one task status URL until it finishes.
var pollCmd = &cobra.Command{
	Use:   "poll <poll-url>",
	Short: "Poll a task until it finishes",
	Long: `Poll a task status URL until the task succeeds, fails or times out.

Each progress payload is printed as it arrives. On success the task result
is printed as JSON on the last line.

Example:
  taskpoll poll https://app.example.com/tasks/abc/
  taskpoll poll --no-timeout -H "Cookie: sessionid=..." https://app.example.com/tasks/abc/`,
	Args: cobra.ExactArgs(1),
	RunE: runPoll,
}

// performCmd starts a task and polls it.
var performCmd = &cobra.Command{
	Use:   "perform <start-url>",
	Short: "Start a task, then poll it",
	Long: `POST to a start URL that answers {"poll_url": "..."} and poll the
returned URL until the task finishes.

Example:
  taskpoll perform https://app.example.com/packages/foo/import/`,
	Args: cobra.ExactArgs(1),
	RunE: runPerform,
}

func init() {
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(performCmd)

	pollCmd.Flags().Bool("no-timeout", false, "poll until the task finishes, however long it takes")
}

func runPoll(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	client, err := newHTTPClient()
	if err != nil {
		return err
	}
	p, err := newPoller(cmd, client, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	noTimeout, _ := cmd.Flags().GetBool("no-timeout")
	result, err := p.PollTask(ctx, args[0], noTimeout, progressPrinter(cmd))
	return printOutcome(cmd, result, err)
}

func runPerform(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	client, err := newHTTPClient()
	if err != nil {
		return err
	}
	p, err := newPoller(cmd, client, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := p.PerformTask(ctx, args[0])
	return printOutcome(cmd, result, err)
}

// printOutcome prints the final line of a poll and maps the outcome to the
// command error.
func printOutcome(cmd *cobra.Command, result json.RawMessage, err error) error {
	out := cmd.OutOrStdout()

	var taskErr *taskpoll.TaskError
	switch {
	case err == nil:
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		fmt.Fprintf(out, "%s %s\n", colorStatus(taskpoll.StatusSuccess), result)
		return nil
	case errors.As(err, &taskErr):
		fmt.Fprintf(out, "%s %s\n", colorStatus(taskErr.Status), taskErr.Error())
		return err
	case errors.Is(err, taskpoll.ErrTimeout):
		fmt.Fprintf(out, "%s\n", red("TIMEOUT"))
		return err
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("interrupted: %w", err)
	default:
		return err
	}
}
