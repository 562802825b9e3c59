package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/taskpoll/page"
)

// watchCmd drives a task page the way the browser does.
var watchCmd = &cobra.Command{
	Use:   "watch <page-url>",
	Short: "Follow the task shown on a page, then reload it",
	Long: `Load a page, follow the task named by its data-task-id attribute
without a timeout, print each rendered status, and reload the page once the
task finishes.

A page without a task id is loaded once and left alone.

Example:
  taskpoll watch https://app.example.com/packages/foo/`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	c, err := page.NewController(p,
		page.WithHTTPClient(client),
		page.WithLogger(logger),
		page.WithRenderHook(func(_ *goquery.Document, v page.View) {
			status, details, _ := strings.Cut(v.StatusText, "\n\n")
			line := status
			if v.ShowProgress {
				line = fmt.Sprintf("%s %s", cyan(fmt.Sprintf("[%3.0f%%]", v.Percent)), status)
			}
			if details != "" {
				line += " " + gray(details)
			}
			fmt.Fprintln(out, line)
		}),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	doc, err := c.Run(ctx, args[0])
	if err != nil {
		return err
	}

	if _, ok := page.FindTaskID(doc); ok {
		fmt.Fprintln(out, yellow("page reloaded; a task is still pending"))
		return nil
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	fmt.Fprintf(out, "%s %s\n", green("page ready"), title)
	return nil
}
