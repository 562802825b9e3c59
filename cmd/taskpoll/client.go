package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/net/publicsuffix"

	"github.com/jpalmerr/taskpoll"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// newLogger creates a JSON logger for CLI use.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// newHTTPClient returns a client with a cookie jar, so a session cookie set by
// one request is sent with the next, as a browser would.
func newHTTPClient() (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &http.Client{Jar: jar}, nil
}

// headerPairs parses repeated -H "Key: Value" flags into key-value pairs.
func headerPairs(cmd *cobra.Command) ([]string, error) {
	raw, _ := cmd.Flags().GetStringArray("header")

	pairs := make([]string, 0, len(raw)*2)
	for _, h := range raw {
		key, value, ok := strings.Cut(h, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q (expected \"Key: Value\")", h)
		}
		pairs = append(pairs, key, strings.TrimSpace(value))
	}
	return pairs, nil
}

// newPoller builds a poller from the global flags, sharing client.
func newPoller(cmd *cobra.Command, client *http.Client, logger *slog.Logger) (*taskpoll.Poller, error) {
	headers, err := headerPairs(cmd)
	if err != nil {
		return nil, err
	}

	opts := []taskpoll.Option{
		taskpoll.WithLogger(logger),
		taskpoll.WithHTTPClient(client),
		taskpoll.WithHeaders(headers...),
	}
	if d, _ := cmd.Flags().GetDuration("request-timeout"); d > 0 {
		opts = append(opts, taskpoll.WithRequestTimeout(d))
	}
	return taskpoll.New(opts...)
}

// colorStatus renders a status label in its terminal colour.
func colorStatus(s taskpoll.Status) string {
	label := strings.ToUpper(s.String())
	switch s {
	case taskpoll.StatusSuccess:
		return green(label)
	case taskpoll.StatusFailure, taskpoll.StatusRevoked:
		return red(label)
	case taskpoll.StatusProgress:
		return cyan(label)
	default:
		return yellow(label)
	}
}

// progressPrinter writes one line per progress payload.
func progressPrinter(cmd *cobra.Command) taskpoll.ProgressFunc {
	out := cmd.OutOrStdout()
	return func(p taskpoll.Payload) {
		line := colorStatus(p.Status)
		if prog, err := p.Progress(); err == nil {
			line += fmt.Sprintf(" %v/%v (%.0f%%)", prog.Current, prog.Total, prog.Percent())
			if len(prog.Running) > 0 {
				names := make([]string, len(prog.Running))
				for i, r := range prog.Running {
					names[i] = r.String()
				}
				line += " " + gray(strings.Join(names, ", "))
			}
		}
		fmt.Fprintln(out, line)
	}
}
