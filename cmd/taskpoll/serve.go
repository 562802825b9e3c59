package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/taskpoll"
	"github.com/jpalmerr/taskpoll/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the task monitor.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Monitor configured tasks over HTTP",
	Long: `Start the task monitor.

The monitor will:
  - Load configuration from the specified YAML file
  - Poll every configured task until it finishes
  - Serve task states on /api/tasks, live updates on /api/sse and
    Prometheus metrics on /metrics

The server runs until interrupted (Ctrl+C) or receives SIGTERM, even after
every task has finished.

Example:
  taskpoll serve -c config.yaml
  taskpoll serve --config /etc/taskpoll/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"tasks", len(cfg.Tasks),
		"max_concurrency", cfg.MaxConcurrency,
	)
	logger.Info("starting server",
		"port", cfg.Port,
		"request_timeout", cfg.RequestTimeout.Duration().String(),
	)

	tasks, err := config.BuildTasks(cfg)
	if err != nil {
		return fmt.Errorf("failed to build tasks: %w", err)
	}

	client, err := newHTTPClient()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pollerOpts := append(config.PollerOptions(cfg),
		taskpoll.WithLogger(logger),
		taskpoll.WithHTTPClient(client),
		taskpoll.WithMetrics(taskpoll.MustNewMetrics(registry)),
	)
	p, err := taskpoll.New(pollerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}
	defer p.Close()

	m, err := taskpoll.NewMonitor(
		taskpoll.WithTasks(tasks...),
		taskpoll.WithPort(cfg.Port),
		taskpoll.WithMaxConcurrency(cfg.MaxConcurrency),
		taskpoll.WithMonitorLogger(logger),
		taskpoll.WithPoller(p),
		taskpoll.WithRegistry(registry),
	)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- m.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
