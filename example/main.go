package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jpalmerr/taskpoll"
	"github.com/jpalmerr/taskpoll/page"
	"github.com/jpalmerr/taskpoll/vote"
)

const baseURL = "http://localhost:9999"

func main() {
	// start mock server (see mock_server.go)
	go StartMockTaskServer(":9999")
	time.Sleep(100 * time.Millisecond)

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// one cookie jar shared by every component, like a browser session
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	p, err := taskpoll.New(taskpoll.WithHTTPClient(client))
	if err != nil {
		slog.Error("failed to create poller", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	// 1. start a task and poll it to completion
	result, err := p.PerformTask(ctx, baseURL+"/import/")
	if err != nil {
		slog.Warn("import did not succeed", "error", err)
	} else {
		fmt.Printf("import finished: %s\n", result)
	}

	// 2. start another import and follow it through the package page
	resp, err := client.Post(baseURL+"/import/", "application/json", nil)
	if err != nil {
		slog.Error("failed to start import", "error", err)
		os.Exit(1)
	}
	_ = resp.Body.Close()
	c, err := page.NewController(p,
		page.WithHTTPClient(client),
		page.WithRenderHook(func(_ *goquery.Document, v page.View) {
			fmt.Printf("  %q\n", v.StatusText)
		}),
	)
	if err != nil {
		slog.Error("failed to create page controller", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	doc, err := c.Run(ctx, baseURL+"/packages/demo/")
	if err != nil {
		slog.Error("page failed", "error", err)
		os.Exit(1)
	}

	// 3. vote on the review shown on the reloaded page
	widgets, err := vote.Find(doc, baseURL+"/packages/demo/")
	if err != nil || len(widgets) == 0 {
		slog.Error("no vote widget on page", "error", err)
		os.Exit(1)
	}
	voter, err := vote.NewVoter(vote.WithHTTPClient(client))
	if err != nil {
		slog.Error("failed to create voter", "error", err)
		os.Exit(1)
	}
	voter.Cast(ctx, widgets[0], true)
	voter.Wait()
	voter.Cast(ctx, widgets[0], false)
	voter.Close()
	fmt.Printf("votes: yes=%d no=%d\n", widgets[0].Count(true), widgets[0].Count(false))

	// 4. monitor several tasks over HTTP
	nightly, _ := taskpoll.NewTask("nightly", baseURL+"/tasks/nightly/")
	weekly, _ := taskpoll.NewTask("weekly", baseURL+"/tasks/weekly/",
		taskpoll.WithLabels("schedule", "weekly"),
		taskpoll.WithoutTimeout(),
	)

	m, err := taskpoll.NewMonitor(
		taskpoll.WithTasks(nightly, weekly),
		taskpoll.WithPort(8080),
		taskpoll.WithStateCallback(func(s taskpoll.TaskState) {
			if s.Done {
				fmt.Printf("  %s finished: %s\n", s.Name, s.Status)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create monitor", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Task monitor on http://localhost:8080")
	fmt.Println("    /api/tasks   task states")
	fmt.Println("    /api/sse     live updates")
	fmt.Println("    /metrics     Prometheus metrics")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := m.Start(ctx); err != nil {
		slog.Error("monitor error", "error", err)
		os.Exit(1)
	}
}
