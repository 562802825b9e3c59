package taskpoll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func mustTask(t *testing.T, name, url string, opts ...TaskOption) Task {
	t.Helper()
	task, err := NewTask(name, url, opts...)
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	return task
}

func TestNewMonitor_Valid(t *testing.T) {
	task := mustTask(t, "import", "https://example.com/tasks/1/")

	m, err := NewMonitor(WithTask(task))
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if len(m.Tasks()) != 1 {
		t.Errorf("len(Tasks()) = %d, want 1", len(m.Tasks()))
	}
	if m.Port() != defaultPort {
		t.Errorf("Port() = %d, want %d", m.Port(), defaultPort)
	}
	if m.maxConcurrency != defaultMaxConcurrency {
		t.Errorf("maxConcurrency = %d, want %d", m.maxConcurrency, defaultMaxConcurrency)
	}
	if !m.ownsPoller || m.poller.metrics == nil {
		t.Error("default poller should be owned and instrumented")
	}
}

func TestNewMonitor_NoTasks(t *testing.T) {
	_, err := NewMonitor()
	if err == nil {
		t.Error("NewMonitor() expected error for no tasks, got nil")
	}
}

func TestNewMonitor_DuplicateTaskNames(t *testing.T) {
	a := mustTask(t, "import", "https://example.com/tasks/1/")
	b := mustTask(t, "import", "https://example.com/tasks/2/")

	_, err := NewMonitor(WithTasks(a, b))
	if err == nil || !strings.Contains(err.Error(), "duplicate task name") {
		t.Errorf("NewMonitor() error = %v, want duplicate task name", err)
	}
}

func TestNewMonitor_InvalidOptions(t *testing.T) {
	task := mustTask(t, "import", "https://example.com/tasks/1/")

	tests := []struct {
		name    string
		opt     MonitorOption
		wantErr string
	}{
		{"port zero", WithPort(0), "port must be between"},
		{"port too high", WithPort(70000), "port must be between"},
		{"zero concurrency", WithMaxConcurrency(0), "max concurrency must be positive"},
		{"nil logger", WithMonitorLogger(nil), "logger cannot be nil"},
		{"nil poller", WithPoller(nil), "poller cannot be nil"},
		{"nil registry", WithRegistry(nil), "registry cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMonitor(WithTask(task), tt.opt)
			if err == nil {
				t.Fatal("NewMonitor() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewMonitor() error = %q, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestWithStateCallback_NilIgnored(t *testing.T) {
	task := mustTask(t, "import", "https://example.com/tasks/1/")

	m, err := NewMonitor(WithTask(task), WithStateCallback(nil))
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	if len(m.stateCallbacks) != 0 {
		t.Errorf("len(stateCallbacks) = %d, want 0", len(m.stateCallbacks))
	}
}

func TestMonitor_Tasks_ReturnsCopy(t *testing.T) {
	task := mustTask(t, "import", "https://example.com/tasks/1/")
	m, err := NewMonitor(WithTask(task))
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	tasks := m.Tasks()
	tasks[0] = Task{}

	if m.Tasks()[0].Name() != "import" {
		t.Error("modifying returned slice affected monitor")
	}
}

// stateRecorder collects callback states and signals when every task is done.
type stateRecorder struct {
	mu     sync.Mutex
	states []TaskState
	done   chan struct{}
	want   int
	seen   int
}

func newStateRecorder(tasks int) *stateRecorder {
	return &stateRecorder{done: make(chan struct{}), want: tasks}
}

func (r *stateRecorder) record(s TaskState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
	if s.Done {
		r.seen++
		if r.seen == r.want {
			close(r.done)
		}
	}
}

func (r *stateRecorder) forTask(name string) []TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TaskState
	for _, s := range r.states {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

func (r *stateRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for tasks to finish")
	}
}

func TestMonitor_RecordsProgressAndFinalState(t *testing.T) {
	srv := newSequenceServer(t,
		`{"status":"PENDING"}`,
		`{"status":"PROGRESS","result":{"current":5,"total":10,"running":[{"author":"alice","name":"mod"}]}}`,
		`{"status":"SUCCESS","result":42}`,
	)
	task := mustTask(t, "import", srv.URL, WithLabels("kind", "import"))

	rec := newStateRecorder(1)
	m, err := NewMonitor(
		WithTask(task),
		WithPort(19310),
		WithMonitorLogger(testLogger()),
		WithPoller(newTestPoller(t)),
		WithStateCallback(rec.record),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	rec.wait(t)

	states := rec.forTask("import")
	if len(states) != 3 {
		t.Fatalf("got %d states, want 3: %+v", len(states), states)
	}
	if states[0].Status != StatusPending || states[1].Status != StatusProgress {
		t.Errorf("statuses = %s, %s", states[0].Status, states[1].Status)
	}
	if states[1].Progress == nil || states[1].Progress.Percent() != 50 {
		t.Errorf("progress = %+v, want 50%%", states[1].Progress)
	}

	final := states[2]
	if !final.Done || final.Status != StatusSuccess {
		t.Errorf("final = %+v, want done SUCCESS", final)
	}
	if string(final.Result) != "42" {
		t.Errorf("final result = %s, want 42", final.Result)
	}
	if final.Labels["kind"] != "import" {
		t.Errorf("final labels = %v", final.Labels)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestMonitor_FailedTaskState(t *testing.T) {
	srv := newSequenceServer(t, `{"status":"FAILURE","error":"package not found"}`)
	task := mustTask(t, "broken", srv.URL)

	rec := newStateRecorder(1)
	m, err := NewMonitor(
		WithTask(task),
		WithPort(19311),
		WithMonitorLogger(testLogger()),
		WithPoller(newTestPoller(t)),
		WithStateCallback(rec.record),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Start(ctx) }()

	rec.wait(t)

	states := rec.forTask("broken")
	final := states[len(states)-1]
	if final.Status != StatusFailure {
		t.Errorf("Status = %s, want FAILURE", final.Status)
	}
	var taskErr *TaskError
	if !errors.As(final.Err, &taskErr) || taskErr.Error() != "package not found" {
		t.Errorf("Err = %v, want task error \"package not found\"", final.Err)
	}
}

func TestMonitor_CallbackPanicRecovered(t *testing.T) {
	srv := newSequenceServer(t, `{"status":"PENDING"}`, `{"status":"SUCCESS"}`)
	task := mustTask(t, "import", srv.URL)

	rec := newStateRecorder(1)
	m, err := NewMonitor(
		WithTask(task),
		WithPort(19312),
		WithMonitorLogger(testLogger()),
		WithPoller(newTestPoller(t)),
		WithStateCallback(func(TaskState) { panic("callback bug") }),
		WithStateCallback(rec.record),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Start(ctx) }()

	// the second callback still runs for every state
	rec.wait(t)
	if got := len(rec.forTask("import")); got != 2 {
		t.Errorf("got %d states, want 2", got)
	}
}

func TestMonitor_ServesTaskAPI(t *testing.T) {
	srvA := newSequenceServer(t, `{"status":"SUCCESS","result":"a"}`)
	srvB := newSequenceServer(t, `{"status":"PENDING"}`, `{"status":"SUCCESS","result":"b"}`)

	reg := prometheus.NewRegistry()
	p := newTestPoller(t, WithMetrics(MustNewMetrics(reg)))

	rec := newStateRecorder(2)
	m, err := NewMonitor(
		WithTasks(mustTask(t, "alpha", srvA.URL), mustTask(t, "beta", srvB.URL)),
		WithPort(19313),
		WithMaxConcurrency(1),
		WithMonitorLogger(testLogger()),
		WithPoller(p),
		WithRegistry(reg),
		WithStateCallback(rec.record),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Start(ctx) }()

	rec.wait(t)
	waitForServer(t, 19313)

	body := httpGet(t, "http://localhost:19313/api/tasks/beta")
	var state struct {
		Name   string          `json:"name"`
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
		Done   bool            `json:"done"`
	}
	if err := json.Unmarshal([]byte(body), &state); err != nil {
		t.Fatalf("failed to decode task state: %v (%s)", err, body)
	}
	if state.Status != "SUCCESS" || !state.Done || string(state.Result) != `"b"` {
		t.Errorf("state = %+v", state)
	}

	list := httpGet(t, "http://localhost:19313/api/tasks")
	if !strings.Contains(list, `"alpha"`) || !strings.Contains(list, `"beta"`) {
		t.Errorf("task list = %s", list)
	}

	metrics := httpGet(t, "http://localhost:19313/metrics")
	if !strings.Contains(metrics, "taskpoll_poll_attempts_total") {
		t.Errorf("metrics output missing attempts counter:\n%s", metrics)
	}
}

func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	srv := newSequenceServer(t, `{"status":"PENDING"}`)
	task := mustTask(t, "import", srv.URL, WithoutTimeout())

	m, err := NewMonitor(
		WithTask(task),
		WithPort(19314),
		WithMonitorLogger(testLogger()),
		WithPoller(newTestPoller(t, WithSleep(func(ctx context.Context, d time.Duration) error {
			return sleepContext(ctx, time.Millisecond)
		}))),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	task := mustTask(t, "import", "https://example.com/tasks/1/")
	m, err := NewMonitor(WithTask(task), WithPort(19315), WithMonitorLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return immediately for cancelled context")
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	srv := newSequenceServer(t, `{"status":"SUCCESS"}`)
	m, err := NewMonitor(
		WithTask(mustTask(t, "import", srv.URL)),
		WithPort(port),
		WithMonitorLogger(testLogger()),
		WithPoller(newTestPoller(t)),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	err = m.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to start HTTP server") {
		t.Errorf("Start() error = %v, want HTTP server error", err)
	}
}

func TestToStoreState(t *testing.T) {
	state := TaskState{
		Name:   "import",
		Status: StatusProgress,
		Labels: map[string]string{"k": "v"},
		Progress: &Progress{
			Current: 3,
			Total:   4,
			Running: []RunningItem{{Author: "alice", Name: "mod"}},
		},
		Err: ErrTimeout,
	}

	out := toStoreState(state)
	if out.Status != "PROGRESS" {
		t.Errorf("Status = %q", out.Status)
	}
	if out.Progress == nil || out.Progress.Percent != 75 || out.Progress.Running[0] != "alice/mod" {
		t.Errorf("Progress = %+v", out.Progress)
	}
	if out.Error == nil || *out.Error != "timeout" {
		t.Errorf("Error = %v, want timeout", out.Error)
	}

	out.Labels["k"] = "changed"
	if state.Labels["k"] != "v" {
		t.Error("store state shares labels map with callback state")
	}
}

func waitForServer(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", port))
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server on port %d did not start", port)
}

func httpGet(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d, body = %s", url, resp.StatusCode, body)
	}
	return string(body)
}
