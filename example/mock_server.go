package main

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// mockTask advances one step every time it is polled.
type mockTask struct {
	polls int
	total int
	fail  bool
}

// payload returns the status payload for the task's current step: PENDING
// first, then PROGRESS up to total, then SUCCESS or FAILURE.
func (t *mockTask) payload() map[string]any {
	t.polls++
	switch {
	case t.polls == 1:
		return map[string]any{"status": "PENDING"}
	case t.polls-1 <= t.total:
		done := t.polls - 1
		return map[string]any{
			"status": "PROGRESS",
			"result": map[string]any{
				"current": done,
				"total":   t.total,
				"running": []map[string]string{{"author": "demo", "name": fmt.Sprintf("module-%d", done)}},
			},
		}
	case t.fail:
		return map[string]any{"status": "FAILURE", "error": "mock import failed"}
	default:
		return map[string]any{"status": "SUCCESS", "result": map[string]int{"imported": t.total}}
	}
}

func (t *mockTask) finished() bool {
	return t.polls > t.total+1
}

// mockApp is a tiny web application with asynchronous imports and review votes.
type mockApp struct {
	mu      sync.Mutex
	tasks   map[string]*mockTask
	current string
	votes   map[string]int
	choice  string
}

var packagePage = template.Must(template.New("page").Parse(`<html>
<head><title>demo package</title></head>
<body>
{{if .TaskID}}<div class="card" data-task-id="{{.TaskID}}"></div>
<div id="progress" class="progress d-none">
	<div class="progress-bar" role="progressbar" style="height: 4px; width: 0%"></div>
</div>
<p id="status">Status: starting</p>{{end}}
<form class="review-helpful-vote" method="post" action="/reviews/1/vote/">
	<input type="hidden" name="review" value="1">
	<button name="is_positive" value="yes" class="btn {{.YesClass}}">Yes{{if .Yes}} <span class="badge bg-light text-dark ms-1">{{.Yes}}</span>{{end}}</button>
	<button name="is_positive" value="no" class="btn {{.NoClass}}">No{{if .No}} <span class="badge bg-light text-dark ms-1">{{.No}}</span>{{end}}</button>
</form>
</body>
</html>`))

// StartMockTaskServer runs a mock task application:
//
//	POST /import/                start a task, answers {"poll_url": "/tasks/{id}/"}
//	GET  /tasks/{id}/            task status; unknown ids start a new task
//	GET  /packages/demo/         page showing the running import and a vote form
//	POST /reviews/1/vote/        record a review vote
//
// Call this in a goroutine.
func StartMockTaskServer(addr string) {
	app := &mockApp{
		tasks: make(map[string]*mockTask),
		votes: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /import/", app.handleImport)
	mux.HandleFunc("GET /tasks/{id}/", app.handleTask)
	mux.HandleFunc("GET /packages/demo/", app.handlePage)
	mux.HandleFunc("POST /reviews/1/vote/", app.handleVote)

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

func (a *mockApp) newTask() string {
	id := uuid.NewString()
	a.tasks[id] = &mockTask{total: 3 + rand.Intn(5), fail: rand.Intn(5) == 0}
	return id
}

func (a *mockApp) handleImport(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	id := a.newTask()
	a.current = id
	a.mu.Unlock()

	slog.Info("import started", "task_id", id)
	writeJSON(w, map[string]string{"poll_url": "/tasks/" + id + "/"})
}

func (a *mockApp) handleTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	a.mu.Lock()
	task, ok := a.tasks[id]
	if !ok {
		task = &mockTask{total: 3 + rand.Intn(5)}
		a.tasks[id] = task
	}
	payload := task.payload()
	a.mu.Unlock()

	writeJSON(w, payload)
}

func (a *mockApp) handlePage(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	taskID := ""
	if t, ok := a.tasks[a.current]; ok && !t.finished() {
		taskID = a.current
	}
	data := map[string]any{
		"TaskID":   taskID,
		"Yes":      a.votes["yes"],
		"No":       a.votes["no"],
		"YesClass": buttonClass(a.choice == "yes"),
		"NoClass":  buttonClass(a.choice == "no"),
	}
	a.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := packagePage.Execute(w, data); err != nil {
		slog.Error("failed to render page", "error", err)
	}
}

func (a *mockApp) handleVote(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	choice := strings.ToLower(r.PostForm.Get("is_positive"))
	if choice != "yes" && choice != "no" {
		http.Error(w, "is_positive must be yes or no", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	if a.choice != choice {
		if a.choice != "" {
			a.votes[a.choice]--
		}
		a.votes[choice]++
		a.choice = choice
	}
	a.mu.Unlock()

	slog.Info("vote recorded", "is_positive", choice)
	w.WriteHeader(http.StatusOK)
}

func buttonClass(selected bool) string {
	if selected {
		return "btn-primary"
	}
	return "btn-secondary"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
