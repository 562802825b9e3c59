package page

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/jpalmerr/taskpoll"
)

const taskPage = `<html><body>
<div class="card" data-task-id="abc123"></div>
<div id="progress" class="progress d-none">
	<div class="progress-bar" role="progressbar" style="height: 4px; width: 0%"></div>
</div>
<p id="status">Status: starting</p>
</body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("NewDocumentFromReader() error = %v", err)
	}
	return doc
}

func mustPayload(t *testing.T, body string) taskpoll.Payload {
	t.Helper()
	p, err := taskpoll.DecodePayload([]byte(body))
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	return p
}

func TestNewView_Progress(t *testing.T) {
	v := NewView(mustPayload(t, `{"status":"PROGRESS","result":{"current":5,"total":10,"running":[{"author":"alice","name":"mod"},{"author":"bob","name":"game"}]}}`))

	if !v.ShowProgress {
		t.Error("ShowProgress = false, want true")
	}
	if v.Percent != 50 {
		t.Errorf("Percent = %v, want 50", v.Percent)
	}
	want := "Status: in progress (5 / 10)\n\nalice/mod, bob/game"
	if v.StatusText != want {
		t.Errorf("StatusText = %q, want %q", v.StatusText, want)
	}
}

func TestNewView_ProgressWithoutRunning(t *testing.T) {
	v := NewView(mustPayload(t, `{"status":"PROGRESS","result":{"current":1.5,"total":3}}`))

	want := "Status: in progress (1.5 / 3)\n\n"
	if v.StatusText != want {
		t.Errorf("StatusText = %q, want %q", v.StatusText, want)
	}
}

func TestNewView_ClampsPercent(t *testing.T) {
	tests := []struct {
		body string
		want float64
	}{
		{`{"status":"PROGRESS","result":{"current":12,"total":10}}`, 100},
		{`{"status":"PROGRESS","result":{"current":-1,"total":10}}`, 0},
		{`{"status":"PROGRESS","result":{"current":3,"total":0}}`, 0},
	}

	for _, tt := range tests {
		if got := NewView(mustPayload(t, tt.body)).Percent; got != tt.want {
			t.Errorf("Percent for %s = %v, want %v", tt.body, got, tt.want)
		}
	}
}

func TestNewView_NonProgress(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"status":"PENDING"}`, "Status: pending or unknown"},
		{`{"status":"SUCCESS"}`, "Status: success"},
		{`{"status":"failure","error":"x"}`, "Status: failure"},
		{`{"status":"REVOKED"}`, "Status: revoked"},
		{`{"status":"PROGRESS","result":"not an object"}`, "Status: progress"},
	}

	for _, tt := range tests {
		v := NewView(mustPayload(t, tt.body))
		if v.ShowProgress {
			t.Errorf("ShowProgress = true for %s", tt.body)
		}
		if v.StatusText != tt.want {
			t.Errorf("StatusText for %s = %q, want %q", tt.body, v.StatusText, tt.want)
		}
	}
}

func TestRender_Progress(t *testing.T) {
	doc := mustDoc(t, taskPage)

	Render(doc, NewView(mustPayload(t, `{"status":"PROGRESS","result":{"current":5,"total":10,"running":[{"author":"alice","name":"mod"}]}}`)))

	progress := doc.Find("#progress")
	if progress.HasClass("d-none") {
		t.Error("#progress should be visible")
	}

	bar := progress.Children().First()
	if style, _ := bar.Attr("style"); style != "height: 4px; width: 50%;" {
		t.Errorf("bar style = %q", style)
	}
	if now, _ := bar.Attr("aria-valuenow"); now != "5" {
		t.Errorf("aria-valuenow = %q, want 5", now)
	}
	if valueMax, _ := bar.Attr("aria-valuemax"); valueMax != "10" {
		t.Errorf("aria-valuemax = %q, want 10", valueMax)
	}
	if got := doc.Find("#status").Text(); got != "Status: in progress (5 / 10)\n\nalice/mod" {
		t.Errorf("#status = %q", got)
	}
}

func TestRender_HidesProgressForOtherStatuses(t *testing.T) {
	doc := mustDoc(t, taskPage)

	Render(doc, NewView(mustPayload(t, `{"status":"PROGRESS","result":{"current":1,"total":2}}`)))
	Render(doc, NewView(mustPayload(t, `{"status":"PENDING"}`)))

	if !doc.Find("#progress").HasClass("d-none") {
		t.Error("#progress should be hidden")
	}
	if got := doc.Find("#status").Text(); got != "Status: pending or unknown" {
		t.Errorf("#status = %q", got)
	}
}

func TestRender_MissingTargets(t *testing.T) {
	doc := mustDoc(t, `<html><body><p>nothing here</p></body></html>`)

	// must not panic
	Render(doc, NewView(mustPayload(t, `{"status":"PROGRESS","result":{"current":1,"total":2}}`)))
	Render(doc, NewView(mustPayload(t, `{"status":"SUCCESS"}`)))
}

func TestFindTaskID(t *testing.T) {
	id, ok := FindTaskID(mustDoc(t, taskPage))
	if !ok || id != "abc123" {
		t.Errorf("FindTaskID() = %q, %v, want abc123, true", id, ok)
	}

	if _, ok := FindTaskID(mustDoc(t, `<div data-task-id=""></div>`)); ok {
		t.Error("FindTaskID() ok = true for empty id")
	}
	if _, ok := FindTaskID(mustDoc(t, `<div></div>`)); ok {
		t.Error("FindTaskID() ok = true for page without task")
	}
}
