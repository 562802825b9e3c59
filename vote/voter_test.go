package vote

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func widgetFor(t *testing.T, action string) *Widget {
	t.Helper()
	html := `<form class="review-helpful-vote" action="` + action + `">
		<input type="hidden" name="csrf_token" value="tok">
		<button name="is_positive" value="yes" class="btn btn-secondary">Yes</button>
		<button name="is_positive" value="no" class="btn btn-secondary">No</button>
	</form>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("NewDocumentFromReader() error = %v", err)
	}
	widgets, err := Find(doc, "http://localhost/")
	if err != nil || len(widgets) != 1 {
		t.Fatalf("Find() = %d widgets, error = %v", len(widgets), err)
	}
	return widgets[0]
}

func TestVoter_CastSubmitsForm(t *testing.T) {
	var mu sync.Mutex
	var gotMethod, gotContentType string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		gotForm = r.PostForm
	}))
	defer srv.Close()

	voter, err := NewVoter(WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewVoter() error = %v", err)
	}
	defer voter.Close()

	w := widgetFor(t, srv.URL+"/vote/")
	voter.Cast(context.Background(), w, true)

	// the widget is updated before the submission completes
	if w.Count(true) != 1 {
		t.Errorf("yes count = %d, want 1", w.Count(true))
	}

	voter.Wait()

	mu.Lock()
	defer mu.Unlock()
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotForm.Get("csrf_token") != "tok" || gotForm.Get("is_positive") != "yes" {
		t.Errorf("form = %v", gotForm)
	}
}

func TestVoter_RejectedVoteIsLoggedNotRolledBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "csrf token expired", http.StatusForbidden)
	}))
	defer srv.Close()

	logs := &syncBuffer{}
	voter, err := NewVoter(WithLogger(slog.New(slog.NewTextHandler(logs, nil))))
	if err != nil {
		t.Fatalf("NewVoter() error = %v", err)
	}
	defer voter.Close()

	w := widgetFor(t, srv.URL)
	voter.Cast(context.Background(), w, false)
	voter.Wait()

	if w.Count(false) != 1 {
		t.Errorf("no count = %d, want 1 (optimistic update kept)", w.Count(false))
	}
	out := logs.String()
	if !strings.Contains(out, "vote rejected") || !strings.Contains(out, "csrf token expired") {
		t.Errorf("log output = %q", out)
	}
}

func TestVoter_NetworkErrorIsLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	logs := &syncBuffer{}
	voter, err := NewVoter(WithLogger(slog.New(slog.NewTextHandler(logs, nil))))
	if err != nil {
		t.Fatalf("NewVoter() error = %v", err)
	}

	voter.Cast(context.Background(), widgetFor(t, addr), true)
	voter.Close()

	if !strings.Contains(logs.String(), "vote submission failed") {
		t.Errorf("log output = %q", logs.String())
	}
}

func TestVoter_Headers(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-CSRFToken")
	}))
	defer srv.Close()

	voter, err := NewVoter(WithLogger(testLogger()), WithHeaders("X-CSRFToken", "abc"))
	if err != nil {
		t.Fatalf("NewVoter() error = %v", err)
	}
	voter.Cast(context.Background(), widgetFor(t, srv.URL), true)
	voter.Close()

	if h := <-got; h != "abc" {
		t.Errorf("X-CSRFToken = %q, want abc", h)
	}
}

func TestNewVoter_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"nil client", WithHTTPClient(nil)},
		{"nil logger", WithLogger(nil)},
		{"odd headers", WithHeaders("X")},
		{"zero timeout", WithSubmitTimeout(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewVoter(tt.opt); err == nil {
				t.Error("NewVoter() error = nil, want error")
			}
		})
	}
}
