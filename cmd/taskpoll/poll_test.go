package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func TestRunPoll_PrintsProgressAndResult(t *testing.T) {
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"status":"PROGRESS","result":{"current":1,"total":4,"running":[{"author":"alice","name":"mod"}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"SUCCESS","result":{"imported":4}}`))
	}))
	defer srv.Close()

	output, err := executeCmd(t, "poll", srv.URL+"/tasks/1/")
	if err != nil {
		t.Fatalf("poll command error = %v", err)
	}

	if !strings.Contains(output, "PROGRESS 1/4 (25%) alice/mod") {
		t.Errorf("output missing progress line\nGot: %s", output)
	}
	if !strings.Contains(output, `SUCCESS {"imported":4}`) {
		t.Errorf("output missing result line\nGot: %s", output)
	}
}

func TestRunPoll_TaskFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"FAILURE","error":"archive is corrupt"}`))
	}))
	defer srv.Close()

	output, err := executeCmd(t, "poll", srv.URL+"/tasks/1/")
	if err == nil || err.Error() != "archive is corrupt" {
		t.Fatalf("poll command error = %v, want task error", err)
	}
	if !strings.Contains(output, "FAILURE archive is corrupt") {
		t.Errorf("output = %q", output)
	}
}

func TestRunPerform_InvalidStartResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"url":"/tasks/1/"}`))
	}))
	defer srv.Close()

	_, err := executeCmd(t, "perform", srv.URL+"/start/")
	if err == nil || !strings.Contains(err.Error(), "poll_url") {
		t.Errorf("perform command error = %v, want invalid start response", err)
	}
}

func TestHeaderPairs_Invalid(t *testing.T) {
	_, err := executeCmd(t, "poll", "-H", "no-colon", "http://127.0.0.1:1/tasks/1/")
	if err == nil || !strings.Contains(err.Error(), "invalid header") {
		t.Errorf("poll command error = %v, want invalid header", err)
	}
}
