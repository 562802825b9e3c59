package taskpoll

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrTimeout is returned by [Poller.PollTask] when the timeout is enabled
	// and the attempt budget is exhausted without a terminal status.
	ErrTimeout = errors.New("timeout")

	// ErrUnknownServerError is the fallback failure when a FAILURE or REVOKED
	// payload carries no error detail.
	ErrUnknownServerError = errors.New("unknown server error")

	// ErrMalformedPayload marks a status response that is not a valid task
	// status payload.
	ErrMalformedPayload = errors.New("malformed task payload")

	// ErrInvalidStartResponse is returned by [Poller.PerformTask] when the start
	// response does not contain a string poll_url.
	ErrInvalidStartResponse = errors.New("start task didn't return a string poll_url")
)

// TaskError reports a task that ended with FAILURE or REVOKED.
//
// Detail holds the raw "error" value from the payload. Error returns it
// verbatim: JSON strings are unquoted, other JSON values are returned as their
// JSON text. When Detail is nil the message is that of [ErrUnknownServerError]
// and errors.Is(err, ErrUnknownServerError) reports true.
type TaskError struct {
	Status Status
	Detail json.RawMessage
}

func (e *TaskError) Error() string {
	if len(e.Detail) == 0 {
		return ErrUnknownServerError.Error()
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(e.Detail))
}

func (e *TaskError) Unwrap() error {
	if len(e.Detail) == 0 {
		return ErrUnknownServerError
	}
	return nil
}
