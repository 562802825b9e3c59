package taskpoll

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is a decoded task status response.
//
// Payload is a tagged union keyed by [Status]: a SUCCESS payload carries the
// task return value in Result, a PROGRESS payload carries a [Progress] value in
// Result, and FAILURE / REVOKED payloads may carry an error detail in Error.
// Result and Error are kept as raw JSON because their shape is defined by the
// task, not by the polling protocol. JSON null is normalised to nil.
type Payload struct {
	Status Status
	Result json.RawMessage
	Error  json.RawMessage
}

// Progress is the result of a PROGRESS payload.
type Progress struct {
	Current float64       `json:"current"`
	Total   float64       `json:"total"`
	Running []RunningItem `json:"running,omitempty"`
}

// RunningItem names a unit of work the task is currently processing.
type RunningItem struct {
	Author string `json:"author"`
	Name   string `json:"name"`
}

// String returns the "author/name" form used in status lines.
func (r RunningItem) String() string {
	return r.Author + "/" + r.Name
}

// DecodePayload decodes and validates a task status response body.
//
// The body must be a JSON object with a string "status" field holding one of
// the recognised [Status] values (case-insensitive). Anything else is rejected
// with an error wrapping [ErrMalformedPayload].
func DecodePayload(body []byte) (Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return Payload{}, fmt.Errorf("%w: body is not an object", ErrMalformedPayload)
	}

	rawStatus, ok := fields["status"]
	if !ok {
		return Payload{}, fmt.Errorf("%w: missing status field", ErrMalformedPayload)
	}
	var statusText string
	if err := json.Unmarshal(rawStatus, &statusText); err != nil {
		return Payload{}, fmt.Errorf("%w: status is not a string", ErrMalformedPayload)
	}
	status, ok := ParseStatus(statusText)
	if !ok {
		return Payload{}, fmt.Errorf("%w: unknown status %q", ErrMalformedPayload, statusText)
	}

	return Payload{
		Status: status,
		Result: nonNull(fields["result"]),
		Error:  nonNull(fields["error"]),
	}, nil
}

// Progress interprets the payload result as a [Progress] value.
//
// Returns an error wrapping [ErrMalformedPayload] if the payload is not a
// PROGRESS payload, or if the result lacks numeric current and total fields.
func (p Payload) Progress() (Progress, error) {
	if p.Status != StatusProgress {
		return Progress{}, fmt.Errorf("%w: status %s carries no progress", ErrMalformedPayload, p.Status)
	}

	var raw struct {
		Current *float64      `json:"current"`
		Total   *float64      `json:"total"`
		Running []RunningItem `json:"running"`
	}
	if len(p.Result) == 0 {
		return Progress{}, fmt.Errorf("%w: progress result missing", ErrMalformedPayload)
	}
	if err := json.Unmarshal(p.Result, &raw); err != nil {
		return Progress{}, fmt.Errorf("%w: progress result: %v", ErrMalformedPayload, err)
	}
	if raw.Current == nil || raw.Total == nil {
		return Progress{}, fmt.Errorf("%w: progress result needs current and total", ErrMalformedPayload)
	}

	return Progress{
		Current: *raw.Current,
		Total:   *raw.Total,
		Running: raw.Running,
	}, nil
}

// Percent returns 100*current/total clamped to [0, 100].
// A non-positive total yields 0.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return min(max(100*p.Current/p.Total, 0), 100)
}

// nonNull returns nil for absent or JSON null values.
func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}
