package taskpoll

import "strings"

// Status represents the state of a server-side asynchronous task.
//
// Status values follow the task backend's naming (upper case). Payloads are
// parsed case-insensitively via [ParseStatus], so "success" and "SUCCESS"
// both map to [StatusSuccess].
type Status string

const (
	// StatusPending indicates the task is queued, or that the backend does not
	// know the task id.
	StatusPending Status = "PENDING"

	// StatusProgress indicates the task is running and reporting progress.
	// The payload result holds a [Progress] value.
	StatusProgress Status = "PROGRESS"

	// StatusSuccess indicates the task finished. The payload result holds the
	// task's return value.
	StatusSuccess Status = "SUCCESS"

	// StatusFailure indicates the task raised an error.
	StatusFailure Status = "FAILURE"

	// StatusRevoked indicates the task was cancelled server-side.
	StatusRevoked Status = "REVOKED"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the status ends a polling loop.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	default:
		return false
	}
}

// Label returns the human-readable lower-case form used in status lines.
// PENDING is reported as "pending or unknown" because the backend answers
// PENDING for task ids it has never seen.
func (s Status) Label() string {
	if s == StatusPending {
		return "pending or unknown"
	}
	return strings.ToLower(string(s))
}

// ParseStatus maps a raw status string to a [Status], ignoring case and
// surrounding whitespace. The boolean is false for unrecognised values.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusProgress, StatusSuccess, StatusFailure, StatusRevoked:
		return s, true
	default:
		return "", false
	}
}
