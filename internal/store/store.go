package store

import (
	"encoding/json"
	"time"
)

// TaskState represents the latest known state of a monitored task.
//
// TaskState is the storage representation used by the REST API and SSE
// stream. It is decoupled from the taskpoll payload types to allow
// independent evolution.
type TaskState struct {
	// Name is the task's display name.
	Name string `json:"name"`

	// URL is the poll URL.
	URL string `json:"url"`

	// Status is the last received task status (e.g. "PENDING", "SUCCESS").
	// Empty until the first payload arrives.
	Status string `json:"status"`

	// Labels contains key-value metadata for grouping and filtering.
	Labels map[string]string `json:"labels"`

	// Progress is set while the task reports PROGRESS.
	Progress *Progress `json:"progress,omitempty"`

	// Result is the task's return value once it succeeded.
	Result json.RawMessage `json:"result,omitempty"`

	// Error contains the failure message if the task failed or polling gave up.
	Error *string `json:"error"`

	// Done is true once polling for this task has ended.
	Done bool `json:"done"`

	// UpdatedAt is when this state was recorded.
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress mirrors a PROGRESS payload for storage.
type Progress struct {
	Current float64  `json:"current"`
	Total   float64  `json:"total"`
	Percent float64  `json:"percent"`
	Running []string `json:"running"`
}

// Store defines the interface for storing and subscribing to task updates.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a new task state and notifies all subscribers.
	// The state is keyed by Name, so subsequent updates replace previous values.
	Update(state TaskState)

	// Get returns the state stored under name.
	Get(name string) (TaskState, bool)

	// GetAll returns all currently stored task states ordered by name.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []TaskState

	// Subscribe returns a channel that receives task updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan TaskState

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan TaskState)
}
