// Package progress carries job progress events from the coordinator to whoever watches:
// a subscription Hub for programmatic consumers and a console BarRenderer for the CLI.
package progress

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further event can follow s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusCancelled
}

// Event is one job state change.
type Event struct {
	// ID is the job the event belongs to.
	ID string `json:"id"`
	// Status is the job state after the change.
	Status Status `json:"status"`
	// Progress is the completion from 0 to 100.
	Progress int `json:"progress"`
	// Message is a human readable description of the current stage.
	Message string `json:"message"`
	// Timestamp marks when the event occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
}

// NewEvent creates an Event stamped with the current time.
func NewEvent(id string, status Status, progress int, message string) Event {
	return Event{
		ID:        id,
		Status:    status,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// JSON returns the event as a JSON string.
func (e Event) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal progress event: %w", err)
	}
	return string(data), nil
}
