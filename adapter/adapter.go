// Package adapter defines the completion-notification boundary.
//
// Adapters publish session completion events to downstream systems.
// The session runner owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/sluice/types"
)

// EventTypeSessionCompleted is the event_type discriminator value.
const EventTypeSessionCompleted = "session_completed"

// SessionCompletedEvent is the payload published when a session finishes.
type SessionCompletedEvent struct {
	SchemaVersion string `json:"schema_version"`
	EventType     string `json:"event_type"` // always "session_completed"
	SessionID     string `json:"session_id"`
	Kind          string `json:"kind"`
	Target        string `json:"target"`
	Outcome       string `json:"outcome"` // completed, stream_error, sink_failure, canceled
	StoragePath   string `json:"storage_path,omitempty"`
	Timestamp     string `json:"timestamp"` // ISO 8601
	FragmentCount int64  `json:"fragment_count"`
	ByteCount     int64  `json:"byte_count"`
	DurationMs    int64  `json:"duration_ms"`
}

// NewSessionCompletedEvent builds the completion event for a finished session.
func NewSessionCompletedEvent(result *types.SessionResult) *SessionCompletedEvent {
	return &SessionCompletedEvent{
		SchemaVersion: types.SchemaVersion,
		EventType:     EventTypeSessionCompleted,
		SessionID:     result.Meta.ID,
		Kind:          string(result.Meta.Kind),
		Target:        result.Meta.Target,
		Outcome:       string(result.Outcome),
		StoragePath:   result.StoragePath,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		FragmentCount: result.FragmentCount,
		ByteCount:     result.ByteCount,
		DurationMs:    result.Duration.Milliseconds(),
	}
}

// Adapter publishes session completion events to a downstream system.
// Implementations must be safe for single-use per session.
type Adapter interface {
	// Publish sends a session completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
