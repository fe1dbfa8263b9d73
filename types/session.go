// Package types defines core domain types for sluice sessions.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"time"
)

// SessionKind discriminates how a console session was started.
type SessionKind string

const (
	// SessionKindFile is a session running a script file.
	SessionKindFile SessionKind = "file"
	// SessionKindCommand is a session running a shell command.
	SessionKindCommand SessionKind = "command"
)

// Valid returns true for a known session kind.
func (k SessionKind) Valid() bool {
	return k == SessionKindFile || k == SessionKindCommand
}

// SessionMeta identifies one console session.
type SessionMeta struct {
	// ID is the canonical session identifier (UUID).
	ID string `json:"session_id"`
	// Kind is how the session was started.
	Kind SessionKind `json:"kind"`
	// Target is the script path or command line, depending on Kind.
	Target string `json:"target"`
	// StartedAt is the session start time in UTC.
	StartedAt time.Time `json:"started_at"`
}

// Validate checks that the meta is complete enough to run a session.
func (m *SessionMeta) Validate() error {
	if m == nil {
		return fmt.Errorf("session meta is required")
	}
	if m.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("invalid session kind: %q", m.Kind)
	}
	if m.Target == "" {
		return fmt.Errorf("session target is required")
	}
	return nil
}

// SessionOutcome is the terminal status of a console session.
type SessionOutcome string

const (
	// OutcomeCompleted indicates the output stream ended cleanly.
	OutcomeCompleted SessionOutcome = "completed"
	// OutcomeStreamError indicates the output stream failed mid-session.
	OutcomeStreamError SessionOutcome = "stream_error"
	// OutcomeSinkFailure indicates a downstream sink rejected a fragment.
	OutcomeSinkFailure SessionOutcome = "sink_failure"
	// OutcomeCanceled indicates the session was canceled before the stream ended.
	OutcomeCanceled SessionOutcome = "canceled"
)

// SessionResult summarizes one finished session.
type SessionResult struct {
	// Meta identifies the session.
	Meta *SessionMeta `json:"meta"`
	// Outcome is the terminal status.
	Outcome SessionOutcome `json:"outcome"`
	// Err is the pipeline error for non-completed outcomes.
	Err error `json:"-"`
	// Duration is wall-clock time from first read to stream end.
	Duration time.Duration `json:"duration"`
	// FragmentCount is the number of fragments forwarded to sinks.
	FragmentCount int64 `json:"fragment_count"`
	// ByteCount is the number of raw bytes read from the stream.
	ByteCount int64 `json:"byte_count"`
	// StoragePath is where the transcript was persisted, when enabled.
	StoragePath string `json:"storage_path,omitempty"`
}
