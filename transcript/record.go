// Package transcript persists session output as a replayable record stream.
package transcript

import (
	"time"

	"github.com/pithecene-io/sluice/types"
)

// Record kind discriminator values.
const (
	// RecordKindOpen starts a transcript and carries session metadata.
	RecordKindOpen = "open"
	// RecordKindFragment carries one unit of console output.
	RecordKindFragment = "fragment"
	// RecordKindClose ends a transcript and carries the session outcome.
	RecordKindClose = "close"
)

// Record is a single entry in a session transcript. A well-formed transcript
// is one open record, zero or more fragment records in seq order, and one
// close record. Seq is monotonic starting at 1 across all kinds.
type Record struct {
	Kind          string `msgpack:"kind"`
	SchemaVersion string `msgpack:"schema_version"`
	SessionID     string `msgpack:"session_id"`
	Seq           int64  `msgpack:"seq"`
	Ts            string `msgpack:"ts"`

	// Open records only.
	SessionKind string `msgpack:"session_kind,omitempty"`
	Target      string `msgpack:"target,omitempty"`

	// Fragment records only.
	Text string `msgpack:"text,omitempty"`

	// Close records only.
	Outcome       string `msgpack:"outcome,omitempty"`
	Error         string `msgpack:"error,omitempty"`
	FragmentCount int64  `msgpack:"fragment_count,omitempty"`
	ByteCount     int64  `msgpack:"byte_count,omitempty"`
}

// NewOpenRecord builds the opening record for a session transcript.
func NewOpenRecord(meta *types.SessionMeta) *Record {
	return &Record{
		Kind:          RecordKindOpen,
		SchemaVersion: types.SchemaVersion,
		SessionID:     meta.ID,
		Seq:           1,
		Ts:            timestamp(),
		SessionKind:   string(meta.Kind),
		Target:        meta.Target,
	}
}

// NewFragmentRecord builds a fragment record carrying one unit of output.
func NewFragmentRecord(sessionID string, seq int64, text string) *Record {
	return &Record{
		Kind:          RecordKindFragment,
		SchemaVersion: types.SchemaVersion,
		SessionID:     sessionID,
		Seq:           seq,
		Ts:            timestamp(),
		Text:          text,
	}
}

// NewCloseRecord builds the closing record for a session transcript.
// errMsg is empty for completed sessions.
func NewCloseRecord(sessionID string, seq int64, outcome types.SessionOutcome, errMsg string, fragments, bytes int64) *Record {
	return &Record{
		Kind:          RecordKindClose,
		SchemaVersion: types.SchemaVersion,
		SessionID:     sessionID,
		Seq:           seq,
		Ts:            timestamp(),
		Outcome:       string(outcome),
		Error:         errMsg,
		FragmentCount: fragments,
		ByteCount:     bytes,
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
