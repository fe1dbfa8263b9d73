// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single console session. It is a
// leaf package with no internal dependencies. Transcript flush-trigger counts
// are absorbed from the transcript sink at session completion rather than
// recorded live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsFailed    int64
	SessionsCanceled  int64

	// Stream
	ChunksRead          int64
	BytesRead           int64
	FragmentsForwarded  int64
	FragmentsNormalized int64
	FragmentsSkipped    int64

	// Transcript (absorbed from the transcript sink at session completion)
	FlushTriggers          map[string]int64
	TranscriptWriteSuccess int64
	TranscriptWriteFailure int64

	// Adapter
	PublishSuccess int64
	PublishFailure int64

	// Dimensions (informational, set at construction)
	Kind           string
	StorageBackend string
	SessionID      string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// Session lifecycle
	sessionsStarted   int64
	sessionsCompleted int64
	sessionsFailed    int64
	sessionsCanceled  int64

	// Stream
	chunksRead          int64
	bytesRead           int64
	fragmentsForwarded  int64
	fragmentsNormalized int64
	fragmentsSkipped    int64

	// Transcript
	flushTriggers          map[string]int64
	transcriptWriteSuccess int64
	transcriptWriteFailure int64

	// Adapter
	publishSuccess int64
	publishFailure int64

	// Dimensions
	kind           string
	storageBackend string
	sessionID      string
}

// NewCollector creates a Collector with dimension labels.
// kind and storageBackend are required dimensions; sessionID is optional.
func NewCollector(kind, storageBackend, sessionID string) *Collector {
	return &Collector{
		kind:           kind,
		storageBackend: storageBackend,
		sessionID:      sessionID,
	}
}

// --- Session lifecycle ---

// IncSessionStarted records a session start.
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsStarted++
	c.mu.Unlock()
}

// IncSessionCompleted records a clean session completion.
func (c *Collector) IncSessionCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsCompleted++
	c.mu.Unlock()
}

// IncSessionFailed records a session failure (stream_error or sink_failure).
func (c *Collector) IncSessionFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsFailed++
	c.mu.Unlock()
}

// IncSessionCanceled records a canceled session.
func (c *Collector) IncSessionCanceled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsCanceled++
	c.mu.Unlock()
}

// --- Stream ---

// IncChunkRead records one chunk read from the source and its byte count.
func (c *Collector) IncChunkRead(bytes int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksRead++
	c.bytesRead += int64(bytes)
	c.mu.Unlock()
}

// IncFragmentForwarded records a fragment forwarded to the sink.
func (c *Collector) IncFragmentForwarded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fragmentsForwarded++
	c.mu.Unlock()
}

// IncFragmentNormalized records a fragment rewritten by the normalizer.
func (c *Collector) IncFragmentNormalized() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fragmentsNormalized++
	c.mu.Unlock()
}

// IncFragmentSkipped records a fragment dropped for being empty.
func (c *Collector) IncFragmentSkipped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fragmentsSkipped++
	c.mu.Unlock()
}

// --- Transcript ---
// Transcript counters are per-call, not per-record. A single Append call
// with N records counts as 1 success.

// IncTranscriptWriteSuccess records a successful store append (per-call).
func (c *Collector) IncTranscriptWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.transcriptWriteSuccess++
	c.mu.Unlock()
}

// IncTranscriptWriteFailure records a failed store append (per-call).
func (c *Collector) IncTranscriptWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.transcriptWriteFailure++
	c.mu.Unlock()
}

// --- Adapter ---

// IncPublishSuccess records a delivered session_completed event.
func (c *Collector) IncPublishSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishSuccess++
	c.mu.Unlock()
}

// IncPublishFailure records a session_completed publish failure.
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishFailure++
	c.mu.Unlock()
}

// --- Absorbed stats ---

// AbsorbFlushStats copies flush-trigger counts from the transcript sink.
// Called once after session completion with the final sink stats. The map
// keys are trigger names (count, interval, termination); a nil map leaves
// FlushTriggers nil in subsequent snapshots.
func (c *Collector) AbsorbFlushStats(triggers map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if triggers == nil {
		c.flushTriggers = nil
	} else {
		c.flushTriggers = make(map[string]int64, len(triggers))
		for k, v := range triggers {
			c.flushTriggers[k] = v
		}
	}
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var triggers map[string]int64
	if c.flushTriggers != nil {
		triggers = make(map[string]int64, len(c.flushTriggers))
		for k, v := range c.flushTriggers {
			triggers[k] = v
		}
	}

	return Snapshot{
		SessionsStarted:   c.sessionsStarted,
		SessionsCompleted: c.sessionsCompleted,
		SessionsFailed:    c.sessionsFailed,
		SessionsCanceled:  c.sessionsCanceled,

		ChunksRead:          c.chunksRead,
		BytesRead:           c.bytesRead,
		FragmentsForwarded:  c.fragmentsForwarded,
		FragmentsNormalized: c.fragmentsNormalized,
		FragmentsSkipped:    c.fragmentsSkipped,

		FlushTriggers:          triggers,
		TranscriptWriteSuccess: c.transcriptWriteSuccess,
		TranscriptWriteFailure: c.transcriptWriteFailure,

		PublishSuccess: c.publishSuccess,
		PublishFailure: c.publishFailure,

		Kind:           c.kind,
		StorageBackend: c.storageBackend,
		SessionID:      c.sessionID,
	}
}
