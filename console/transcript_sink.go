package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/pipeline"
	"github.com/pithecene-io/sluice/transcript"
	"github.com/pithecene-io/sluice/types"
)

// TranscriptSinkConfig configures a TranscriptSink.
type TranscriptSinkConfig struct {
	// FlushCount triggers a flush after N fragment records accumulate.
	// Zero means count-based flush is disabled.
	FlushCount int

	// FlushInterval triggers a flush every interval.
	// Zero means interval-based flush is disabled.
	FlushInterval time.Duration

	// Logger is an optional logger for flush observability.
	Logger *log.Logger
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a count-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerInterval indicates an interval-based flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerTermination indicates an end-of-stream flush.
	FlushTriggerTermination FlushTrigger = "termination"
)

// ErrInvalidSinkConfig is returned when TranscriptSinkConfig is invalid.
var ErrInvalidSinkConfig = errors.New("invalid transcript sink config: at least one of FlushCount or FlushInterval must be set")

// TranscriptSink persists the fragment stream to a transcript.Store with
// batched writes.
//
// Record flow: Begin writes the open record straight through, fragments
// accumulate in a buffer flushed on count/interval/termination triggers,
// and Finalize flushes the tail and writes the close record. Seq numbers
// are assigned on entry so a delayed flush cannot reorder the transcript.
//
// On flush failure the batch is restored to the front of the buffer and
// retried on the next trigger; fragments are never dropped.
//
// Thread safety:
//   - mu guards buffer state, seq, and counters
//   - flushMu serializes flush operations so batches reach the store in order
type TranscriptSink struct {
	store  transcript.Store
	meta   *types.SessionMeta
	config TranscriptSinkConfig
	logger *log.Logger

	mu        sync.Mutex // guards buffer state, seq, and counters
	buffer    []*transcript.Record
	seq       int64
	fragments int64
	bytes     int64
	began     bool
	finalized bool

	// flushMu serializes flush operations.
	// Prevents concurrent flushes from interval goroutine and count trigger.
	flushMu sync.Mutex

	// flushTrigger counts track how many times each trigger type fired.
	// Guarded by mu.
	flushByCount       int64
	flushByInterval    int64
	flushByTermination int64

	// stopCh signals the interval goroutine to stop.
	stopCh chan struct{}
	// stopped indicates the interval goroutine was told to stop. Guarded by mu.
	stopped bool
}

// NewTranscriptSink creates a transcript sink for one session.
// The store is owned by the caller and stays open after Close.
func NewTranscriptSink(store transcript.Store, meta *types.SessionMeta, config TranscriptSinkConfig) (*TranscriptSink, error) {
	if store == nil {
		return nil, errors.New("transcript store is required")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if config.FlushCount <= 0 && config.FlushInterval <= 0 {
		return nil, ErrInvalidSinkConfig
	}

	s := &TranscriptSink{
		store:  store,
		meta:   meta,
		config: config,
		logger: config.Logger,
		buffer: make([]*transcript.Record, 0, 128),
		stopCh: make(chan struct{}),
	}

	// Start interval flush goroutine if configured
	if config.FlushInterval > 0 {
		go s.intervalLoop()
	}

	return s, nil
}

// Begin writes the open record. Must be called once, before the pipeline
// starts delivering fragments.
func (s *TranscriptSink) Begin(ctx context.Context) error {
	s.mu.Lock()
	if s.began {
		s.mu.Unlock()
		return errors.New("transcript sink already began")
	}
	s.began = true
	s.seq = 1
	rec := transcript.NewOpenRecord(s.meta)
	s.mu.Unlock()

	if err := s.store.Append(ctx, s.meta.ID, []*transcript.Record{rec}); err != nil {
		return fmt.Errorf("failed to write open record: %w", err)
	}
	return nil
}

// WriteFragment buffers a fragment record. Never drops fragments. If the
// count threshold is reached, triggers a flush.
func (s *TranscriptSink) WriteFragment(ctx context.Context, text string) error {
	s.mu.Lock()
	if !s.began {
		s.mu.Unlock()
		return errors.New("transcript sink used before Begin")
	}

	s.seq++
	s.fragments++
	s.bytes += int64(len(text))
	s.buffer = append(s.buffer, transcript.NewFragmentRecord(s.meta.ID, s.seq, text))

	// Check count trigger
	shouldFlush := s.config.FlushCount > 0 && len(s.buffer) >= s.config.FlushCount
	s.mu.Unlock()

	if shouldFlush {
		return s.triggerFlush(ctx, FlushTriggerCount)
	}

	return nil
}

// Close implements pipeline.Sink as the end-of-stream sentinel: it stops
// the interval goroutine and flushes buffered fragments. The close record
// is written later by Finalize, once the session outcome is known.
func (s *TranscriptSink) Close() error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()

	return s.triggerFlush(context.Background(), FlushTriggerTermination)
}

// Finalize flushes remaining fragments and writes the close record.
// Safe to call after Close, and on canceled sessions where the pipeline
// never delivered the sentinel. errMsg is empty for completed sessions.
func (s *TranscriptSink) Finalize(ctx context.Context, outcome types.SessionOutcome, errMsg string) error {
	s.mu.Lock()
	if !s.began {
		s.mu.Unlock()
		return errors.New("transcript sink finalized before Begin")
	}
	if s.finalized {
		s.mu.Unlock()
		return nil
	}
	s.finalized = true
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()

	// Flush the tail first so the close record lands last
	if err := s.triggerFlush(ctx, FlushTriggerTermination); err != nil {
		return err
	}

	s.mu.Lock()
	s.seq++
	rec := transcript.NewCloseRecord(s.meta.ID, s.seq, outcome, errMsg, s.fragments, s.bytes)
	s.mu.Unlock()

	if err := s.store.Append(ctx, s.meta.ID, []*transcript.Record{rec}); err != nil {
		return fmt.Errorf("failed to write close record: %w", err)
	}
	return nil
}

// FlushTriggerStats returns per-trigger flush counts keyed by trigger name,
// in the shape metrics.Collector.AbsorbFlushStats expects.
func (s *TranscriptSink) FlushTriggerStats() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]int64{
		string(FlushTriggerCount):       s.flushByCount,
		string(FlushTriggerInterval):    s.flushByInterval,
		string(FlushTriggerTermination): s.flushByTermination,
	}
}

// triggerFlush performs a flush with the given trigger reason.
// Serialized by flushMu to prevent out-of-order batches.
//
// Strategy: swap the buffer under mu, write outside mu, restore on failure.
// WriteFragment keeps appending to a fresh buffer during the store write.
func (s *TranscriptSink) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	// Swap buffer under mu
	s.mu.Lock()

	// Record trigger type
	switch trigger {
	case FlushTriggerCount:
		s.flushByCount++
	case FlushTriggerInterval:
		s.flushByInterval++
	case FlushTriggerTermination:
		s.flushByTermination++
	}

	records := s.buffer

	// Nothing to flush
	if len(records) == 0 {
		s.mu.Unlock()
		return nil
	}

	// Install a fresh buffer so fragment writes continue during the store write
	s.buffer = make([]*transcript.Record, 0, 128)
	s.mu.Unlock()

	if err := s.store.Append(ctx, s.meta.ID, records); err != nil {
		// Restore: flushed records go back in front of any new data
		s.mu.Lock()
		s.buffer = append(records, s.buffer...)
		s.mu.Unlock()
		s.logFlushFailure(trigger, err)
		return err
	}

	s.logFlush(trigger, len(records))
	return nil
}

// intervalLoop runs in a goroutine and triggers flushes on the configured interval.
func (s *TranscriptSink) intervalLoop() {
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			hasData := len(s.buffer) > 0
			s.mu.Unlock()

			if hasData {
				// Best-effort interval flush; errors logged but not fatal
				_ = s.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *TranscriptSink) logFlush(trigger FlushTrigger, records int) {
	if s.logger == nil {
		return
	}
	s.logger.Debug("transcript flush", map[string]any{
		"trigger": string(trigger),
		"records": records,
	})
}

func (s *TranscriptSink) logFlushFailure(trigger FlushTrigger, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error("transcript flush failed", map[string]any{
		"trigger": string(trigger),
		"error":   err.Error(),
	})
}

// Verify TranscriptSink implements pipeline.Sink.
var _ pipeline.Sink = (*TranscriptSink)(nil)
