// Package console provides pipeline.Sink implementations: live writer
// output, in-memory capture, fan-out, and transcript persistence.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/pipeline"
)

// WriterSink writes fragments verbatim to an io.Writer.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// WriteFragment implements pipeline.Sink.
func (s *WriterSink) WriteFragment(_ context.Context, text string) error {
	if _, err := io.WriteString(s.w, text); err != nil {
		return fmt.Errorf("failed to write fragment: %w", err)
	}
	return nil
}

// Close implements pipeline.Sink. The underlying writer is owned by the
// caller and stays open.
func (s *WriterSink) Close() error {
	return nil
}

// CaptureSink records fragments without forwarding them anywhere.
// Tracks write and close statistics for assertions and inspection.
type CaptureSink struct {
	mu sync.Mutex

	// Fragments stores all written fragments in order.
	Fragments []string
	// CloseCalls is the number of Close invocations.
	CloseCalls int
	// ErrorOnWrite, if non-nil, is returned by WriteFragment.
	ErrorOnWrite error
}

// NewCaptureSink creates a new capture sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{Fragments: make([]string, 0)}
}

// WriteFragment records the fragment.
func (s *CaptureSink) WriteFragment(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	s.Fragments = append(s.Fragments, text)
	return nil
}

// Close marks the end of the stream.
func (s *CaptureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CloseCalls++
	return nil
}

// Text returns the captured output as one string.
func (s *CaptureSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return strings.Join(s.Fragments, "")
}

// Snapshot returns a copy of the captured fragments.
func (s *CaptureSink) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.Fragments))
	copy(out, s.Fragments)
	return out
}

// FanoutSink forwards each fragment to every child sink in order.
// The first write error stops the fan-out and is returned; ordering within
// each child is preserved.
type FanoutSink struct {
	sinks []pipeline.Sink

	mu     sync.Mutex
	closed bool
}

// NewFanoutSink creates a fan-out over the given sinks.
func NewFanoutSink(sinks ...pipeline.Sink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

// WriteFragment implements pipeline.Sink.
func (s *FanoutSink) WriteFragment(ctx context.Context, text string) error {
	for _, sink := range s.sinks {
		if err := sink.WriteFragment(ctx, text); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every child exactly once, even after an earlier child close
// fails, and returns the first error.
func (s *FanoutSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InstrumentedSink wraps a sink and records write outcomes on the metrics
// collector. Each WriteFragment call increments transcript_write_success or
// transcript_write_failure.
type InstrumentedSink struct {
	inner     pipeline.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner pipeline.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteFragment delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteFragment(ctx context.Context, text string) error {
	err := s.inner.WriteFragment(ctx, text)
	if err != nil {
		s.collector.IncTranscriptWriteFailure()
	} else {
		s.collector.IncTranscriptWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

// Verify sink implementations satisfy pipeline.Sink.
var (
	_ pipeline.Sink = (*WriterSink)(nil)
	_ pipeline.Sink = (*CaptureSink)(nil)
	_ pipeline.Sink = (*FanoutSink)(nil)
	_ pipeline.Sink = (*InstrumentedSink)(nil)
)
