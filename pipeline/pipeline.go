// Package pipeline drives one console session's output stream to completion.
//
// The pipeline pulls raw byte chunks from a Source, decodes them through a
// decode.Accumulator, passes fragments through an optional Normalizer, and
// forwards non-empty results to a Sink. Stream end and stream failure both
// terminate with the sink's end sentinel (Close) delivered exactly once;
// cancellation tears the session down without touching the sink again.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/sluice/decode"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
)

// Source yields ordered chunks of raw console output.
// Next returns io.EOF when the stream ends cleanly. The returned slice is
// only valid until the following Next call.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Sink receives decoded, normalized fragments.
// WriteFragment is called zero or more times with non-empty text, then Close
// exactly once as the end sentinel. Close is authoritative: no calls follow it.
type Sink interface {
	WriteFragment(ctx context.Context, text string) error
	Close() error
}

// Normalizer rewrites one fragment. Implementations must return the input
// unchanged when nothing matches.
type Normalizer interface {
	Normalize(fragment string) string
}

// State is the pipeline lifecycle state.
type State int

// Pipeline states. Errored absorbs from Init and Streaming.
const (
	StateInit State = iota
	StateStreaming
	StateFinalizing
	StateDone
	StateErrored
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// PipelineErrorKind classifies pipeline failures.
type PipelineErrorKind int

const (
	// PipelineErrorSource indicates the chunk source failed mid-stream.
	PipelineErrorSource PipelineErrorKind = iota
	// PipelineErrorSink indicates a fragment write was rejected downstream.
	PipelineErrorSink
	// PipelineErrorCanceled indicates the session context was canceled.
	PipelineErrorCanceled
)

// PipelineError wraps a pipeline failure with its classification.
//
//nolint:revive // pipeline.PipelineError stutter kept for parallel with kinds
type PipelineError struct {
	Kind PipelineErrorKind
	Err  error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	switch e.Kind {
	case PipelineErrorSource:
		return fmt.Sprintf("source read failed: %v", e.Err)
	case PipelineErrorSink:
		return fmt.Sprintf("sink write failed: %v", e.Err)
	case PipelineErrorCanceled:
		return fmt.Sprintf("session canceled: %v", e.Err)
	default:
		return fmt.Sprintf("pipeline error: %v", e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error { return e.Err }

// IsSourceError returns true if err is a source-read pipeline failure.
func IsSourceError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == PipelineErrorSource
}

// IsSinkError returns true if err is a sink-write pipeline failure.
func IsSinkError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == PipelineErrorSink
}

// IsCanceledError returns true if err is a cancellation pipeline failure.
func IsCanceledError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == PipelineErrorCanceled
}

// Config configures a Pipeline.
type Config struct {
	// Source yields the session's output chunks. Required.
	Source Source
	// Sink receives fragments and the end sentinel. Required.
	Sink Sink
	// Normalizer rewrites fragments before forwarding. Optional; nil
	// forwards decoded text untouched.
	Normalizer Normalizer
	// Logger for stream lifecycle events. Required.
	Logger *log.Logger
	// Collector for stream counters. Optional.
	Collector *metrics.Collector
}

// Pipeline is a single-session stream driver. One Pipeline serves one run;
// Run can be called once.
type Pipeline struct {
	source    Source
	sink      Sink
	norm      Normalizer
	acc       *decode.Accumulator
	logger    *log.Logger
	collector *metrics.Collector

	mu         sync.Mutex
	state      State
	fragments  int64
	bytes      int64
	sinkClosed bool
}

// NewPipeline creates a Pipeline from cfg.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("pipeline: source is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("pipeline: sink is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("pipeline: logger is required")
	}
	return &Pipeline{
		source:    cfg.Source,
		sink:      cfg.Sink,
		norm:      cfg.Normalizer,
		acc:       decode.NewAccumulator(),
		logger:    cfg.Logger,
		collector: cfg.Collector,
	}, nil
}

// Run consumes the source until end of stream, read failure, or
// cancellation. It returns nil on a clean end and a *PipelineError
// otherwise. The source is always released before returning.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.transition(StateInit, StateStreaming) {
		return fmt.Errorf("pipeline: Run called in state %s", p.State())
	}
	defer iox.DiscardClose(p.source)

	for {
		// Cancellation wins over a ready chunk; after teardown the sink
		// must not be invoked again.
		select {
		case <-ctx.Done():
			return p.cancel(ctx.Err())
		default:
		}

		chunk, err := p.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return p.finalize(ctx)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return p.cancel(err)
			}
			return p.failStream(ctx, err)
		}

		p.collector.IncChunkRead(len(chunk))
		p.addBytes(len(chunk))

		if err := p.forward(ctx, p.acc.Append(chunk)); err != nil {
			p.setState(StateErrored)
			return err
		}
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// FragmentCount returns the number of fragments forwarded to the sink,
// the stream-failure notice included.
func (p *Pipeline) FragmentCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fragments
}

// ByteCount returns the number of raw bytes read from the source.
func (p *Pipeline) ByteCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytes
}

// forward normalizes text and writes it to the sink. Empty text, both from
// decoding (a split rune still buffering) and from normalization collapsing
// a fragment to nothing, is never forwarded.
func (p *Pipeline) forward(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if p.norm != nil {
		normalized := p.norm.Normalize(text)
		if normalized != text {
			p.collector.IncFragmentNormalized()
		}
		text = normalized
	}
	if text == "" {
		p.collector.IncFragmentSkipped()
		return nil
	}
	if err := p.sink.WriteFragment(ctx, text); err != nil {
		p.logger.Error("fragment write rejected", map[string]any{"error": err.Error()})
		p.closeSinkOnce()
		return &PipelineError{Kind: PipelineErrorSink, Err: err}
	}
	p.addFragment()
	p.collector.IncFragmentForwarded()
	return nil
}

// finalize flushes the accumulator's residue and delivers the end sentinel.
func (p *Pipeline) finalize(ctx context.Context) error {
	p.setState(StateFinalizing)
	if err := p.forward(ctx, p.acc.Finalize()); err != nil {
		p.setState(StateErrored)
		return err
	}
	p.closeSinkOnce()
	p.setState(StateDone)
	p.logger.Info("stream ended", map[string]any{
		"fragments": p.FragmentCount(),
		"bytes":     p.ByteCount(),
	})
	return nil
}

// failStream surfaces a read failure: decodable residue first (buffered
// bytes are never dropped silently), then one human-readable notice, then
// the sentinel. The source is not read again.
func (p *Pipeline) failStream(ctx context.Context, readErr error) error {
	if err := p.forward(ctx, p.acc.Finalize()); err != nil {
		p.setState(StateErrored)
		return err
	}

	notice := fmt.Sprintf("\n[output stream error: %v]\n", readErr)
	if err := p.sink.WriteFragment(ctx, notice); err != nil {
		p.logger.Warn("stream error notice rejected", map[string]any{"error": err.Error()})
	} else {
		p.addFragment()
		p.collector.IncFragmentForwarded()
	}

	p.closeSinkOnce()
	p.setState(StateErrored)
	p.logger.Error("stream read failed", map[string]any{
		"error":     readErr.Error(),
		"fragments": p.FragmentCount(),
	})
	return &PipelineError{Kind: PipelineErrorSource, Err: readErr}
}

// cancel records teardown. No sink calls happen here: the caller abandoned
// the session and the sink may already be gone.
func (p *Pipeline) cancel(cause error) error {
	p.setState(StateErrored)
	p.logger.Warn("session canceled", map[string]any{
		"fragments": p.FragmentCount(),
		"bytes":     p.ByteCount(),
	})
	return &PipelineError{Kind: PipelineErrorCanceled, Err: cause}
}

// closeSinkOnce delivers the end sentinel at most once.
func (p *Pipeline) closeSinkOnce() {
	p.mu.Lock()
	if p.sinkClosed {
		p.mu.Unlock()
		return
	}
	p.sinkClosed = true
	p.mu.Unlock()

	if err := p.sink.Close(); err != nil {
		p.logger.Warn("sink close failed", map[string]any{"error": err.Error()})
	}
}

func (p *Pipeline) transition(from, to State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != from {
		return false
	}
	p.state = to
	return true
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) addFragment() {
	p.mu.Lock()
	p.fragments++
	p.mu.Unlock()
}

func (p *Pipeline) addBytes(n int) {
	p.mu.Lock()
	p.bytes += int64(n)
	p.mu.Unlock()
}
