// Package session orchestrates single console sessions end to end.
//
// A Runner wires a source, sinks, and an optional transcript recorder into
// one pipeline run, classifies the terminal outcome, and reports completion
// downstream.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/console"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/pipeline"
	"github.com/pithecene-io/sluice/types"
)

// finalizeTimeout bounds the transcript finalize after the stream ends.
const finalizeTimeout = 30 * time.Second

// publishTimeout bounds the completion event publish.
const publishTimeout = 10 * time.Second

// Config configures a single session.
type Config struct {
	// Meta is the session identity metadata.
	Meta *types.SessionMeta
	// Source produces the session's raw output chunks.
	Source pipeline.Source
	// Sink receives normalized fragments for display.
	Sink pipeline.Sink
	// Normalizer rewrites fragments before sink delivery.
	// If nil, fragments pass through unchanged.
	Normalizer pipeline.Normalizer
	// Transcript records the session transcript.
	// If nil, no transcript is recorded.
	Transcript *console.TranscriptSink
	// Publisher publishes the session completion event.
	// If nil, no event is published.
	Publisher adapter.Adapter
	// StoragePath labels where the transcript is persisted. Carried into
	// the result and completion event; informational only.
	StoragePath string
	// Collector is the metrics collector for this session.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Logger overrides the session logger. If nil, a logger writing to
	// stderr is created from Meta. Interactive callers pass a redirected
	// logger so session logs cannot tear the display.
	Logger *log.Logger
}

// Runner executes a single console session.
type Runner struct {
	config    *Config
	logger    *log.Logger
	startTime time.Time
}

// NewRunner creates a session runner.
// Returns an error if the session metadata is invalid or the stream
// endpoints are missing.
func NewRunner(config *Config) (*Runner, error) {
	if err := config.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session metadata: %w", err)
	}
	if config.Source == nil {
		return nil, fmt.Errorf("session requires a source")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("session requires a sink")
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.Meta)
	}

	return &Runner{
		config: config,
		logger: logger,
	}, nil
}

// Execute runs the session end-to-end.
// This is the main entry point for session orchestration.
//
// Execution flow:
//  1. Open the transcript (when recording)
//  2. Run the stream pipeline to completion
//  3. Classify the outcome
//  4. Finalize the transcript (best effort)
//  5. Publish the completion event (best effort)
//  6. Return the result
func (r *Runner) Execute(ctx context.Context) (*types.SessionResult, error) {
	r.startTime = time.Now()
	r.config.Collector.IncSessionStarted()

	r.logger.Info("starting session", map[string]any{
		"kind":   r.config.Meta.Kind,
		"target": r.config.Meta.Target,
	})

	if r.config.Transcript != nil {
		if err := r.config.Transcript.Begin(ctx); err != nil {
			r.logger.Error("failed to open transcript", map[string]any{
				"error": err.Error(),
			})
			// The pipeline never ran, so the source is still ours to release
			iox.DiscardClose(r.config.Source)
			result := r.buildResult(types.OutcomeSinkFailure,
				fmt.Errorf("open transcript: %w", err), nil)
			r.publishCompletion(ctx, result)
			return result, nil
		}
	}

	// The transcript rides the same fragment stream as the display sink,
	// so the pipeline's end sentinel reaches both. Transcript writes are
	// instrumented; display writes already surface through pipeline counters.
	sink := r.config.Sink
	if r.config.Transcript != nil {
		record := console.NewInstrumentedSink(r.config.Transcript, r.config.Collector)
		sink = console.NewFanoutSink(r.config.Sink, record)
	}

	p, err := pipeline.NewPipeline(pipeline.Config{
		Source:     r.config.Source,
		Sink:       sink,
		Normalizer: r.config.Normalizer,
		Logger:     r.logger,
		Collector:  r.config.Collector,
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	runErr := p.Run(ctx)
	outcome, errMsg := classifyOutcome(runErr)

	// Always attempt to finalize the transcript (best effort) on all
	// termination paths, cancellation included.
	// Use WithoutCancel to preserve context values while ignoring parent
	// cancellation.
	if r.config.Transcript != nil {
		finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		finalizeErr := r.config.Transcript.Finalize(finalizeCtx, outcome, errMsg)
		cancel()
		if finalizeErr != nil {
			r.logger.Warn("transcript finalize failed (best effort)", map[string]any{
				"error": finalizeErr.Error(),
			})
			// A session that streamed cleanly but lost its close record is
			// not completed
			if outcome == types.OutcomeCompleted {
				outcome = types.OutcomeSinkFailure
				runErr = fmt.Errorf("transcript finalize failed: %w", finalizeErr)
			}
		}
	}

	r.logger.Info("session finished", map[string]any{
		"outcome":   outcome,
		"fragments": p.FragmentCount(),
		"bytes":     p.ByteCount(),
		"duration":  time.Since(r.startTime).String(),
	})

	result := r.buildResult(outcome, runErr, p)
	r.publishCompletion(ctx, result)

	return result, nil
}

// classifyOutcome maps a pipeline error to the session's terminal status.
func classifyOutcome(err error) (types.SessionOutcome, string) {
	switch {
	case err == nil:
		return types.OutcomeCompleted, ""
	case pipeline.IsSinkError(err):
		return types.OutcomeSinkFailure, err.Error()
	case pipeline.IsCanceledError(err):
		return types.OutcomeCanceled, err.Error()
	default:
		// Source and unclassified failures both read as a broken stream
		return types.OutcomeStreamError, err.Error()
	}
}

// buildResult constructs the final session result and records outcome
// metrics.
func (r *Runner) buildResult(outcome types.SessionOutcome, runErr error, p *pipeline.Pipeline) *types.SessionResult {
	result := &types.SessionResult{
		Meta:        r.config.Meta,
		Outcome:     outcome,
		Err:         runErr,
		Duration:    time.Since(r.startTime),
		StoragePath: r.config.StoragePath,
	}

	if p != nil {
		result.FragmentCount = p.FragmentCount()
		result.ByteCount = p.ByteCount()
	}

	switch outcome {
	case types.OutcomeCompleted:
		r.config.Collector.IncSessionCompleted()
	case types.OutcomeCanceled:
		r.config.Collector.IncSessionCanceled()
	default:
		r.config.Collector.IncSessionFailed()
	}

	if r.config.Transcript != nil {
		r.config.Collector.AbsorbFlushStats(r.config.Transcript.FlushTriggerStats())
	}

	return result
}

// publishCompletion sends the session_completed event (best effort).
func (r *Runner) publishCompletion(ctx context.Context, result *types.SessionResult) {
	if r.config.Publisher == nil {
		return
	}

	event := adapter.NewSessionCompletedEvent(result)
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.config.Publisher.Publish(publishCtx, event); err != nil {
		r.config.Collector.IncPublishFailure()
		r.logger.Warn("completion publish failed (best effort)", map[string]any{
			"error": err.Error(),
		})
		return
	}
	r.config.Collector.IncPublishSuccess()
}
