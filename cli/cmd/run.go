package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/adapter/redis"
	"github.com/pithecene-io/sluice/adapter/webhook"
	"github.com/pithecene-io/sluice/cli/tui"
	"github.com/pithecene-io/sluice/console"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/normalize"
	"github.com/pithecene-io/sluice/pipeline"
	"github.com/pithecene-io/sluice/session"
	"github.com/pithecene-io/sluice/source"
	"github.com/pithecene-io/sluice/transcript"
	"github.com/pithecene-io/sluice/types"
)

// Exit codes for streaming commands.
const (
	exitCompleted   = 0
	exitStreamError = 1
	exitCanceled    = 2
	exitSinkFailure = 3
)

// Transcript flush defaults when neither trigger is configured.
const (
	defaultFlushCount    = 32
	defaultFlushInterval = 2 * time.Second
)

// RunCommand returns the run command.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a script file and stream its console output",
		ArgsUsage: "<file>",
		Flags:     sessionFlags(),
		Action:    runAction,
	}
}

func runAction(c *cli.Context) error {
	return startSession(c, types.SessionKindFile)
}

// sessionFlags returns the flags shared by run and exec.
func sessionFlags() []cli.Flag {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "Execution service base URL",
		},
		&cli.DurationFlag{
			Name:  "connect-timeout",
			Usage: "Timeout for dialing the execution service",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session ID (generated when omitted)",
		},
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "Disable progress-redraw collapsing",
		},
		&cli.BoolFlag{
			Name:  "session-dedupe",
			Usage: "Suppress repeated panel headers across fragment boundaries",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress the result summary",
		},
		TUIFlag,
		&cli.BoolFlag{
			Name:  "no-transcript",
			Usage: "Disable transcript recording",
		},
	}
	flags = append(flags, storeFlags()...)
	flags = append(flags,
		&cli.IntFlag{
			Name:  "flush-count",
			Usage: "Flush the transcript buffer every N fragments",
		},
		&cli.DurationFlag{
			Name:  "flush-interval",
			Usage: "Flush the transcript buffer on this interval",
		},
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion adapter: redis or webhook",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Completion adapter URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel for completion events",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-publish timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Completion publish retry attempts (-1 uses the adapter default)",
			Value: -1,
		},
	)
	return flags
}

// sessionChoice holds merged flag and config file session settings.
// Flags win over config values.
type sessionChoice struct {
	endpoint       string
	connectTimeout time.Duration
	sessionID      string
	raw            bool
	sessionDedupe  bool
	markers        []string
	quiet          bool
	tui            bool
	transcript     transcriptChoice
	adapter        adapterChoice
}

// transcriptChoice holds parsed transcript storage configuration.
type transcriptChoice struct {
	enabled       bool
	backend       string // "fs" or "s3"
	path          string // fs: directory, s3: bucket/prefix
	region        string
	endpoint      string
	pathStyle     bool
	flushCount    int
	flushInterval time.Duration
}

// adapterChoice holds parsed completion adapter configuration.
type adapterChoice struct {
	typ     string // "redis" or "webhook"
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int // -1 means adapter default
}

func parseSessionChoice(c *cli.Context) (*sessionChoice, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	choice := &sessionChoice{
		endpoint:       cfg.Endpoint.URL,
		connectTimeout: cfg.Endpoint.ConnectTimeout.Duration,
		sessionID:      c.String("session-id"),
		raw:            c.Bool("raw") || cfg.Console.Raw,
		sessionDedupe:  c.Bool("session-dedupe") || cfg.Console.SessionDedupe,
		markers:        cfg.Console.Markers,
		quiet:          c.Bool("quiet"),
		tui:            c.Bool("tui") || cfg.Console.TUI,
	}
	if c.IsSet("endpoint") {
		choice.endpoint = c.String("endpoint")
	}
	if c.IsSet("connect-timeout") {
		choice.connectTimeout = c.Duration("connect-timeout")
	}

	choice.transcript = transcriptChoice{
		backend:       cfg.Transcript.Backend,
		path:          cfg.Transcript.Path,
		region:        cfg.Transcript.Region,
		endpoint:      cfg.Transcript.Endpoint,
		pathStyle:     cfg.Transcript.S3PathStyle,
		flushCount:    cfg.Transcript.FlushCount,
		flushInterval: cfg.Transcript.FlushInterval.Duration,
	}
	if c.IsSet("backend") {
		choice.transcript.backend = c.String("backend")
	}
	if c.IsSet("path") {
		choice.transcript.path = c.String("path")
	}
	if c.IsSet("s3-region") {
		choice.transcript.region = c.String("s3-region")
	}
	if c.IsSet("s3-endpoint") {
		choice.transcript.endpoint = c.String("s3-endpoint")
	}
	if c.IsSet("s3-path-style") {
		choice.transcript.pathStyle = c.Bool("s3-path-style")
	}
	if c.IsSet("flush-count") {
		choice.transcript.flushCount = c.Int("flush-count")
	}
	if c.IsSet("flush-interval") {
		choice.transcript.flushInterval = c.Duration("flush-interval")
	}

	// Recording defaults to on when a path is configured; an explicit
	// config toggle or --no-transcript overrides.
	enabled := choice.transcript.path != ""
	if cfg.Transcript.Enabled != nil {
		enabled = *cfg.Transcript.Enabled
	}
	if c.Bool("no-transcript") {
		enabled = false
	}
	choice.transcript.enabled = enabled && choice.transcript.path != ""

	if choice.transcript.flushCount <= 0 && choice.transcript.flushInterval <= 0 {
		choice.transcript.flushCount = defaultFlushCount
		choice.transcript.flushInterval = defaultFlushInterval
	}

	choice.adapter = adapterChoice{
		typ:     cfg.Adapter.Type,
		url:     cfg.Adapter.URL,
		channel: cfg.Adapter.Channel,
		headers: cfg.Adapter.Headers,
		timeout: cfg.Adapter.Timeout.Duration,
		retries: -1,
	}
	if cfg.Adapter.Retries != nil {
		choice.adapter.retries = *cfg.Adapter.Retries
	}
	if c.IsSet("adapter") {
		choice.adapter.typ = c.String("adapter")
	}
	if c.IsSet("adapter-url") {
		choice.adapter.url = c.String("adapter-url")
	}
	if c.IsSet("adapter-channel") {
		choice.adapter.channel = c.String("adapter-channel")
	}
	if c.IsSet("adapter-timeout") {
		choice.adapter.timeout = c.Duration("adapter-timeout")
	}
	if c.IsSet("adapter-retries") {
		choice.adapter.retries = c.Int("adapter-retries")
	}

	return choice, nil
}

// startSession runs one console session end to end. Shared by run and exec;
// the two differ only in the endpoint the stream is opened against.
func startSession(c *cli.Context, kind types.SessionKind) error {
	if c.NArg() < 1 {
		if kind == types.SessionKindFile {
			return cli.Exit("script file required", exitStreamError)
		}
		return cli.Exit("command required", exitStreamError)
	}

	choice, err := parseSessionChoice(c)
	if err != nil {
		return err
	}

	target := c.Args().First()
	if kind == types.SessionKindCommand {
		target = strings.Join(c.Args().Slice(), " ")
	}

	sessionID := choice.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	meta := &types.SessionMeta{
		ID:        sessionID,
		Kind:      kind,
		Target:    target,
		StartedAt: time.Now().UTC(),
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	useTUI := choice.tui
	if useTUI && !tui.IsTUISupported() {
		fmt.Fprintln(os.Stderr, "Warning: terminal does not support the TUI, falling back to plain output")
		useTUI = false
	}

	// Under the TUI the terminal belongs to the viewer; stderr log lines
	// would tear the display.
	logger := log.NewLogger(meta)
	if useTUI {
		logger = logger.WithOutput(io.Discard)
	}

	backendLabel := "none"
	if choice.transcript.enabled {
		backendLabel = choice.transcript.backend
		if backendLabel == "" {
			backendLabel = "fs"
		}
	}
	collector := metrics.NewCollector(string(kind), backendLabel, sessionID)

	var (
		tsink       *console.TranscriptSink
		storagePath string
	)
	if choice.transcript.enabled {
		store, url, err := buildStore(ctx, choice.transcript)
		if err != nil {
			return fmt.Errorf("failed to create transcript store: %w", err)
		}
		defer iox.DiscardClose(store)
		storagePath = url

		tsink, err = console.NewTranscriptSink(store, meta, console.TranscriptSinkConfig{
			FlushCount:    choice.transcript.flushCount,
			FlushInterval: choice.transcript.flushInterval,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create transcript sink: %w", err)
		}
	}

	publisher, err := buildPublisher(choice.adapter)
	if err != nil {
		return fmt.Errorf("failed to create completion adapter: %w", err)
	}
	if publisher != nil {
		defer iox.DiscardClose(publisher)
	}

	var norm pipeline.Normalizer
	switch {
	case choice.raw:
		// raw output passes through untouched
	case choice.sessionDedupe:
		norm = normalize.NewSessionNormalizer(normalize.WithPanelMarkers(choice.markers))
	default:
		norm = normalize.NewNormalizer(normalize.WithPanelMarkers(choice.markers))
	}

	var (
		display pipeline.Sink
		feed    *tui.Feed
	)
	if useTUI {
		feed = tui.NewFeed()
		display = feed
	} else {
		display = console.NewWriterSink(os.Stdout)
	}

	client := source.NewClient(source.Config{
		BaseURL:        choice.endpoint,
		ConnectTimeout: choice.connectTimeout,
	})
	defer iox.DiscardClose(client)

	stream, err := openStream(ctx, client, kind, sessionID, target)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	runner, err := session.NewRunner(&session.Config{
		Meta:        meta,
		Source:      stream,
		Sink:        display,
		Normalizer:  norm,
		Transcript:  tsink,
		Publisher:   publisher,
		StoragePath: storagePath,
		Collector:   collector,
		Logger:      logger,
	})
	if err != nil {
		iox.DiscardClose(stream)
		return fmt.Errorf("failed to create session: %w", err)
	}

	var result *types.SessionResult
	if useTUI {
		result, err = runSessionTUI(ctx, cancel, runner, meta, feed)
	} else {
		result, err = runner.Execute(ctx)
	}
	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}
	if result == nil {
		return fmt.Errorf("session produced no result")
	}

	if !choice.quiet {
		printSessionResult(result)
	}

	return cli.Exit("", outcomeToExitCode(result.Outcome))
}

// runSessionTUI executes the session behind the console viewer. The viewer
// owns the terminal; the session runs in a goroutine feeding it.
func runSessionTUI(ctx context.Context, cancel context.CancelFunc, runner *session.Runner, meta *types.SessionMeta, feed *tui.Feed) (*types.SessionResult, error) {
	type sessionReturn struct {
		result *types.SessionResult
		err    error
	}

	done := make(chan sessionReturn, 1)
	go func() {
		result, err := runner.Execute(ctx)
		done <- sessionReturn{result: result, err: err}
		feed.Done(result)
	}()

	model := tui.NewConsoleModel(meta, feed, cancel)
	if _, err := tui.RunConsoleTUI(model); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("console viewer failed: %w", err)
	}

	ret := <-done
	return ret.result, ret.err
}

// openStream starts the run against the endpoint matching the session kind.
func openStream(ctx context.Context, client *source.Client, kind types.SessionKind, sessionID, target string) (*source.Stream, error) {
	if kind == types.SessionKindFile {
		return client.RunFile(ctx, sessionID, target)
	}
	return client.RunCommand(ctx, sessionID, target)
}

// buildStore creates the transcript store for the chosen backend and returns
// it with the storage path label carried into results and events.
func buildStore(ctx context.Context, choice transcriptChoice) (transcript.Store, string, error) {
	switch choice.backend {
	case "fs", "":
		store, err := transcript.NewFSStore(choice.path)
		if err != nil {
			return nil, "", err
		}
		return store, storageURL("fs", choice.path), nil

	case "s3":
		bucket, prefix := transcript.ParseS3Path(choice.path)
		store, err := transcript.NewS3Store(ctx, transcript.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.pathStyle,
		})
		if err != nil {
			return nil, "", err
		}
		return store, storageURL("s3", choice.path), nil

	default:
		return nil, "", fmt.Errorf("unknown transcript backend: %s (must be fs or s3)", choice.backend)
	}
}

// storageURL labels where transcripts land for results and completion events.
func storageURL(backend, path string) string {
	if backend == "s3" {
		return "s3://" + path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return "file://" + abs
	}
	return "file://" + path
}

// buildPublisher creates the completion adapter, or nil when none is
// configured. The retry default lives here so that an explicit zero in the
// config still means no retries.
func buildPublisher(choice adapterChoice) (adapter.Adapter, error) {
	switch choice.typ {
	case "":
		return nil, nil

	case "redis":
		retries := redis.DefaultRetries
		if choice.retries >= 0 {
			retries = choice.retries
		}
		return redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: retries,
		})

	case "webhook":
		retries := webhook.DefaultRetries
		if choice.retries >= 0 {
			retries = choice.retries
		}
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: retries,
		})

	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be redis or webhook)", choice.typ)
	}
}

func outcomeToExitCode(outcome types.SessionOutcome) int {
	switch outcome {
	case types.OutcomeCompleted:
		return exitCompleted
	case types.OutcomeCanceled:
		return exitCanceled
	case types.OutcomeSinkFailure:
		return exitSinkFailure
	default:
		return exitStreamError
	}
}

func printSessionResult(result *types.SessionResult) {
	fmt.Printf("\nsession_id=%s, kind=%s, outcome=%s, duration=%s\n",
		result.Meta.ID,
		result.Meta.Kind,
		result.Outcome,
		result.Duration.Round(time.Millisecond),
	)
	fmt.Printf("fragments=%d, bytes=%d\n", result.FragmentCount, result.ByteCount)

	if result.StoragePath != "" {
		fmt.Printf("transcript=%s\n", result.StoragePath)
	}
	if result.Err != nil {
		fmt.Printf("error=%v\n", result.Err)
	}
}
