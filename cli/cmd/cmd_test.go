package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/transcript"
	"github.com/pithecene-io/sluice/types"
)

func newTestApp(cmds ...*cli.Command) *cli.App {
	app := cli.NewApp()
	app.Commands = cmds
	app.ExitErrHandler = func(c *cli.Context, err error) {} // suppress os.Exit
	return app
}

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sluice.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// captureSessionChoice runs parseSessionChoice through a real flag parse.
func captureSessionChoice(t *testing.T, args ...string) *sessionChoice {
	t.Helper()

	var captured *sessionChoice
	app := newTestApp(&cli.Command{
		Name:  "capture",
		Flags: sessionFlags(),
		Action: func(c *cli.Context) error {
			choice, err := parseSessionChoice(c)
			if err != nil {
				return err
			}
			captured = choice
			return nil
		},
	})

	argv := append([]string{"sluice", "capture"}, args...)
	if err := app.Run(argv); err != nil {
		t.Fatalf("capture run failed: %v", err)
	}
	if captured == nil {
		t.Fatal("session choice not captured")
	}
	return captured
}

func TestOutcomeToExitCode(t *testing.T) {
	tests := []struct {
		outcome types.SessionOutcome
		want    int
	}{
		{types.OutcomeCompleted, exitCompleted},
		{types.OutcomeStreamError, exitStreamError},
		{types.OutcomeCanceled, exitCanceled},
		{types.OutcomeSinkFailure, exitSinkFailure},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			if got := outcomeToExitCode(tt.outcome); got != tt.want {
				t.Errorf("outcomeToExitCode(%q) = %d, want %d", tt.outcome, got, tt.want)
			}
		})
	}
}

func TestOutcomeToExitCode_UnknownDefaultsToStreamError(t *testing.T) {
	if got := outcomeToExitCode(types.SessionOutcome("bogus")); got != exitStreamError {
		t.Errorf("unknown outcome = %d, want %d", got, exitStreamError)
	}
}

func TestExitCodeContractValues(t *testing.T) {
	// Exit codes are wired into CI scripts; the numbers are load-bearing.
	if exitCompleted != 0 {
		t.Errorf("exitCompleted = %d, want 0", exitCompleted)
	}
	if exitStreamError != 1 {
		t.Errorf("exitStreamError = %d, want 1", exitStreamError)
	}
	if exitCanceled != 2 {
		t.Errorf("exitCanceled = %d, want 2", exitCanceled)
	}
	if exitSinkFailure != 3 {
		t.Errorf("exitSinkFailure = %d, want 3", exitSinkFailure)
	}
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestStorageURL(t *testing.T) {
	if got := storageURL("fs", "/var/sluice"); got != "file:///var/sluice" {
		t.Errorf("fs url = %q, want file:///var/sluice", got)
	}
	if got := storageURL("s3", "bucket/console"); got != "s3://bucket/console" {
		t.Errorf("s3 url = %q, want s3://bucket/console", got)
	}
}

func TestBuildStore_FS(t *testing.T) {
	dir := t.TempDir()
	store, url, err := buildStore(context.Background(), transcriptChoice{backend: "fs", path: dir})
	if err != nil {
		t.Fatalf("buildStore failed: %v", err)
	}
	defer store.Close()

	if !strings.HasPrefix(url, "file://") {
		t.Errorf("storage url = %q, want file:// prefix", url)
	}
}

func TestBuildStore_EmptyBackendDefaultsToFS(t *testing.T) {
	store, url, err := buildStore(context.Background(), transcriptChoice{path: t.TempDir()})
	if err != nil {
		t.Fatalf("buildStore failed: %v", err)
	}
	defer store.Close()

	if !strings.HasPrefix(url, "file://") {
		t.Errorf("storage url = %q, want file:// prefix", url)
	}
}

func TestBuildStore_UnknownBackend(t *testing.T) {
	_, _, err := buildStore(context.Background(), transcriptChoice{backend: "zfs", path: "x"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "unknown transcript backend") {
		t.Errorf("error = %v, want mention of unknown transcript backend", err)
	}
}

func TestBuildPublisher_NoneConfigured(t *testing.T) {
	pub, err := buildPublisher(adapterChoice{})
	if err != nil {
		t.Fatalf("buildPublisher failed: %v", err)
	}
	if pub != nil {
		t.Error("expected nil publisher when no adapter configured")
	}
}

func TestBuildPublisher_UnknownType(t *testing.T) {
	_, err := buildPublisher(adapterChoice{typ: "kafka", url: "x"})
	if err == nil {
		t.Fatal("expected error for unknown adapter type")
	}
	if !strings.Contains(err.Error(), "unknown adapter type") {
		t.Errorf("error = %v, want mention of unknown adapter type", err)
	}
}

func TestBuildPublisher_Webhook(t *testing.T) {
	pub, err := buildPublisher(adapterChoice{
		typ:     "webhook",
		url:     "https://hooks.example.com/done",
		retries: -1,
	})
	if err != nil {
		t.Fatalf("buildPublisher failed: %v", err)
	}
	if pub == nil {
		t.Fatal("expected webhook publisher")
	}
	_ = pub.Close()
}

func TestBuildPublisher_RedisInvalidURL(t *testing.T) {
	_, err := buildPublisher(adapterChoice{typ: "redis", url: "not-a-url", retries: -1})
	if err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestParseSessionChoice_Defaults(t *testing.T) {
	cfg := writeConfig(t, "")
	choice := captureSessionChoice(t, "--config", cfg)

	if choice.endpoint != "" {
		t.Errorf("endpoint = %q, want empty (client applies default)", choice.endpoint)
	}
	if choice.raw || choice.tui || choice.quiet {
		t.Error("bool settings should default to false")
	}
	if choice.transcript.enabled {
		t.Error("transcript should be disabled without a path")
	}
	if choice.transcript.flushCount != defaultFlushCount {
		t.Errorf("flush count = %d, want %d", choice.transcript.flushCount, defaultFlushCount)
	}
	if choice.transcript.flushInterval != defaultFlushInterval {
		t.Errorf("flush interval = %v, want %v", choice.transcript.flushInterval, defaultFlushInterval)
	}
	if choice.adapter.typ != "" {
		t.Errorf("adapter type = %q, want empty", choice.adapter.typ)
	}
	if choice.adapter.retries != -1 {
		t.Errorf("adapter retries = %d, want -1 (adapter default)", choice.adapter.retries)
	}
}

func TestParseSessionChoice_ConfigProvidesValues(t *testing.T) {
	cfg := writeConfig(t, `
endpoint:
  url: http://10.0.0.5:7617
  connect_timeout: 3s
console:
  raw: true
  tui: true
  session_dedupe: true
  markers:
    - Build Log
transcript:
  backend: s3
  path: bucket/console
  region: us-east-1
  flush_count: 64
  flush_interval: 5s
adapter:
  type: webhook
  url: https://hooks.example.com/done
  headers:
    X-Token: abc
  timeout: 4s
  retries: 7
`)
	choice := captureSessionChoice(t, "--config", cfg)

	if choice.endpoint != "http://10.0.0.5:7617" {
		t.Errorf("endpoint = %q", choice.endpoint)
	}
	if choice.connectTimeout != 3*time.Second {
		t.Errorf("connect timeout = %v, want 3s", choice.connectTimeout)
	}
	if !choice.raw || !choice.tui || !choice.sessionDedupe {
		t.Error("console settings from config not applied")
	}
	if len(choice.markers) != 1 || choice.markers[0] != "Build Log" {
		t.Errorf("markers = %v", choice.markers)
	}
	if !choice.transcript.enabled {
		t.Error("transcript should be enabled when config sets a path")
	}
	if choice.transcript.backend != "s3" || choice.transcript.path != "bucket/console" {
		t.Errorf("transcript = %+v", choice.transcript)
	}
	if choice.transcript.region != "us-east-1" {
		t.Errorf("region = %q", choice.transcript.region)
	}
	if choice.transcript.flushCount != 64 || choice.transcript.flushInterval != 5*time.Second {
		t.Errorf("flush triggers = %d/%v", choice.transcript.flushCount, choice.transcript.flushInterval)
	}
	if choice.adapter.typ != "webhook" || choice.adapter.url != "https://hooks.example.com/done" {
		t.Errorf("adapter = %+v", choice.adapter)
	}
	if choice.adapter.headers["X-Token"] != "abc" {
		t.Errorf("adapter headers = %v", choice.adapter.headers)
	}
	if choice.adapter.timeout != 4*time.Second {
		t.Errorf("adapter timeout = %v", choice.adapter.timeout)
	}
	if choice.adapter.retries != 7 {
		t.Errorf("adapter retries = %d, want 7", choice.adapter.retries)
	}
}

func TestParseSessionChoice_FlagsOverrideConfig(t *testing.T) {
	cfg := writeConfig(t, `
endpoint:
  url: http://config-host:7617
transcript:
  backend: fs
  path: /config/path
  flush_interval: 5s
`)
	choice := captureSessionChoice(t, "--config", cfg,
		"--endpoint", "http://flag-host:7617",
		"--backend", "s3",
		"--path", "flag-bucket/prefix",
		"--flush-count", "8",
	)

	if choice.endpoint != "http://flag-host:7617" {
		t.Errorf("endpoint = %q, flag should win", choice.endpoint)
	}
	if choice.transcript.backend != "s3" {
		t.Errorf("backend = %q, flag should win", choice.transcript.backend)
	}
	if choice.transcript.path != "flag-bucket/prefix" {
		t.Errorf("path = %q, flag should win", choice.transcript.path)
	}
	if choice.transcript.flushCount != 8 {
		t.Errorf("flush count = %d, want 8", choice.transcript.flushCount)
	}
	// Config keeps the trigger the flag did not touch.
	if choice.transcript.flushInterval != 5*time.Second {
		t.Errorf("flush interval = %v, want 5s from config", choice.transcript.flushInterval)
	}
}

func TestParseSessionChoice_NoTranscriptFlag(t *testing.T) {
	cfg := writeConfig(t, "transcript:\n  path: /data/transcripts\n")
	choice := captureSessionChoice(t, "--config", cfg, "--no-transcript")

	if choice.transcript.enabled {
		t.Error("--no-transcript should disable recording")
	}
}

func TestParseSessionChoice_ConfigDisablesTranscript(t *testing.T) {
	cfg := writeConfig(t, "transcript:\n  enabled: false\n  path: /data/transcripts\n")
	choice := captureSessionChoice(t, "--config", cfg)

	if choice.transcript.enabled {
		t.Error("enabled: false in config should disable recording")
	}
}

func TestParseSessionChoice_ExplicitZeroRetries(t *testing.T) {
	cfg := writeConfig(t, `
adapter:
  type: webhook
  url: https://hooks.example.com/done
  retries: 0
`)
	choice := captureSessionChoice(t, "--config", cfg)

	// Zero is an explicit "no retries", not an unset value.
	if choice.adapter.retries != 0 {
		t.Errorf("adapter retries = %d, want 0", choice.adapter.retries)
	}
}

func TestParseStoreChoice_RequiresPath(t *testing.T) {
	cfg := writeConfig(t, "")

	app := newTestApp(&cli.Command{
		Name:  "capture",
		Flags: append(ReadOnlyFlags(), storeFlags()...),
		Action: func(c *cli.Context) error {
			_, err := parseStoreChoice(c)
			return err
		},
	})

	err := app.Run([]string{"sluice", "capture", "--config", cfg})
	if err == nil {
		t.Fatal("expected error for missing path")
	}
	if !strings.Contains(err.Error(), "transcript path required") {
		t.Errorf("error = %v, want mention of transcript path", err)
	}
}

func TestParseStoreChoice_FlagOverridesConfig(t *testing.T) {
	cfg := writeConfig(t, "transcript:\n  path: /config/path\n")

	var captured transcriptChoice
	app := newTestApp(&cli.Command{
		Name:  "capture",
		Flags: append(ReadOnlyFlags(), storeFlags()...),
		Action: func(c *cli.Context) error {
			choice, err := parseStoreChoice(c)
			if err != nil {
				return err
			}
			captured = choice
			return nil
		},
	})

	if err := app.Run([]string{"sluice", "capture", "--config", cfg, "--path", "/flag/path"}); err != nil {
		t.Fatalf("capture run failed: %v", err)
	}
	if captured.path != "/flag/path" {
		t.Errorf("path = %q, flag should win", captured.path)
	}
}

func TestRunAction_MissingTarget(t *testing.T) {
	app := newTestApp(RunCommand())

	err := app.Run([]string{"sluice", "run"})
	if err == nil {
		t.Fatal("expected error for missing target")
	}
	if !strings.Contains(err.Error(), "script file required") {
		t.Errorf("error = %v, want script file required", err)
	}
}

func TestExecAction_MissingTarget(t *testing.T) {
	app := newTestApp(ExecCommand())

	err := app.Run([]string{"sluice", "exec"})
	if err == nil {
		t.Fatal("expected error for missing target")
	}
	if !strings.Contains(err.Error(), "command required") {
		t.Errorf("error = %v, want command required", err)
	}
}

func TestRunAction_UnknownBackendFails(t *testing.T) {
	cfg := writeConfig(t, "")
	app := newTestApp(RunCommand())

	err := app.Run([]string{"sluice", "run",
		"--config", cfg,
		"--backend", "zfs",
		"--path", "/tmp/x",
		"demo.py",
	})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "unknown transcript backend") {
		t.Errorf("error = %v", err)
	}
}

func TestRunAction_UnknownAdapterFails(t *testing.T) {
	cfg := writeConfig(t, "")
	app := newTestApp(RunCommand())

	err := app.Run([]string{"sluice", "run",
		"--config", cfg,
		"--adapter", "kafka",
		"--adapter-url", "broker:9092",
		"demo.py",
	})
	if err == nil {
		t.Fatal("expected error for unknown adapter")
	}
	if !strings.Contains(err.Error(), "unknown adapter type") {
		t.Errorf("error = %v", err)
	}
}

func TestReplayAction_MissingSessionID(t *testing.T) {
	app := newTestApp(ReplayCommand())

	err := app.Run([]string{"sluice", "replay"})
	if err == nil {
		t.Fatal("expected error for missing session id")
	}
	if !strings.Contains(err.Error(), "session id required") {
		t.Errorf("error = %v", err)
	}
}

func TestReplayAction_SessionNotFound(t *testing.T) {
	cfg := writeConfig(t, "")
	app := newTestApp(ReplayCommand())

	err := app.Run([]string{"sluice", "replay",
		"--config", cfg,
		"--path", t.TempDir(),
		"no-such-session",
	})
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
	if !strings.Contains(err.Error(), "no transcript for session") {
		t.Errorf("error = %v", err)
	}
}

func TestInspectAction_SessionNotFound(t *testing.T) {
	cfg := writeConfig(t, "")
	app := newTestApp(InspectCommand())

	err := app.Run([]string{"sluice", "inspect",
		"--config", cfg,
		"--path", t.TempDir(),
		"--format", "json",
		"no-such-session",
	})
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
	if !strings.Contains(err.Error(), "no transcript for session") {
		t.Errorf("error = %v", err)
	}
}

func TestInspectAction_TUIRejected(t *testing.T) {
	app := newTestApp(InspectCommand())

	err := app.Run([]string{"sluice", "inspect", "--tui", "some-id"})
	if err == nil {
		t.Fatal("expected error for --tui")
	}
	if !strings.Contains(err.Error(), "--tui is not supported for inspect") {
		t.Errorf("error = %v", err)
	}
}

func TestVersionAction_TUIRejected(t *testing.T) {
	app := newTestApp(VersionCommand("abc123"))

	err := app.Run([]string{"sluice", "version", "--tui"})
	if err == nil {
		t.Fatal("expected error for --tui")
	}
	if !strings.Contains(err.Error(), "--tui is not supported for version") {
		t.Errorf("error = %v", err)
	}
}

func TestSummarizeTranscript_CompleteSession(t *testing.T) {
	records := []*transcript.Record{
		{Kind: transcript.RecordKindOpen, SchemaVersion: types.SchemaVersion, SessionID: "s-1", Seq: 1, Ts: "2026-01-02T03:04:05Z", SessionKind: "file", Target: "demo.py"},
		{Kind: transcript.RecordKindFragment, SessionID: "s-1", Seq: 2, Text: "hello"},
		{Kind: transcript.RecordKindFragment, SessionID: "s-1", Seq: 3, Text: "world"},
		{Kind: transcript.RecordKindClose, SessionID: "s-1", Seq: 4, Ts: "2026-01-02T03:04:07Z", Outcome: "completed", FragmentCount: 2, ByteCount: 10},
	}

	summary := summarizeTranscript(records)

	if summary.SessionID != "s-1" || summary.SessionKind != "file" || summary.Target != "demo.py" {
		t.Errorf("identity fields = %+v", summary)
	}
	if summary.Outcome != "completed" {
		t.Errorf("outcome = %q, want completed", summary.Outcome)
	}
	if summary.Records != 4 {
		t.Errorf("records = %d, want 4", summary.Records)
	}
	// Close record counts are authoritative.
	if summary.FragmentCount != 2 || summary.ByteCount != 10 {
		t.Errorf("counts = %d/%d, want 2/10", summary.FragmentCount, summary.ByteCount)
	}
	if summary.EndedAt != "2026-01-02T03:04:07Z" {
		t.Errorf("ended at = %q", summary.EndedAt)
	}
}

func TestSummarizeTranscript_MissingCloseRecord(t *testing.T) {
	records := []*transcript.Record{
		{Kind: transcript.RecordKindOpen, SessionID: "s-2", Seq: 1, SessionKind: "command", Target: "make build"},
		{Kind: transcript.RecordKindFragment, SessionID: "s-2", Seq: 2, Text: "building"},
		{Kind: transcript.RecordKindFragment, SessionID: "s-2", Seq: 3, Text: "..."},
	}

	summary := summarizeTranscript(records)

	if summary.Outcome != "unknown" {
		t.Errorf("outcome = %q, want unknown for truncated transcript", summary.Outcome)
	}
	if summary.FragmentCount != 2 {
		t.Errorf("fragment count = %d, want 2 reconstructed", summary.FragmentCount)
	}
	if summary.ByteCount != int64(len("building")+len("...")) {
		t.Errorf("byte count = %d", summary.ByteCount)
	}
	if summary.EndedAt != "" {
		t.Errorf("ended at = %q, want empty", summary.EndedAt)
	}
}

func TestReplaySession_RebuildsMetaAndResult(t *testing.T) {
	records := []*transcript.Record{
		{Kind: transcript.RecordKindOpen, SessionID: "s-3", Seq: 1, Ts: "2026-01-02T03:04:05Z", SessionKind: "file", Target: "demo.py"},
		{Kind: transcript.RecordKindFragment, SessionID: "s-3", Seq: 2, Text: "partial"},
		{Kind: transcript.RecordKindClose, SessionID: "s-3", Seq: 3, Ts: "2026-01-02T03:04:07.5Z", Outcome: "stream_error", Error: "connection reset", FragmentCount: 1, ByteCount: 7},
	}

	meta, result := replaySession(records)

	if meta.ID != "s-3" || meta.Kind != types.SessionKindFile || meta.Target != "demo.py" {
		t.Errorf("meta = %+v", meta)
	}
	if result.Meta != meta {
		t.Error("result should carry the rebuilt meta")
	}
	if result.Outcome != types.OutcomeStreamError {
		t.Errorf("outcome = %q", result.Outcome)
	}
	if result.Err == nil || result.Err.Error() != "connection reset" {
		t.Errorf("err = %v", result.Err)
	}
	if result.Duration != 2500*time.Millisecond {
		t.Errorf("duration = %v, want 2.5s", result.Duration)
	}
	if result.FragmentCount != 1 || result.ByteCount != 7 {
		t.Errorf("counts = %d/%d", result.FragmentCount, result.ByteCount)
	}
}

func TestReplaySession_MissingCloseRecord(t *testing.T) {
	records := []*transcript.Record{
		{Kind: transcript.RecordKindOpen, SessionID: "s-4", Seq: 1, SessionKind: "command", Target: "make"},
		{Kind: transcript.RecordKindFragment, SessionID: "s-4", Seq: 2, Text: "go build"},
	}

	_, result := replaySession(records)

	if result.Outcome != types.SessionOutcome("unknown") {
		t.Errorf("outcome = %q, want unknown", result.Outcome)
	}
	if result.FragmentCount != 1 || result.ByteCount != int64(len("go build")) {
		t.Errorf("counts = %d/%d", result.FragmentCount, result.ByteCount)
	}
}

func TestDecodeFile_CleanStream(t *testing.T) {
	var buf bytes.Buffer
	w := transcript.NewWriter(&buf)
	meta := &types.SessionMeta{ID: "s-5", Kind: types.SessionKindFile, Target: "demo.py", StartedAt: time.Now()}
	for _, rec := range []*transcript.Record{
		transcript.NewOpenRecord(meta),
		transcript.NewFragmentRecord("s-5", 2, "hello"),
		transcript.NewFragmentRecord("s-5", 3, "world"),
		transcript.NewCloseRecord("s-5", 4, types.OutcomeCompleted, "", 2, 10),
	} {
		if err := w.WriteRecord(rec); err != nil {
			t.Fatal(err)
		}
	}

	report := decodeFile("mem.slt", &buf)

	if report.Truncated {
		t.Error("clean stream should not report truncation")
	}
	if report.Records != 4 || report.OpenRecords != 1 || report.Fragments != 2 || report.CloseRecords != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.SeqGaps != 0 {
		t.Errorf("seq gaps = %d, want 0", report.SeqGaps)
	}
}

func TestDecodeFile_TruncatedTail(t *testing.T) {
	var buf bytes.Buffer
	w := transcript.NewWriter(&buf)
	meta := &types.SessionMeta{ID: "s-6", Kind: types.SessionKindFile, Target: "demo.py", StartedAt: time.Now()}
	records := []*transcript.Record{
		transcript.NewOpenRecord(meta),
		transcript.NewFragmentRecord("s-6", 2, "some output"),
		transcript.NewCloseRecord("s-6", 3, types.OutcomeCompleted, "", 1, 11),
	}
	for _, rec := range records {
		if err := w.WriteRecord(rec); err != nil {
			t.Fatal(err)
		}
	}

	// Chop the tail mid-record, as a crashed writer would leave it.
	data := buf.Bytes()
	truncated := bytes.NewReader(data[:len(data)-5])

	report := decodeFile("mem.slt", truncated)

	if !report.Truncated {
		t.Error("expected truncation report")
	}
	if report.DecodeError == "" {
		t.Error("expected decode error message")
	}
	if report.Records != 2 {
		t.Errorf("records = %d, want 2 before the damage", report.Records)
	}
}

func TestDecodeFile_SeqGap(t *testing.T) {
	var buf bytes.Buffer
	w := transcript.NewWriter(&buf)
	for _, rec := range []*transcript.Record{
		transcript.NewFragmentRecord("s-7", 1, "a"),
		transcript.NewFragmentRecord("s-7", 2, "b"),
		transcript.NewFragmentRecord("s-7", 5, "c"),
	} {
		if err := w.WriteRecord(rec); err != nil {
			t.Fatal(err)
		}
	}

	report := decodeFile("mem.slt", &buf)

	if report.SeqGaps != 1 {
		t.Errorf("seq gaps = %d, want 1", report.SeqGaps)
	}
}

func TestSessionList_TableShape(t *testing.T) {
	list := sessionList{
		{SessionID: "s-1", Day: "2026-08-25", Path: "/data/day=2026-08-25/s-1.slt"},
	}

	headers := list.Headers()
	if len(headers) != 3 || headers[0] != "SESSION_ID" {
		t.Errorf("headers = %v", headers)
	}

	rows := list.Rows()
	if len(rows) != 1 || rows[0][0] != "s-1" || rows[0][1] != "2026-08-25" {
		t.Errorf("rows = %v", rows)
	}
}

func TestRunCommand_EndToEnd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/run/file" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("hello\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		_, _ = w.Write([]byte("world\n"))
	}))
	defer ts.Close()

	cfg := writeConfig(t, "")
	storeDir := t.TempDir()
	app := newTestApp(RunCommand())

	err := app.Run([]string{"sluice", "run",
		"--config", cfg,
		"--endpoint", ts.URL,
		"--session-id", "run-e2e-001",
		"--path", storeDir,
		"--quiet",
		"demo.py",
	})

	var exitErr cli.ExitCoder
	if err != nil && !errors.As(err, &exitErr) {
		t.Fatalf("run failed: %v", err)
	}
	if exitErr != nil && exitErr.ExitCode() != exitCompleted {
		t.Fatalf("exit code = %d, want %d", exitErr.ExitCode(), exitCompleted)
	}

	// The transcript must be on disk with a completed close record.
	store, err := transcript.NewFSStore(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	rc, err := store.Open(context.Background(), "run-e2e-001")
	if err != nil {
		t.Fatalf("transcript not stored: %v", err)
	}
	defer rc.Close()

	records, err := transcript.ReadAll(rc)
	if err != nil {
		t.Fatalf("transcript unreadable: %v", err)
	}

	summary := summarizeTranscript(records)
	if summary.Outcome != string(types.OutcomeCompleted) {
		t.Errorf("stored outcome = %q, want completed", summary.Outcome)
	}
	if summary.ByteCount != int64(len("hello\nworld\n")) {
		t.Errorf("stored byte count = %d", summary.ByteCount)
	}
}

func TestRunCommand_EndToEnd_StreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("partial output"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Kill the connection without the terminating chunk.
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer ts.Close()

	cfg := writeConfig(t, "")
	storeDir := t.TempDir()
	app := newTestApp(RunCommand())

	err := app.Run([]string{"sluice", "run",
		"--config", cfg,
		"--endpoint", ts.URL,
		"--session-id", "run-e2e-002",
		"--path", storeDir,
		"--quiet",
		"demo.py",
	})

	var exitErr cli.ExitCoder
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit coder, got %v", err)
	}
	if exitErr.ExitCode() != exitStreamError {
		t.Fatalf("exit code = %d, want %d", exitErr.ExitCode(), exitStreamError)
	}

	store, err := transcript.NewFSStore(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	rc, err := store.Open(context.Background(), "run-e2e-002")
	if err != nil {
		t.Fatalf("transcript not stored: %v", err)
	}
	defer rc.Close()

	records, err := transcript.ReadAll(rc)
	if err != nil {
		t.Fatalf("transcript unreadable: %v", err)
	}

	summary := summarizeTranscript(records)
	if summary.Outcome != string(types.OutcomeStreamError) {
		t.Errorf("stored outcome = %q, want stream_error", summary.Outcome)
	}
}
