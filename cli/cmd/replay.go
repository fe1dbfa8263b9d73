package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/cli/tui"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/transcript"
	"github.com/pithecene-io/sluice/types"
)

// recordView is the replay output shape for structured formats. Transcript
// records carry msgpack tags only, so rendering goes through this view.
type recordView struct {
	Kind          string `json:"kind" yaml:"kind"`
	SchemaVersion string `json:"schema_version" yaml:"schema_version"`
	SessionID     string `json:"session_id" yaml:"session_id"`
	Seq           int64  `json:"seq" yaml:"seq"`
	Ts            string `json:"ts" yaml:"ts"`
	SessionKind   string `json:"session_kind,omitempty" yaml:"session_kind,omitempty"`
	Target        string `json:"target,omitempty" yaml:"target,omitempty"`
	Text          string `json:"text,omitempty" yaml:"text,omitempty"`
	Outcome       string `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
	FragmentCount int64  `json:"fragment_count,omitempty" yaml:"fragment_count,omitempty"`
	ByteCount     int64  `json:"byte_count,omitempty" yaml:"byte_count,omitempty"`
}

func recordViews(records []*transcript.Record) []recordView {
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, recordView{
			Kind:          rec.Kind,
			SchemaVersion: rec.SchemaVersion,
			SessionID:     rec.SessionID,
			Seq:           rec.Seq,
			Ts:            rec.Ts,
			SessionKind:   rec.SessionKind,
			Target:        rec.Target,
			Text:          rec.Text,
			Outcome:       rec.Outcome,
			Error:         rec.Error,
			FragmentCount: rec.FragmentCount,
			ByteCount:     rec.ByteCount,
		})
	}
	return views
}

// ReplayCommand returns the replay command.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Re-emit a stored session transcript",
		ArgsUsage: "<session-id>",
		Flags:     append(ReadOnlyFlags(), storeFlags()...),
		Action:    replayAction,
	}
}

func replayAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("session id required", 1)
	}
	sessionID := c.Args().First()

	choice, err := parseStoreChoice(c)
	if err != nil {
		return err
	}

	store, _, err := buildStore(c.Context, choice)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	defer iox.DiscardClose(store)

	rc, err := store.Open(c.Context, sessionID)
	if err != nil {
		if errors.Is(err, transcript.ErrSessionNotFound) {
			return cli.Exit(fmt.Sprintf("no transcript for session: %s", sessionID), 1)
		}
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer iox.DiscardClose(rc)

	records, err := transcript.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	if c.Bool("tui") {
		return replayTUI(records)
	}

	format, err := render.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	// Structured formats dump the full record stream; the default replays
	// the recorded output byte for byte.
	switch format {
	case render.FormatJSON, render.FormatYAML:
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.Render(recordViews(records))

	default:
		for _, rec := range records {
			if rec.Kind == transcript.RecordKindFragment {
				fmt.Print(rec.Text)
			}
		}
		return nil
	}
}

// replayTUI plays a stored transcript through the console viewer. The feed
// goroutine stands in for a live session.
func replayTUI(records []*transcript.Record) error {
	meta, result := replaySession(records)

	feed := tui.NewFeed()
	go func() {
		ctx := context.Background()
		for _, rec := range records {
			if rec.Kind == transcript.RecordKindFragment {
				_ = feed.WriteFragment(ctx, rec.Text)
			}
		}
		_ = feed.Close()
		feed.Done(result)
	}()

	// No cancel func: quitting a replay just exits the viewer.
	model := tui.NewConsoleModel(meta, feed, nil)
	if _, err := tui.RunConsoleTUI(model); err != nil {
		return fmt.Errorf("console viewer failed: %w", err)
	}
	return nil
}

// replaySession reconstructs session metadata and result from transcript
// records. A transcript missing its close record (crashed writer) yields
// outcome "unknown" with counts reconstructed from the fragments present.
func replaySession(records []*transcript.Record) (*types.SessionMeta, *types.SessionResult) {
	meta := &types.SessionMeta{}
	result := &types.SessionResult{
		Meta:    meta,
		Outcome: types.SessionOutcome("unknown"),
	}

	for _, rec := range records {
		switch rec.Kind {
		case transcript.RecordKindOpen:
			meta.ID = rec.SessionID
			meta.Kind = types.SessionKind(rec.SessionKind)
			meta.Target = rec.Target
			if ts, err := time.Parse(time.RFC3339Nano, rec.Ts); err == nil {
				meta.StartedAt = ts
			}

		case transcript.RecordKindFragment:
			result.FragmentCount++
			result.ByteCount += int64(len(rec.Text))

		case transcript.RecordKindClose:
			result.Outcome = types.SessionOutcome(rec.Outcome)
			result.FragmentCount = rec.FragmentCount
			result.ByteCount = rec.ByteCount
			if rec.Error != "" {
				result.Err = errors.New(rec.Error)
			}
			if ts, err := time.Parse(time.RFC3339Nano, rec.Ts); err == nil && !meta.StartedAt.IsZero() {
				result.Duration = ts.Sub(meta.StartedAt)
			}
		}
	}

	return meta, result
}
