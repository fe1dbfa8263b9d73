package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/transcript"
)

// transcriptSummary is the inspect output for one stored session.
type transcriptSummary struct {
	SessionID     string `json:"session_id"`
	SessionKind   string `json:"session_kind"`
	Target        string `json:"target"`
	StartedAt     string `json:"started_at"`
	EndedAt       string `json:"ended_at,omitempty"`
	Outcome       string `json:"outcome"`
	Error         string `json:"error,omitempty"`
	Records       int    `json:"records"`
	FragmentCount int64  `json:"fragment_count"`
	ByteCount     int64  `json:"byte_count"`
	SchemaVersion string `json:"schema_version"`
}

// Pairs implements render.KeyValuer.
func (s transcriptSummary) Pairs() [][2]string {
	pairs := [][2]string{
		{"session_id", s.SessionID},
		{"kind", s.SessionKind},
		{"target", s.Target},
		{"started_at", s.StartedAt},
	}
	if s.EndedAt != "" {
		pairs = append(pairs, [2]string{"ended_at", s.EndedAt})
	}
	pairs = append(pairs, [2]string{"outcome", s.Outcome})
	if s.Error != "" {
		pairs = append(pairs, [2]string{"error", s.Error})
	}
	pairs = append(pairs,
		[2]string{"records", strconv.Itoa(s.Records)},
		[2]string{"fragments", strconv.FormatInt(s.FragmentCount, 10)},
		[2]string{"bytes", strconv.FormatInt(s.ByteCount, 10)},
		[2]string{"schema_version", s.SchemaVersion},
	)
	return pairs
}

// summarizeTranscript reduces a record stream to its inspect summary.
// Counts come from the close record when present, otherwise they are
// reconstructed from the fragments that made it to storage.
func summarizeTranscript(records []*transcript.Record) transcriptSummary {
	summary := transcriptSummary{Outcome: "unknown"}

	for _, rec := range records {
		summary.Records++
		if summary.SchemaVersion == "" {
			summary.SchemaVersion = rec.SchemaVersion
		}

		switch rec.Kind {
		case transcript.RecordKindOpen:
			summary.SessionID = rec.SessionID
			summary.SessionKind = rec.SessionKind
			summary.Target = rec.Target
			summary.StartedAt = rec.Ts

		case transcript.RecordKindFragment:
			summary.FragmentCount++
			summary.ByteCount += int64(len(rec.Text))

		case transcript.RecordKindClose:
			summary.EndedAt = rec.Ts
			summary.Outcome = rec.Outcome
			summary.Error = rec.Error
			summary.FragmentCount = rec.FragmentCount
			summary.ByteCount = rec.ByteCount
		}
	}

	return summary
}

// InspectCommand returns the inspect command.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarize a stored session transcript",
		ArgsUsage: "<session-id>",
		Flags:     append(ReadOnlyFlags(), storeFlags()...),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for inspect; replay --tui shows the full session
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for inspect; use replay --tui", 1)
	}

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

	return r.Render(summarizeTranscript(records))
}
