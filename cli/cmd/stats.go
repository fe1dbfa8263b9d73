package cmd

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/transcript"
	"github.com/pithecene-io/sluice/types"
)

// statsSummary aggregates every transcript in a store.
type statsSummary struct {
	Sessions      int   `json:"sessions"`
	Days          int   `json:"days"`
	Completed     int   `json:"completed"`
	StreamErrors  int   `json:"stream_errors"`
	SinkFailures  int   `json:"sink_failures"`
	Canceled      int   `json:"canceled"`
	Unknown       int   `json:"unknown"`
	FragmentCount int64 `json:"fragment_count"`
	ByteCount     int64 `json:"byte_count"`
}

// Pairs implements render.KeyValuer.
func (s statsSummary) Pairs() [][2]string {
	return [][2]string{
		{"sessions", strconv.Itoa(s.Sessions)},
		{"days", strconv.Itoa(s.Days)},
		{"completed", strconv.Itoa(s.Completed)},
		{"stream_errors", strconv.Itoa(s.StreamErrors)},
		{"sink_failures", strconv.Itoa(s.SinkFailures)},
		{"canceled", strconv.Itoa(s.Canceled)},
		{"unknown", strconv.Itoa(s.Unknown)},
		{"fragments", strconv.FormatInt(s.FragmentCount, 10)},
		{"bytes", strconv.FormatInt(s.ByteCount, 10)},
	}
}

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show aggregate statistics over stored transcripts",
		Flags:  append(ReadOnlyFlags(), storeFlags()...),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for stats
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for stats", 1)
	}

	choice, err := parseStoreChoice(c)
	if err != nil {
		return err
	}

	store, _, err := buildStore(c.Context, choice)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	defer iox.DiscardClose(store)

	refs, err := store.List(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list transcripts: %w", err)
	}

	var summary statsSummary
	days := make(map[string]struct{})

	for _, ref := range refs {
		summary.Sessions++
		days[ref.Day] = struct{}{}

		rc, err := store.Open(c.Context, ref.SessionID)
		if err != nil {
			return fmt.Errorf("failed to open transcript %s: %w", ref.SessionID, err)
		}
		records, err := transcript.ReadAll(rc)
		iox.DiscardClose(rc)
		if err != nil {
			return fmt.Errorf("failed to read transcript %s: %w", ref.SessionID, err)
		}

		ts := summarizeTranscript(records)
		switch ts.Outcome {
		case string(types.OutcomeCompleted):
			summary.Completed++
		case string(types.OutcomeStreamError):
			summary.StreamErrors++
		case string(types.OutcomeSinkFailure):
			summary.SinkFailures++
		case string(types.OutcomeCanceled):
			summary.Canceled++
		default:
			summary.Unknown++
		}
		summary.FragmentCount += ts.FragmentCount
		summary.ByteCount += ts.ByteCount
	}

	summary.Days = len(days)
	return r.Render(summary)
}
