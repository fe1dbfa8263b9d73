package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/iox"
)

// sessionRow is one stored transcript in sessions output.
type sessionRow struct {
	SessionID string `json:"session_id"`
	Day       string `json:"day"`
	Path      string `json:"path"`
}

// sessionList renders stored transcripts as a table.
type sessionList []sessionRow

// Headers implements render.Tabular.
func (l sessionList) Headers() []string {
	return []string{"SESSION_ID", "DAY", "PATH"}
}

// Rows implements render.Tabular.
func (l sessionList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, row := range l {
		rows = append(rows, []string{row.SessionID, row.Day, row.Path})
	}
	return rows
}

// SessionsCommand returns the sessions command.
func SessionsCommand() *cli.Command {
	return &cli.Command{
		Name:   "sessions",
		Usage:  "List stored session transcripts",
		Flags:  append(ReadOnlyFlags(), storeFlags()...),
		Action: sessionsAction,
	}
}

func sessionsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for sessions
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for sessions", 1)
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

	list := make(sessionList, 0, len(refs))
	for _, ref := range refs {
		list = append(list, sessionRow{
			SessionID: ref.SessionID,
			Day:       ref.Day,
			Path:      ref.Path,
		})
	}

	return r.Render(list)
}
