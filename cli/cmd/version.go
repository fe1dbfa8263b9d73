package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	SchemaVersion string `json:"schema_version"`
}

// Pairs implements render.KeyValuer.
func (v VersionResponse) Pairs() [][2]string {
	return [][2]string{
		{"version", v.Version},
		{"commit", v.Commit},
		{"schema_version", v.SchemaVersion},
	}
}

// VersionCommand returns the version command. It reports the binary version
// and the transcript schema version; it never contacts the execution service.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		resp := VersionResponse{
			Version:       types.Version,
			Commit:        commit,
			SchemaVersion: types.SchemaVersion,
		}

		return r.Render(resp)
	}
}
