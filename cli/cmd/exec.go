package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/types"
)

// ExecCommand returns the exec command.
func ExecCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "Run a shell command and stream its console output",
		ArgsUsage: "<command...>",
		Flags:     sessionFlags(),
		Action:    execAction,
	}
}

func execAction(c *cli.Context) error {
	return startSession(c, types.SessionKindCommand)
}
