// Package cmd provides CLI commands for the sluice binary.
package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/config"
)

// Shared flags across sluice commands.
var (
	// ConfigFlag points at a sluice.yaml config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to sluice.yaml config file",
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables the Bubble Tea console viewer.
	// Only valid for streaming commands (run, exec, replay).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Open the interactive console viewer (run, exec, replay only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// storeFlags returns the transcript store selection flags shared by every
// command that reads or writes transcripts.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Transcript storage backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "path",
			Usage: "Transcript storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "s3-region",
			Usage: "AWS region for the s3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "s3-endpoint",
			Usage: "Custom S3 endpoint URL (R2, MinIO, localstack)",
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}
}

// loadConfig resolves and loads the config file for a command. An absent
// file is not an error; commands run on flag defaults alone.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path != "" {
		return config.Load(path)
	}

	if path = defaultConfigPath(); path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// parseStoreChoice resolves the transcript store settings for read commands.
// Unlike streaming commands, read commands require a path; there is no
// default store location.
func parseStoreChoice(c *cli.Context) (transcriptChoice, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return transcriptChoice{}, err
	}

	choice := transcriptChoice{
		backend:   cfg.Transcript.Backend,
		path:      cfg.Transcript.Path,
		region:    cfg.Transcript.Region,
		endpoint:  cfg.Transcript.Endpoint,
		pathStyle: cfg.Transcript.S3PathStyle,
	}
	if c.IsSet("backend") {
		choice.backend = c.String("backend")
	}
	if c.IsSet("path") {
		choice.path = c.String("path")
	}
	if c.IsSet("s3-region") {
		choice.region = c.String("s3-region")
	}
	if c.IsSet("s3-endpoint") {
		choice.endpoint = c.String("s3-endpoint")
	}
	if c.IsSet("s3-path-style") {
		choice.pathStyle = c.Bool("s3-path-style")
	}

	if choice.path == "" {
		return transcriptChoice{}, errors.New("transcript path required (use --path or set transcript.path in the config file)")
	}
	return choice, nil
}

// defaultConfigPath returns the first config file that exists among the
// default locations, or "" when none does.
func defaultConfigPath() string {
	if p := os.Getenv("SLUICE_CONFIG"); p != "" {
		return p
	}

	candidates := []string{"sluice.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "sluice", "sluice.yaml"))
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
