package config

import (
	"fmt"
	"time"
)

// Config represents a sluice.yaml configuration file.
// All values are optional and act as defaults for sluice command flags.
// CLI flags always override config values.
type Config struct {
	Endpoint   EndpointConfig   `yaml:"endpoint"`
	Console    ConsoleConfig    `yaml:"console"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Adapter    AdapterConfig    `yaml:"adapter"`
}

// EndpointConfig holds execution service defaults from the config file.
type EndpointConfig struct {
	// URL is the execution service base URL.
	URL string `yaml:"url"`
	// ConnectTimeout bounds dialing the service.
	ConnectTimeout Duration `yaml:"connect_timeout,omitempty"`
}

// ConsoleConfig holds console display defaults from the config file.
type ConsoleConfig struct {
	// Format is the output format for listing commands (json, table, yaml).
	Format string `yaml:"format"`
	// NoColor disables ANSI styling in rendered output.
	NoColor bool `yaml:"no_color"`
	// TUI opens the interactive viewer for live sessions and replays.
	TUI bool `yaml:"tui"`
	// Raw disables progress-redraw collapsing on streamed output.
	Raw bool `yaml:"raw"`
	// SessionDedupe suppresses repeated panel headers across fragment
	// boundaries, not just within one fragment.
	SessionDedupe bool `yaml:"session_dedupe"`
	// Markers overrides the panel title strings the normalizer keys on.
	Markers []string `yaml:"markers"`
}

// TranscriptConfig holds transcript storage defaults from the config file.
type TranscriptConfig struct {
	// Enabled toggles transcript recording. Unset means enabled when a
	// path is configured.
	Enabled *bool `yaml:"enabled,omitempty"`
	// Backend selects the store (fs or s3).
	Backend string `yaml:"backend"`
	// Path is the fs root directory, or bucket/prefix for s3.
	Path string `yaml:"path"`
	// Region is the S3 region.
	Region string `yaml:"region"`
	// Endpoint overrides the S3 endpoint (MinIO, localstack).
	Endpoint string `yaml:"endpoint"`
	// S3PathStyle forces path-style S3 addressing.
	S3PathStyle bool `yaml:"s3_path_style"`
	// FlushCount flushes the record buffer every N fragments.
	FlushCount int `yaml:"flush_count"`
	// FlushInterval flushes the record buffer on a timer.
	FlushInterval Duration `yaml:"flush_interval"`
}

// AdapterConfig holds completion adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
