package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/source"
	"github.com/pithecene-io/sluice/transcript"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are read-only diagnostic tools.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (decode, config)",
		Subcommands: []*cli.Command{
			debugDecodeCommand(),
			debugConfigCommand(),
		},
	}
}

// decodeReport is the output of debug decode: one pass over a raw
// transcript file, counting what the codec makes of it.
type decodeReport struct {
	File         string `json:"file"`
	Records      int    `json:"records"`
	OpenRecords  int    `json:"open_records"`
	Fragments    int    `json:"fragments"`
	CloseRecords int    `json:"close_records"`
	BadRecords   int    `json:"bad_records"`
	SeqGaps      int    `json:"seq_gaps"`
	Truncated    bool   `json:"truncated"`
	DecodeError  string `json:"decode_error,omitempty"`
}

// Pairs implements render.KeyValuer.
func (d decodeReport) Pairs() [][2]string {
	pairs := [][2]string{
		{"file", d.File},
		{"records", strconv.Itoa(d.Records)},
		{"open_records", strconv.Itoa(d.OpenRecords)},
		{"fragments", strconv.Itoa(d.Fragments)},
		{"close_records", strconv.Itoa(d.CloseRecords)},
		{"bad_records", strconv.Itoa(d.BadRecords)},
		{"seq_gaps", strconv.Itoa(d.SeqGaps)},
		{"truncated", strconv.FormatBool(d.Truncated)},
	}
	if d.DecodeError != "" {
		pairs = append(pairs, [2]string{"decode_error", d.DecodeError})
	}
	return pairs
}

func debugDecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a raw transcript file, reporting damage",
		ArgsUsage: "<file.slt>",
		Flags:     ReadOnlyFlags(),
		Action:    debugDecodeAction,
	}
}

func debugDecodeAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("transcript file required", 1)
	}
	path := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for debug commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open transcript file: %v", err), 1)
	}
	defer iox.DiscardClose(f)

	return r.Render(decodeFile(path, f))
}

// decodeFile reads records until clean EOF or a fatal framing error.
// Undecodable payloads with intact framing are counted and skipped; a
// truncated or oversized record ends the pass.
func decodeFile(path string, f io.Reader) decodeReport {
	report := decodeReport{File: path}
	reader := transcript.NewReader(f)

	var lastSeq int64
	for {
		rec, err := reader.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			if transcript.IsFatalRecordError(err) {
				report.Truncated = true
				report.DecodeError = err.Error()
				break
			}
			report.BadRecords++
			continue
		}

		report.Records++
		switch rec.Kind {
		case transcript.RecordKindOpen:
			report.OpenRecords++
		case transcript.RecordKindFragment:
			report.Fragments++
		case transcript.RecordKindClose:
			report.CloseRecords++
		}

		if lastSeq > 0 && rec.Seq != lastSeq+1 {
			report.SeqGaps++
		}
		lastSeq = rec.Seq
	}

	return report
}

// configReport is the output of debug config: the fully resolved settings a
// streaming command would run with, after merging flags over the config file.
type configReport struct {
	Source         string `json:"source"`
	EndpointURL    string `json:"endpoint_url"`
	ConnectTimeout string `json:"connect_timeout"`
	TUI            bool   `json:"tui"`
	Raw            bool   `json:"raw"`
	TranscriptOn   bool   `json:"transcript_enabled"`
	Backend        string `json:"backend"`
	Path           string `json:"path"`
	FlushCount     int    `json:"flush_count"`
	FlushInterval  string `json:"flush_interval"`
	AdapterType    string `json:"adapter_type"`
	AdapterURL     string `json:"adapter_url,omitempty"`
	AdapterChannel string `json:"adapter_channel,omitempty"`
	AdapterRetries string `json:"adapter_retries,omitempty"`
}

// Pairs implements render.KeyValuer.
func (r configReport) Pairs() [][2]string {
	pairs := [][2]string{
		{"source", r.Source},
		{"endpoint_url", r.EndpointURL},
		{"connect_timeout", r.ConnectTimeout},
		{"tui", strconv.FormatBool(r.TUI)},
		{"raw", strconv.FormatBool(r.Raw)},
		{"transcript_enabled", strconv.FormatBool(r.TranscriptOn)},
		{"backend", r.Backend},
		{"path", r.Path},
		{"flush_count", strconv.Itoa(r.FlushCount)},
		{"flush_interval", r.FlushInterval},
		{"adapter_type", r.AdapterType},
	}
	if r.AdapterType != "" {
		pairs = append(pairs,
			[2]string{"adapter_url", r.AdapterURL},
			[2]string{"adapter_retries", r.AdapterRetries},
		)
		if r.AdapterChannel != "" {
			pairs = append(pairs, [2]string{"adapter_channel", r.AdapterChannel})
		}
	}
	return pairs
}

func debugConfigCommand() *cli.Command {
	return &cli.Command{
		Name:   "config",
		Usage:  "Show the resolved configuration",
		Flags:  append(sessionFlags(), FormatFlag, NoColorFlag),
		Action: debugConfigAction,
	}
}

func debugConfigAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// The resolved tui value is reported, not acted on; only an explicit
	// --tui here is an error.
	if c.IsSet("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	choice, err := parseSessionChoice(c)
	if err != nil {
		return err
	}

	cfgSource := c.String("config")
	if cfgSource == "" {
		cfgSource = defaultConfigPath()
	}
	if cfgSource == "" {
		cfgSource = "(defaults)"
	}

	retries := ""
	if choice.adapter.typ != "" {
		retries = "adapter default"
		if choice.adapter.retries >= 0 {
			retries = strconv.Itoa(choice.adapter.retries)
		}
	}

	// Report effective values, not raw zeroes.
	endpointURL := choice.endpoint
	if endpointURL == "" {
		endpointURL = source.DefaultBaseURL
	}
	backend := choice.transcript.backend
	if backend == "" {
		backend = "fs"
	}

	report := configReport{
		Source:         cfgSource,
		EndpointURL:    endpointURL,
		ConnectTimeout: choice.connectTimeout.String(),
		TUI:            choice.tui,
		Raw:            choice.raw,
		TranscriptOn:   choice.transcript.enabled,
		Backend:        backend,
		Path:           choice.transcript.path,
		FlushCount:     choice.transcript.flushCount,
		FlushInterval:  choice.transcript.flushInterval.String(),
		AdapterType:    choice.adapter.typ,
		AdapterURL:     choice.adapter.url,
		AdapterChannel: choice.adapter.channel,
		AdapterRetries: retries,
	}

	return r.Render(report)
}
