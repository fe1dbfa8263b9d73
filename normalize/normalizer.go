// Package normalize collapses terminal redraw artifacts in decoded output.
//
// Processes that draw rich panels repaint them with cursor-save/restore and
// line-clear escape sequences. A real terminal emulator interprets those in
// place; a text sink sees every intermediate repaint as duplicated lines.
// The Normalizer pattern-matches the known repaint shapes and keeps only the
// final state, leaving ordinary output untouched.
package normalize

import (
	"regexp"
	"strings"
)

// Escape sequences the rules match on.
const (
	cursorSave    = "\x1b[s"
	cursorRestore = "\x1b[u"
	erasePair     = "\x1b[2K\x1b[1G"
)

// DefaultPanelMarkers are the panel titles drawn by the bundled console
// runner. Override with WithPanelMarkers when the monitored process uses a
// different panel library.
var DefaultPanelMarkers = []string{"Console", "Output"}

var (
	saveRestorePattern = regexp.MustCompile(`(?s)\x1b\[s(.*?)\x1b\[u`)
	erasePairPattern   = regexp.MustCompile(`(?:\x1b\[2K\x1b\[1G)+`)
	cursorPosPattern   = regexp.MustCompile(`\x1b\[\d+;\d+H`)
)

// Normalizer rewrites one fragment at a time with no state between calls.
// Fragment boundaries are network accidents, so a repaint split across two
// fragments is not caught; SessionNormalizer exists for callers that accept
// the behavior change.
type Normalizer struct {
	markers []string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithPanelMarkers replaces the default panel marker strings.
func WithPanelMarkers(markers []string) Option {
	return func(n *Normalizer) {
		if len(markers) > 0 {
			n.markers = markers
		}
	}
}

// NewNormalizer creates a Normalizer with the default panel markers.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{markers: DefaultPanelMarkers}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize collapses redraw artifacts in fragment. Fragments containing no
// trigger pattern are returned unchanged, so ordinary output pays one scan
// and no rewriting. Unmatched or malformed escape sequences pass through.
func (n *Normalizer) Normalize(fragment string) string {
	if fragment == "" || !n.triggered(fragment) {
		return fragment
	}
	out := collapseSaveRestore(fragment)
	out = collapseErasePairs(out)
	out = dedupeHeaders(out, n.markers, make(map[string]bool))
	return out
}

// triggered reports whether s contains any pattern worth rewriting: a panel
// marker, a box-drawing rune, cursor save/restore, an erase pair, or
// absolute cursor positioning.
func (n *Normalizer) triggered(s string) bool {
	if strings.Contains(s, cursorSave) || strings.Contains(s, cursorRestore) {
		return true
	}
	if strings.Contains(s, erasePair) {
		return true
	}
	for _, m := range n.markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	if strings.ContainsFunc(s, isBoxDrawing) {
		return true
	}
	return cursorPosPattern.MatchString(s)
}

// isBoxDrawing reports whether r falls in the Unicode Box Drawing block.
func isBoxDrawing(r rune) bool {
	return r >= 0x2500 && r <= 0x257F
}

// collapseSaveRestore replaces each multi-line save/restore region with the
// last non-empty line of its interior. The producer repaints a panel inside
// the region; only the final repaint matters to a text sink. Single-line
// regions and an unmatched save are left alone.
func collapseSaveRestore(s string) string {
	if !strings.Contains(s, cursorSave) {
		return s
	}
	return saveRestorePattern.ReplaceAllStringFunc(s, func(m string) string {
		interior := m[len(cursorSave) : len(m)-len(cursorRestore)]
		if !strings.Contains(interior, "\n") {
			return m
		}
		return lastNonEmptyLine(interior)
	})
}

// lastNonEmptyLine returns the last line of s with content, trailing
// whitespace trimmed, or "" when every line is blank.
func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimRight(lines[i], " \t\r"); line != "" {
			return line
		}
	}
	return ""
}

// collapseErasePairs reduces a run of clear-line/column-1 pairs to one pair.
func collapseErasePairs(s string) string {
	if !strings.Contains(s, erasePair) {
		return s
	}
	return erasePairPattern.ReplaceAllLiteralString(s, erasePair)
}

// dedupeHeaders strips repeated panel headers. A header is a box-drawing top
// border line directly followed by a line containing a panel marker; a later
// identical pair is dropped while the content lines after it are kept. seen
// carries signatures across calls for the session-scoped variant.
func dedupeHeaders(s string, markers []string, seen map[string]bool) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		if i+1 < len(lines) && isBorderLine(lines[i]) && containsAny(lines[i+1], markers) {
			sig := lines[i] + "\n" + lines[i+1]
			if seen[sig] {
				i++
				continue
			}
			seen[sig] = true
			out = append(out, lines[i], lines[i+1])
			i++
			continue
		}
		out = append(out, lines[i])
	}
	return strings.Join(out, "\n")
}

// isBorderLine reports whether the line is entirely box-drawing characters
// after trimming surrounding whitespace.
func isBorderLine(line string) bool {
	trimmed := strings.Trim(line, " \t\r")
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if !isBoxDrawing(r) {
			return false
		}
	}
	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// SessionNormalizer applies the same rules as Normalizer but remembers panel
// header signatures across fragments, so a header duplicated on a fragment
// boundary is also suppressed. This changes visible output relative to the
// fragment-local pass and is therefore opt-in.
//
// Not safe for concurrent use. Each stream gets its own SessionNormalizer.
type SessionNormalizer struct {
	n    *Normalizer
	seen map[string]bool
}

// NewSessionNormalizer creates a SessionNormalizer with the given options.
func NewSessionNormalizer(opts ...Option) *SessionNormalizer {
	return &SessionNormalizer{
		n:    NewNormalizer(opts...),
		seen: make(map[string]bool),
	}
}

// Normalize collapses redraw artifacts, suppressing headers already seen in
// earlier fragments of the same session.
func (s *SessionNormalizer) Normalize(fragment string) string {
	if fragment == "" || !s.n.triggered(fragment) {
		return fragment
	}
	out := collapseSaveRestore(fragment)
	out = collapseErasePairs(out)
	out = dedupeHeaders(out, s.n.markers, s.seen)
	return out
}
