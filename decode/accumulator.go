// Package decode provides incremental UTF-8 decoding of chunked byte streams.
//
// Process output arrives in arbitrarily split chunks, so a multi-byte rune can
// straddle a chunk boundary. The Accumulator buffers bytes across calls and
// only decodes up to the last complete rune, retaining a well-formed but
// incomplete trailing sequence for the next chunk. Interior invalid bytes can
// never become valid and decode to U+FFFD immediately.
package decode

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// initialBufSize is the starting arena capacity. Matches the stream read
// buffer size so a typical chunk decodes without growing the arena.
const initialBufSize = 4096

// Accumulator buffers raw output bytes and decodes them incrementally.
// The internal buffer is reused across calls; after Append it holds only the
// retained incomplete tail (at most utf8.UTFMax-1 bytes).
//
// Not safe for concurrent use. Each stream gets its own Accumulator.
type Accumulator struct {
	buf []byte
}

// NewAccumulator creates an Accumulator with a preallocated arena.
func NewAccumulator() *Accumulator {
	return &Accumulator{buf: make([]byte, 0, initialBufSize)}
}

// Append adds chunk to the buffer and returns the decoded text up to the last
// complete rune. An incomplete trailing sequence is retained for the next
// call rather than decoded, so runes split across chunk boundaries are never
// rendered as replacement characters. Returns "" when the chunk completes
// nothing.
func (a *Accumulator) Append(chunk []byte) string {
	if len(chunk) == 0 && len(a.buf) == 0 {
		return ""
	}
	a.buf = append(a.buf, chunk...)

	cut := decodableBoundary(a.buf)
	if cut == 0 {
		return ""
	}

	return a.decodeAndRetain(a.buf[:cut], a.buf[cut:])
}

// Finalize decodes whatever remains, replacement characters included, clears
// the buffer, and returns the text. Retained bytes are never dropped
// silently: a dangling partial rune at end of stream becomes U+FFFD.
func (a *Accumulator) Finalize() string {
	if len(a.buf) == 0 {
		return ""
	}
	text := lossyString(a.buf)
	a.buf = a.buf[:0]
	return text
}

// Len reports the number of retained bytes awaiting completion.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// decodableBoundary returns the index where the incomplete trailing sequence
// starts, or len(p) when the buffer ends on a rune boundary. Only the last
// utf8.UTFMax-1 bytes can form an incomplete sequence; anything older is
// decodable (valid or permanently invalid).
func decodableBoundary(p []byte) int {
	n := len(p)
	for i := n - 1; i >= 0 && n-i < utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if !utf8.FullRune(p[i:]) {
			return i
		}
		// FullRune treats invalid leading bytes as complete width-1
		// error runes, so they decode now instead of being retained.
		return n
	}
	return n
}

// decodeAndRetain decodes head, slides tail to the front of the arena, and
// returns the decoded text. head and tail alias the arena, so the text is
// materialized before the slide.
func (a *Accumulator) decodeAndRetain(head, tail []byte) string {
	text := lossyString(head)
	a.buf = append(a.buf[:0], tail...)
	return text
}

// lossyString decodes p, mapping invalid sequences to U+FFFD. Valid input
// takes the direct conversion path without a transformer.
func lossyString(p []byte) string {
	if utf8.Valid(p) {
		return string(p)
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(p)
	if err != nil {
		// The UTF-8 decoder substitutes rather than fails; treat an
		// error as already-replaced input.
		return string(p)
	}
	return string(out)
}
