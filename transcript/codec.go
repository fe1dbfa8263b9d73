package transcript

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Framing constants for the transcript stream format.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxRecordSize is the maximum encoded record size (4 MiB), excluding
	// the length prefix.
	MaxRecordSize = 4 * 1024 * 1024
)

// RecordErrorKind classifies transcript codec errors.
type RecordErrorKind int

const (
	// RecordErrorPartial indicates a truncated or incomplete record.
	RecordErrorPartial RecordErrorKind = iota
	// RecordErrorTooLarge indicates a record exceeding MaxRecordSize.
	RecordErrorTooLarge
	// RecordErrorDecode indicates a msgpack decoding error.
	RecordErrorDecode
)

// RecordError represents a transcript codec error.
type RecordError struct {
	Kind RecordErrorKind
	Msg  string
	Err  error
}

func (e *RecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the transcript cannot be read past this error.
// Truncated and oversized records leave no valid resync point in the stream.
func (e *RecordError) IsFatal() bool {
	return e.Kind == RecordErrorPartial || e.Kind == RecordErrorTooLarge
}

// IsFatalRecordError returns true if the error is a fatal record error.
func IsFatalRecordError(err error) bool {
	var recErr *RecordError
	if errors.As(err, &recErr) {
		return recErr.IsFatal()
	}
	return false
}

// Writer encodes records to a stream as length-prefixed msgpack.
type Writer struct {
	writer io.Writer
}

// NewWriter creates a record writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{writer: w}
}

// WriteRecord encodes and writes a single record, length prefix first.
func (e *Writer) WriteRecord(rec *Record) error {
	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if len(payload) > MaxRecordSize {
		return &RecordError{
			Kind: RecordErrorTooLarge,
			Msg:  fmt.Sprintf("record size %d exceeds maximum %d", len(payload), MaxRecordSize),
		}
	}

	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := e.writer.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := e.writer.Write(payload); err != nil {
		return fmt.Errorf("failed to write record payload: %w", err)
	}
	return nil
}

// Reader decodes length-prefixed msgpack records from a stream.
type Reader struct {
	reader io.Reader
}

// NewReader creates a record reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: r}
}

// ReadRecord reads a single record from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more records)
//   - *RecordError with Kind=RecordErrorPartial: incomplete record (fatal)
//   - *RecordError with Kind=RecordErrorTooLarge: record exceeds limit (fatal)
//   - *RecordError with Kind=RecordErrorDecode: undecodable payload
func (d *Reader) ReadRecord() (*Record, error) {
	// Read 4-byte big-endian length prefix
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		// Partial read of length prefix
		return nil, &RecordError{
			Kind: RecordErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxRecordSize {
		return nil, &RecordError{
			Kind: RecordErrorTooLarge,
			Msg:  fmt.Sprintf("record size %d exceeds maximum %d", payloadSize, MaxRecordSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &RecordError{
			Kind: RecordErrorPartial,
			Msg:  "failed to read record payload",
			Err:  err,
		}
	}

	var rec Record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, &RecordError{
			Kind: RecordErrorDecode,
			Msg:  "failed to decode record",
			Err:  err,
		}
	}
	return &rec, nil
}

// ReadAll reads records until clean EOF, returning them in stream order.
// On error the records read so far are returned alongside it.
func ReadAll(r io.Reader) ([]*Record, error) {
	reader := NewReader(r)
	var records []*Record
	for {
		rec, err := reader.ReadRecord()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
