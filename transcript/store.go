package transcript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// sltExt is the file extension for transcript streams.
const sltExt = ".slt"

// ErrSessionNotFound is returned when no transcript exists for a session.
var ErrSessionNotFound = errors.New("no transcript for session")

// DeriveDay computes the partition day from a session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// SessionRef identifies one stored transcript.
type SessionRef struct {
	// SessionID is the session identifier.
	SessionID string
	// Day is the partition day (YYYY-MM-DD UTC).
	Day string
	// Path is the backend-specific location of the transcript.
	Path string
}

// Store persists transcript record batches and serves them back for replay.
type Store interface {
	// Append persists a batch of records for a session.
	// Must preserve ordering within the batch.
	Append(ctx context.Context, sessionID string, records []*Record) error

	// Open returns the raw framed transcript stream for a session,
	// records in seq order. The caller must close the reader.
	Open(ctx context.Context, sessionID string) (io.ReadCloser, error)

	// List returns all stored sessions, most recent day first.
	List(ctx context.Context) ([]SessionRef, error)

	// Close releases store resources.
	Close() error
}

// encodeBatch frames a batch of records into a single buffer so that each
// append hits the backend exactly once.
func encodeBatch(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewWriter(&buf)
	for _, rec := range records {
		if err := enc.WriteRecord(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// sortRefs orders refs most recent day first, session id ascending within
// a day.
func sortRefs(refs []SessionRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Day != refs[j].Day {
			return refs[i].Day > refs[j].Day
		}
		return refs[i].SessionID < refs[j].SessionID
	})
}

// FSStore persists transcripts on the local filesystem under
// <root>/day=<YYYY-MM-DD>/<session_id>.slt.
type FSStore struct {
	root string

	mu    sync.Mutex
	paths map[string]string // session id -> file path, fixed at first append
}

// NewFSStore creates a filesystem-backed transcript store rooted at root.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("transcript root directory is required")
	}
	return &FSStore{
		root:  root,
		paths: make(map[string]string),
	}, nil
}

// Append implements Store. The partition day is derived at first append and
// reused for the session so a transcript never spans day directories.
func (s *FSStore) Append(ctx context.Context, sessionID string, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeBatch(records)
	if err != nil {
		return err
	}

	path, err := s.sessionPath(sessionID)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open transcript file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append transcript records: %w", err)
	}
	return f.Close()
}

// Open implements Store.
func (s *FSStore) Open(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	path, ok := s.paths[sessionID]
	s.mu.Unlock()

	if !ok {
		found, err := s.findSession(sessionID)
		if err != nil {
			return nil, err
		}
		path = found
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	return f, nil
}

// List implements Store.
func (s *FSStore) List(_ context.Context) ([]SessionRef, error) {
	dayDirs, err := filepath.Glob(filepath.Join(s.root, "day=*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list transcript directories: %w", err)
	}

	var refs []SessionRef
	for _, dayDir := range dayDirs {
		day := strings.TrimPrefix(filepath.Base(dayDir), "day=")
		entries, err := os.ReadDir(dayDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), sltExt) {
				continue
			}
			refs = append(refs, SessionRef{
				SessionID: strings.TrimSuffix(entry.Name(), sltExt),
				Day:       day,
				Path:      filepath.Join(dayDir, entry.Name()),
			})
		}
	}

	sortRefs(refs)
	return refs, nil
}

// Close implements Store.
func (s *FSStore) Close() error {
	return nil
}

// sessionPath returns the transcript path for a session, creating the day
// directory on first use.
func (s *FSStore) sessionPath(sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path, ok := s.paths[sessionID]; ok {
		return path, nil
	}

	dir := filepath.Join(s.root, "day="+DeriveDay(time.Now()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create transcript directory: %w", err)
	}

	path := filepath.Join(dir, sessionID+sltExt)
	s.paths[sessionID] = path
	return path, nil
}

// findSession locates a transcript written by an earlier process. When the
// same session id appears under multiple days, the latest day wins.
func (s *FSStore) findSession(sessionID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "day=*", sessionID+sltExt))
	if err != nil {
		return "", fmt.Errorf("failed to search transcripts: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// Verify FSStore implements Store.
var _ Store = (*FSStore)(nil)
