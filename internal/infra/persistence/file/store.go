// Package file persists the registry as plain files: a JSON array of active
// records plus JSON-lines sidecars for the archive and the revision history.
package file

import (
	"bufio"
	"bytes"
	"caseledger/internal/infra/persistence/memory"
	"caseledger/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultPath     = "caseledger.json"
	archiveSuffix   = ".archive.jsonl"
	revisionsSuffix = ".revisions.jsonl"
	maxLineBytes    = 16 << 20
)

// Store wraps the memory store and rewrites its files on every commit. Each
// file is replaced through a temp file and rename, so a reader never sees a
// partial write.
type Store struct {
	*memory.Store
	path string
}

// NewStore loads path (and its sidecars) if present and returns a store that
// persists back to them.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	s := &Store{Store: memory.NewStore(engine, opts...), path: path}
	snapshot, err := s.read()
	if err != nil {
		return nil, err
	}
	if err := s.ImportState(snapshot); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	s.SetCommitHook(s.persist)
	return s, nil
}

// Path returns the records file path.
func (s *Store) Path() string { return s.path }

// ArchivePath returns the archive sidecar path.
func (s *Store) ArchivePath() string { return s.path + archiveSuffix }

// RevisionsPath returns the revision sidecar path.
func (s *Store) RevisionsPath() string { return s.path + revisionsSuffix }

func (s *Store) read() (memory.Snapshot, error) {
	var snapshot memory.Snapshot
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return snapshot, fmt.Errorf("read %s: %w", s.path, err)
	case len(bytes.TrimSpace(data)) > 0:
		if err := json.Unmarshal(data, &snapshot.Records); err != nil {
			return snapshot, fmt.Errorf("decode %s: %w", s.path, err)
		}
	}
	if err := readLines(s.ArchivePath(), &snapshot.Archive); err != nil {
		return snapshot, err
	}
	if err := readLines(s.RevisionsPath(), &snapshot.Revisions); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

func readLines[T any](path string, out *[]T) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode %s line %d: %w", path, line, err)
		}
		*out = append(*out, v)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}
	return nil
}

func (s *Store) persist(_ context.Context, snapshot memory.Snapshot) error {
	records, err := json.MarshalIndent(snapshot.Records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	archive, err := encodeLines(snapshot.Archive)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	revisions, err := encodeLines(snapshot.Revisions)
	if err != nil {
		return fmt.Errorf("encode revisions: %w", err)
	}
	// sidecars first: a crash between writes leaves extra history, never a
	// record whose archive entry is missing
	if err := writeAtomic(s.RevisionsPath(), revisions); err != nil {
		return err
	}
	if err := writeAtomic(s.ArchivePath(), archive); err != nil {
		return err
	}
	return writeAtomic(s.path, append(records, '\n'))
}

func encodeLines[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
