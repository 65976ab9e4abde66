// Package store persists the tracked-set as a single JSON state file.
// Writes go through a temp-file-then-rename swap so the daemon (sole
// writer) and the terminal UI (reader) never need locks: a concurrent
// load observes either the fully-old or fully-new content.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

// ErrCorruptState indicates the persisted state could not be parsed.
// Callers fall back to an empty tracked-set and keep running.
var ErrCorruptState = errors.New("corrupt state file")

type FileStore struct {
	Path string
}

func New(path string) *FileStore { return &FileStore{Path: path} }

// EnsureDir creates the state directory. Failure here is the one
// unrecoverable startup error of the persistence layer.
func (s *FileStore) EnsureDir() error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return nil
}

// Load reads the current tracked-set. A missing file is an empty set (the
// normal first-start case); an unparsable file returns ErrCorruptState.
func (s *FileStore) Load() (*tracker.Set, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return tracker.NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var set tracker.Set
	if err := json.Unmarshal(b, &set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if set.Procs == nil {
		set.Procs = make(map[string]*tracker.TrackedProcess)
	}
	return &set, nil
}

// Save atomically replaces the state file with the full serialized set.
func (s *FileStore) Save(set *tracker.Set) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op when the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	// The state file is read by the UI under another uid in some setups.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
