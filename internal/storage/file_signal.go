package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSignal keeps the last alerted spread as the whole content of a file.
type FileSignal struct {
	path string
}

// NewFileSignal returns a file-backed signal store at path.
func NewFileSignal(path string) *FileSignal {
	return &FileSignal{path: path}
}

// Load reads the stored spread. A missing or blank file is reported as absent.
func (s *FileSignal) Load(_ context.Context) (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read last signal: %w", err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Save replaces the stored spread via a temp file and rename, so readers see
// either the old or the new value.
func (s *FileSignal) Save(_ context.Context, spread string) error {
	if err := ensureParentDir(s.path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp signal file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(spread); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write last signal: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync last signal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close last signal: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace last signal: %w", err)
	}
	return nil
}

var _ SignalStore = (*FileSignal)(nil)
