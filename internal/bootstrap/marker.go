package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LaunchMarker records whether the first-launch import has completed.
type LaunchMarker interface {
	IsFirstLaunch() (bool, error)
	MarkComplete() error
}

// FileLaunchMarker stores the flag as a small file, usually next to the database.
type FileLaunchMarker struct {
	path  string
	clock func() time.Time
}

// NewFileLaunchMarker binds a marker to path.
func NewFileLaunchMarker(path string, clock func() time.Time) (*FileLaunchMarker, error) {
	if path == "" {
		return nil, errors.New("bootstrap: launch marker path is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &FileLaunchMarker{path: path, clock: clock}, nil
}

// IsFirstLaunch reports true until MarkComplete has written the marker file.
func (m *FileLaunchMarker) IsFirstLaunch() (bool, error) {
	_, err := os.Stat(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("bootstrap: stat launch marker: %w", err)
	}
	return false, nil
}

// MarkComplete writes the marker atomically through a rename.
func (m *FileLaunchMarker) MarkComplete() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("bootstrap: create marker directory: %w", err)
	}
	temporary := m.path + ".tmp"
	payload := strconv.FormatInt(m.clock().UTC().UnixMilli(), 10) + "\n"
	if err := os.WriteFile(temporary, []byte(payload), 0o644); err != nil {
		return fmt.Errorf("bootstrap: write launch marker: %w", err)
	}
	if err := os.Rename(temporary, m.path); err != nil {
		return fmt.Errorf("bootstrap: commit launch marker: %w", err)
	}
	return nil
}

// Reset removes the marker so the next Run imports again.
func (m *FileLaunchMarker) Reset() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("bootstrap: remove launch marker: %w", err)
	}
	return nil
}
