// Package marker manages the process marker file that advertises a
// running agent to local supervision tooling.
package marker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultPath is the marker location for a system-wide install.
const DefaultPath = "/run/fieldguard/agent.json"

// Marker is the marker file contents.
type Marker struct {
	PID       int       `json:"pid"`
	SessionID string    `json:"session_id"`
	Identity  string    `json:"identity"`
	Unit      string    `json:"unit,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Write atomically replaces the marker at path: temp file, fsync,
// rename, then fsync of the parent directory.
func Write(path string, m Marker) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("marker: create directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marker: marshal: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("marker: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("marker: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("marker: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("marker: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("marker: rename into place: %w", err)
	}

	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		_ = dir.Sync()
		dir.Close()
	}
	return nil
}

// Read loads the marker at path. A missing file returns an error
// satisfying errors.Is(err, os.ErrNotExist).
func Read(path string) (Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("marker: parse %s: %w", path, err)
	}
	return m, nil
}

// Remove deletes the marker. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("marker: remove: %w", err)
	}
	return nil
}
