// Package hosthint persists the per-room "who is host" marker. It is a
// local UX default read at join time, never an authoritative role: the
// relay server stays the arbiter of host actions.
package hosthint

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File stores room -> host user id markers in a small YAML file.
type File struct {
	path string
}

// NewFile creates a hint store backed by the given path. The file does
// not need to exist yet.
func NewFile(path string) *File {
	return &File{path: path}
}

// DefaultPath returns the hint file location under the user config
// directory, falling back to the working directory when none exists.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "interviewroom-hosts.yaml"
	}
	return filepath.Join(dir, "interviewroom", "hosts.yaml")
}

// HostFor returns the marked host for a room, or "" when the room has
// no marker or the file cannot be read.
func (f *File) HostFor(groupID string) string {
	hints, err := f.load()
	if err != nil {
		return ""
	}
	return hints[groupID]
}

// SetHost records userID as the marked host for a room.
func (f *File) SetHost(groupID, userID string) error {
	hints, err := f.load()
	if err != nil {
		return err
	}
	if hints == nil {
		hints = make(map[string]string)
	}
	hints[groupID] = userID

	data, err := yaml.Marshal(hints)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(f.path, data, 0o644)
}

func (f *File) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	hints := make(map[string]string)
	if err := yaml.Unmarshal(data, &hints); err != nil {
		return nil, err
	}
	return hints, nil
}
