package review

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileVersion is the decisions file format version.
const fileVersion = 1

type decisionsFile struct {
	Version   int        `yaml:"version"`
	Layout    string     `yaml:"layout,omitempty"`
	Decisions []Decision `yaml:"decisions"`
}

// SaveFile writes the store's decisions as YAML. layout is recorded for
// reference only.
func SaveFile(path, layout string, s *Store) error {
	data, err := yaml.Marshal(decisionsFile{
		Version:   fileVersion,
		Layout:    layout,
		Decisions: s.Decisions(),
	})
	if err != nil {
		return fmt.Errorf("review: marshal decisions: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("review: create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("review: write decisions: %w", err)
	}
	return nil
}

// LoadFile reads a decisions file. A missing file yields an empty store.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("review: read decisions: %w", err)
	}

	var f decisionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("review: parse %s: %w", path, err)
	}
	if f.Version > fileVersion {
		return nil, fmt.Errorf("review: %s: unsupported version %d", path, f.Version)
	}
	return LoadDecisions(f.Decisions)
}
