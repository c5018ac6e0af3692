// Package state persists a single JSON record per series.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store loads and saves one JSON document of type T.
type Store[T any] struct {
	path     string
	defaults func() T
}

// NewStore returns a store for path. defaults builds the value returned when
// the file does not exist.
func NewStore[T any](path string, defaults func() T) *Store[T] {
	return &Store[T]{path: path, defaults: defaults}
}

// Path returns the file backing the store.
func (s *Store[T]) Path() string {
	return s.path
}

// Exists reports whether the state file is present.
func (s *Store[T]) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the record, or returns the defaults when the file is absent.
func (s *Store[T]) Load() (T, error) {
	var v T
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.defaults != nil {
				return s.defaults(), nil
			}
			return v, nil
		}
		return v, fmt.Errorf("reading state %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("parsing state %s: %w", s.path, err)
	}
	return v, nil
}

// Save replaces the record. The file is written next to the target and
// renamed over it, so readers never see a partial document.
func (s *Store[T]) Save(v T) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("setting state file mode: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing state %s: %w", s.path, err)
	}
	return nil
}

// Marshal encodes v as indented JSON without HTML escaping, so non-ASCII
// topics stay readable in the file.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
