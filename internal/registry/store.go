// Package registry persists the operator's named lines (PostgreSQL connection
// profiles) and products (name to GTIN mappings) as flat JSON files.
//
// Each registry is read in full at startup and rewritten in full on every
// mutation. A missing or unparseable file is an empty registry, never a fatal
// error.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// ErrNotFound is returned when a named entry does not exist.
var ErrNotFound = errors.New("entry not found")

// IOError reports a registry file that could not be written.
// The in-memory registry keeps the change that triggered the write.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to save %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Store is a name-keyed registry backed by one JSON object file.
// It is not safe for concurrent use; callers serialize access.
type Store[V any] struct {
	path   string
	items  map[string]V
	logger *slog.Logger
}

// NewStore creates an empty store bound to path. Call Load to read the file.
// If logger is nil, a discard logger is used.
func NewStore[V any](path string, logger *slog.Logger) *Store[V] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store[V]{
		path:   path,
		items:  make(map[string]V),
		logger: logger,
	}
}

// Path returns the file backing the store.
func (s *Store[V]) Path() string {
	return s.path
}

// Load replaces the in-memory entries with the file contents.
// A missing or corrupt file leaves the store empty and returns nil; any other
// read failure also empties the store but is returned to the caller.
func (s *Store[V]) Load() error {
	s.items = make(map[string]V)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("registry file not found, starting empty", slog.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	items := make(map[string]V)
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Warn("registry file is not valid JSON, starting empty",
			slog.String("path", s.path), slog.String("error", err.Error()))
		return nil
	}
	s.items = items
	return nil
}

// Names returns the entry names in sorted order.
func (s *Store[V]) Names() []string {
	return slices.Sorted(maps.Keys(s.items))
}

// Get returns the entry stored under name.
func (s *Store[V]) Get(name string) (V, bool) {
	v, ok := s.items[name]
	return v, ok
}

// Has reports whether name is a key of the registry.
func (s *Store[V]) Has(name string) bool {
	_, ok := s.items[name]
	return ok
}

// Len returns the number of entries.
func (s *Store[V]) Len() int {
	return len(s.items)
}

// Snapshot returns a copy of all entries.
func (s *Store[V]) Snapshot() map[string]V {
	return maps.Clone(s.items)
}

// Put stores v under name and saves the file. When oldName is non-empty and
// differs from name the entry is renamed: oldName is removed first.
func (s *Store[V]) Put(oldName, name string, v V) error {
	if oldName != "" && oldName != name {
		delete(s.items, oldName)
	}
	s.items[name] = v
	return s.save()
}

// PutMany stores every entry of items and saves the file once.
func (s *Store[V]) PutMany(items map[string]V) error {
	maps.Copy(s.items, items)
	return s.save()
}

// Delete removes name and saves the file.
func (s *Store[V]) Delete(name string) error {
	if _, ok := s.items[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	delete(s.items, name)
	return s.save()
}

// save rewrites the whole file: two-space indent, non-ASCII and HTML
// characters written as-is. The file is replaced by rename so readers never
// see a partial write.
func (s *Store[V]) save() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.items); err != nil {
		return &IOError{Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return &IOError{Path: s.path, Err: err}
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return &IOError{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	// CreateTemp uses 0600; keep the mode other tools expect.
	if err := tmp.Chmod(s.fileMode()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &IOError{Path: s.path, Err: err}
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &IOError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Path: s.path, Err: err}
	}

	s.logger.Debug("registry saved", slog.String("path", s.path), slog.Int("entries", len(s.items)))
	return nil
}

// fileMode is the permission of the existing file, or 0644 for a new one.
func (s *Store[V]) fileMode() os.FileMode {
	if fi, err := os.Stat(s.path); err == nil {
		return fi.Mode().Perm()
	}
	return 0644
}
