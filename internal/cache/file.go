package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// File is a Store backed by a single human-readable JSON document. The
// document is loaded once when the store is opened and rewritten in full after
// every change.
type File[V any] struct {
	mu     sync.RWMutex
	fs     afero.Fs
	path   string
	data   map[string]V
	logger *zap.Logger
}

// Decoder converts a document written in an older layout into the store
// mapping.
type Decoder[V any] func(raw []byte) (map[string]V, error)

// OpenFile loads the document at path. A missing document yields an empty
// store; an unreadable or unparsable one yields an empty store and a warning,
// and the next write replaces it. Documents that are not a JSON object are
// offered to the legacy decoders in order; the first that succeeds wins and
// the document is rewritten in the current layout.
func OpenFile[V any](fs afero.Fs, path string, logger *zap.Logger, legacy ...Decoder[V]) (*File[V], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &File[V]{
		fs:     fs,
		path:   path,
		data:   make(map[string]V),
		logger: logger.With(zap.String("cache", filepath.Base(path))),
	}
	raw, err := afero.ReadFile(fs, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		f.logger.Warn("cache file unreadable; starting empty", zap.String("path", path), zap.Error(err))
		return f, nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		f.logger.Warn("cache file is empty; starting empty", zap.String("path", path))
		return f, nil
	}
	var loaded map[string]V
	if err := json.Unmarshal(raw, &loaded); err != nil {
		if f.decodeLegacy(raw, legacy) {
			return f, nil
		}
		f.logger.Warn("cache file corrupt; starting empty", zap.String("path", path), zap.Error(err))
		return f, nil
	}
	if loaded != nil {
		f.data = loaded
	}
	f.logger.Debug("cache loaded", zap.Int("entries", len(f.data)))
	return f, nil
}

// decodeLegacy installs the first successful legacy decoding and rewrites the
// document. A failed rewrite is only logged; the next Put retries it.
func (f *File[V]) decodeLegacy(raw []byte, legacy []Decoder[V]) bool {
	for _, decode := range legacy {
		loaded, err := decode(raw)
		if err != nil || len(loaded) == 0 {
			continue
		}
		f.data = loaded
		f.logger.Info("legacy cache layout converted", zap.String("path", f.path), zap.Int("entries", len(loaded)))
		f.mu.Lock()
		err = f.flushLocked()
		f.mu.Unlock()
		if err != nil {
			f.logger.Warn("legacy cache rewrite failed", zap.String("path", f.path), zap.Error(err))
		}
		return true
	}
	return false
}

// Path returns the backing document location.
func (f *File[V]) Path() string {
	return f.path
}

// Get returns the value stored under key.
func (f *File[V]) Get(key string) (V, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	return v, ok
}

// Put stores value under key and rewrites the document.
func (f *File[V]) Put(key string, value V) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return f.flushLocked()
}

// PutAll stores every entry of values and rewrites the document once.
func (f *File[V]) PutAll(values map[string]V) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	maps.Copy(f.data, values)
	return f.flushLocked()
}

// Snapshot returns a copy of the stored entries.
func (f *File[V]) Snapshot() map[string]V {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.data)
}

// Len reports the number of stored entries.
func (f *File[V]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.data)
}

// flushLocked serializes the full mapping to a sibling temp file and renames
// it over the target, so readers see either the old or the new document.
func (f *File[V]) flushLocked() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f.data); err != nil {
		return fmt.Errorf("marshal cache %s: %w", f.path, err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := afero.TempFile(f.fs, dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", f.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = f.fs.Remove(tmpName)
		return fmt.Errorf("write cache %s: %w", f.path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = f.fs.Remove(tmpName)
		return fmt.Errorf("sync cache %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = f.fs.Remove(tmpName)
		return fmt.Errorf("close cache %s: %w", f.path, err)
	}
	if err := f.fs.Rename(tmpName, f.path); err != nil {
		_ = f.fs.Remove(tmpName)
		return fmt.Errorf("replace cache %s: %w", f.path, err)
	}
	return nil
}
