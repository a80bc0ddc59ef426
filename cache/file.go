package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// ErrCorrupt wraps decoding failures of a cache document
var ErrCorrupt = errors.New("cache: corrupt document")

// fileTier persists entries as one indented JSON object keyed by entry key. Every write
// rewrites the whole document while holding mx.
type fileTier struct {
	path string
	mx   sync.Mutex
}

func (f *fileTier) get(key string) (Entry, bool, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	entries, err := Load[map[string]Entry](f.path)
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := entries[key]
	return e, ok, nil
}

// put stores e. A corrupt document is replaced.
func (f *fileTier) put(e Entry) error {
	f.mx.Lock()
	defer f.mx.Unlock()

	entries, err := Load[map[string]Entry](f.path)
	if errors.Is(err, ErrCorrupt) {
		entries = nil
	} else if err != nil {
		return err
	}
	if entries == nil {
		entries = make(map[string]Entry)
	}
	entries[e.Key] = e
	return Save(f.path, entries)
}

// update replaces e only while the same entry is still stored, so a write-back never
// resurrects a removed entry or clobbers a newer one.
func (f *fileTier) update(e Entry) error {
	f.mx.Lock()
	defer f.mx.Unlock()

	entries, err := Load[map[string]Entry](f.path)
	if err != nil {
		return err
	}
	cur, ok := entries[e.Key]
	if !ok || cur.Hash != e.Hash || !cur.CreatedAt.Equal(e.CreatedAt) {
		return nil
	}
	entries[e.Key] = e
	return Save(f.path, entries)
}

// removeExpired deletes key if the stored entry is expired at now
func (f *fileTier) removeExpired(key string, now time.Time) (bool, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	entries, err := Load[map[string]Entry](f.path)
	if err != nil {
		return false, err
	}
	e, ok := entries[key]
	if !ok || !e.Expired(now) {
		return false, nil
	}
	delete(entries, key)
	return true, Save(f.path, entries)
}

func (f *fileTier) remove(key string) error {
	f.mx.Lock()
	defer f.mx.Unlock()

	entries, err := Load[map[string]Entry](f.path)
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return Save(f.path, entries)
}

func (f *fileTier) prune(now time.Time) (int, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	entries, err := Load[map[string]Entry](f.path)
	if err != nil {
		return 0, err
	}
	removed := 0
	for key, e := range entries {
		if e.Expired(now) {
			delete(entries, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, Save(f.path, entries)
}

// Load decodes the JSON document at path into a T. A missing or empty file yields the
// zero T, an undecodable one an error wrapping ErrCorrupt.
func Load[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return out, nil
}

// Save replaces the JSON document at path with the indented encoding of v. The document is
// written beside the target and renamed over it, so readers never see half a file.
func Save(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
