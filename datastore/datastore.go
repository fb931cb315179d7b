// Package datastore is a small JSON-file key/value store. The whole mapping
// is rewritten atomically (temp file + rename) on save; a checksum skips
// writes when nothing changed. It backs the per-chat settings file and is not
// a general database.
package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type DataStore struct {
	mu           sync.RWMutex
	file         string
	data         map[string]json.RawMessage
	lastChecksum string
	closed       bool
}

// New opens or creates the store at path, loading existing content.
func New(path string) (*DataStore, error) {
	if path == "" {
		return nil, fmt.Errorf("datastore: file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("datastore: create directory: %w", err)
	}

	ds := &DataStore{file: path, data: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := ds.writeAtomic([]byte("{}\n")); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("datastore: read %s: %w", path, err)
	default:
		if err := json.Unmarshal(raw, &ds.data); err != nil {
			return nil, fmt.Errorf("datastore: %s is not valid JSON: %w", path, err)
		}
		ds.lastChecksum = checksum(raw)
	}
	return ds, nil
}

// Set stores value under key, marshalled as JSON.
func (ds *DataStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("datastore: marshal %s: %w", key, err)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return fmt.Errorf("datastore: closed")
	}
	ds.data[key] = raw
	return nil
}

// Get unmarshals the value for key into out. The second return is false when
// the key is absent.
func (ds *DataStore) Get(key string, out any) (bool, error) {
	ds.mu.RLock()
	raw, ok := ds.data[key]
	ds.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("datastore: unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Delete removes a key. Removing an absent key is a no-op.
func (ds *DataStore) Delete(key string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	delete(ds.data, key)
}

// Keys returns all stored keys.
func (ds *DataStore) Keys() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	keys := make([]string, 0, len(ds.data))
	for k := range ds.data {
		keys = append(keys, k)
	}
	return keys
}

// Save writes the full mapping to disk. Unchanged content is skipped.
func (ds *DataStore) Save() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return fmt.Errorf("datastore: closed")
	}
	return ds.saveLocked()
}

// Close flushes and marks the store unusable.
func (ds *DataStore) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return nil
	}
	err := ds.saveLocked()
	ds.closed = true
	return err
}

func (ds *DataStore) saveLocked() error {
	raw, err := json.MarshalIndent(ds.data, "", "  ")
	if err != nil {
		return fmt.Errorf("datastore: marshal: %w", err)
	}
	raw = append(raw, '\n')

	sum := checksum(raw)
	if sum == ds.lastChecksum {
		return nil
	}
	if err := ds.writeAtomic(raw); err != nil {
		return err
	}
	ds.lastChecksum = sum
	return nil
}

func (ds *DataStore) writeAtomic(raw []byte) error {
	tmp := ds.file + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("datastore: open temp file: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("datastore: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("datastore: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("datastore: close temp file: %w", err)
	}
	if err := os.Rename(tmp, ds.file); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("datastore: rename temp file: %w", err)
	}
	return nil
}

func checksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
