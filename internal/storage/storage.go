// Package storage persists the small per-chat configuration (currently the
// prefix override, plus an optional global prefix override) in a single JSON
// mapping file. Every mutation writes the file wholesale.
package storage

import (
	"fmt"

	"wavebot/datastore"
)

const (
	threadKeyPrefix = "thread:"
	globalKey       = "global"
)

// ThreadConfig is the chat-local override record.
type ThreadConfig struct {
	Prefix string `json:"prefix,omitempty"`
}

type globalConfig struct {
	Prefix string `json:"prefix,omitempty"`
}

type Storage struct {
	ds *datastore.DataStore
}

func New(path string) (*Storage, error) {
	ds, err := datastore.New(path)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// ThreadPrefix returns the chat-local prefix override, if one is set.
func (s *Storage) ThreadPrefix(chatID string) (string, bool) {
	var tc ThreadConfig
	ok, err := s.ds.Get(threadKeyPrefix+chatID, &tc)
	if err != nil || !ok || tc.Prefix == "" {
		return "", false
	}
	return tc.Prefix, true
}

// SetThreadPrefix stores a chat-local prefix override and flushes to disk.
func (s *Storage) SetThreadPrefix(chatID, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("storage: prefix cannot be empty")
	}
	if err := s.ds.Set(threadKeyPrefix+chatID, ThreadConfig{Prefix: prefix}); err != nil {
		return err
	}
	return s.ds.Save()
}

// ResetThreadPrefix removes the chat-local override.
func (s *Storage) ResetThreadPrefix(chatID string) error {
	s.ds.Delete(threadKeyPrefix + chatID)
	return s.ds.Save()
}

// GlobalPrefix returns the persisted global prefix override, if any.
func (s *Storage) GlobalPrefix() (string, bool) {
	var gc globalConfig
	ok, err := s.ds.Get(globalKey, &gc)
	if err != nil || !ok || gc.Prefix == "" {
		return "", false
	}
	return gc.Prefix, true
}

// SetGlobalPrefix persists a global prefix override.
func (s *Storage) SetGlobalPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("storage: prefix cannot be empty")
	}
	if err := s.ds.Set(globalKey, globalConfig{Prefix: prefix}); err != nil {
		return err
	}
	return s.ds.Save()
}

// EffectivePrefix resolves the prefix for a chat: chat-local override first,
// then the persisted global override, then the configured default.
func (s *Storage) EffectivePrefix(chatID, fallback string) string {
	if p, ok := s.ThreadPrefix(chatID); ok {
		return p
	}
	if p, ok := s.GlobalPrefix(); ok {
		return p
	}
	return fallback
}
