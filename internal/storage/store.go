// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

// Package storage implements the per-channel durable key/value store
// (spec §4.7, component C9) that drivers use to persist small bits of
// state across restarts, such as an iBMC session token. Each channel
// gets its own JSON document on disk, written atomically.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nexusiot/devicegateway/internal/common"
)

// Store is a per-channel string-keyed JSON value store backed by one
// file per channel under common.StorageDirectory.
type Store struct {
	dir string

	mu    sync.Mutex
	cache map[int]map[string]json.RawMessage
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
)

// Default returns the process-wide store rooted at
// common.StorageDirectory. Drivers that need to persist state (an
// iBMC session token, say) but are only constructed from an opaque
// arguments map reach it here rather than threading a *Store through
// every protocol.Constructor, the way the reference SDK's drivers
// reach package-level clients like common.LoggingClient.
func Default() *Store {
	defaultOnce.Do(func() { defaultStore = NewStore(common.StorageDirectory) })
	return defaultStore
}

func NewStore(baseDir string) *Store {
	if baseDir == "" {
		baseDir = common.StorageDirectory
	}
	return &Store{dir: baseDir, cache: make(map[int]map[string]json.RawMessage)}
}

func (s *Store) path(channelID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("channel_%d.json", channelID))
}

// load reads a channel's document into the in-memory cache if it
// isn't already resident. Caller must hold s.mu.
func (s *Store) load(channelID int) (map[string]json.RawMessage, error) {
	if doc, ok := s.cache[channelID]; ok {
		return doc, nil
	}
	doc := make(map[string]json.RawMessage)
	raw, err := os.ReadFile(s.path(channelID))
	if err != nil {
		if os.IsNotExist(err) {
			s.cache[channelID] = doc
			return doc, nil
		}
		return nil, common.NewConfigError(fmt.Sprintf("failed to read storage file for channel %d", channelID), err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, common.NewConfigError(fmt.Sprintf("failed to parse storage file for channel %d", channelID), err)
		}
	}
	s.cache[channelID] = doc
	return doc, nil
}

// persist writes a channel's document to disk via a temp-file-then-rename
// so a crash mid-write never leaves a partially-written document.
func (s *Store) persist(channelID int, doc map[string]json.RawMessage) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return common.NewConfigError("failed to marshal storage document", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return common.NewConfigError("failed to create storage directory", err)
	}
	final := s.path(channelID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return common.NewConfigError("failed to write storage temp file", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return common.NewConfigError("failed to rename storage temp file into place", err)
	}
	return nil
}

// Get reads one key for a channel into v. Returns NotFound if the key
// is absent.
func (s *Store) Get(channelID int, key string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(channelID)
	if err != nil {
		return err
	}
	raw, ok := doc[key]
	if !ok {
		return common.NewNotFound(fmt.Sprintf("key %q not found for channel %d", key, channelID), nil)
	}
	return json.Unmarshal(raw, v)
}

// GetAll returns every key/value pair for a channel, undecoded.
func (s *Store) GetAll(channelID int) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(channelID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

// Set stores one key for a channel and persists the document.
func (s *Store) Set(channelID int, key string, v interface{}) error {
	return s.SetMany(channelID, map[string]interface{}{key: v})
}

// SetMany stores several keys for a channel in a single write.
func (s *Store) SetMany(channelID int, values map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(channelID)
	if err != nil {
		return err
	}
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return common.NewInvalidArgument(fmt.Sprintf("value for key %q is not JSON-encodable", k), err)
		}
		doc[k] = raw
	}
	if err := s.persist(channelID, doc); err != nil {
		return err
	}
	s.cache[channelID] = doc
	return nil
}

// Remove deletes one key for a channel and persists the document. It
// is not an error to remove an absent key.
func (s *Store) Remove(channelID int, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(channelID)
	if err != nil {
		return err
	}
	delete(doc, key)
	if err := s.persist(channelID, doc); err != nil {
		return err
	}
	s.cache[channelID] = doc
	return nil
}
