// Package snapshot defines the key-value document store the zone persists itself into.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

const (
	KeyPlayback = "playback"
	KeyBans     = "bans"
	KeyEchoes   = "echoes"
)

var ErrNotFound = errors.New("snapshot key not found")

// Store holds JSON documents by key. Set only stages a value; Write persists everything staged.
type Store interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any) error
	Write(ctx context.Context) error
	Close() error
}

// Documents is the staging area shared by the store backends.
type Documents struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

func NewDocuments() *Documents {
	return &Documents{docs: make(map[string]json.RawMessage)}
}

func (d *Documents) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	d.mu.Lock()
	d.docs[key] = raw
	d.mu.Unlock()
	return nil
}

// PutRaw stores an already encoded document, as read back from a backend.
func (d *Documents) PutRaw(key string, raw []byte) {
	d.mu.Lock()
	d.docs[key] = append(json.RawMessage(nil), raw...)
	d.mu.Unlock()
}

// Decode unmarshals the document stored under key into dst.
func (d *Documents) Decode(key string, dst any) error {
	d.mu.RLock()
	raw, ok := d.docs[key]
	d.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return nil
}

func (d *Documents) Has(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.docs[key]
	return ok
}

// All returns a copy of every staged document.
func (d *Documents) All() map[string]json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	all := make(map[string]json.RawMessage, len(d.docs))
	for key, raw := range d.docs {
		all[key] = raw
	}

	return all
}
