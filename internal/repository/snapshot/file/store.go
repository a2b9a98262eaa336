// Package file stores the snapshot as a single JSON document on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sharetube/zone/internal/repository/snapshot"
)

type Store struct {
	path string
	docs *snapshot.Documents
}

// Open reads the document at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, docs: snapshot.NewDocuments()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	for key, doc := range raw {
		s.docs.PutRaw(key, doc)
	}

	return s, nil
}

func (s *Store) Get(_ context.Context, key string, dst any) error {
	return s.docs.Decode(key, dst)
}

func (s *Store) Set(_ context.Context, key string, value any) error {
	return s.docs.Put(key, value)
}

// Write replaces the file atomically with every staged document.
func (s *Store) Write(ctx context.Context) error {
	funcName := "snapshot.file.Write"
	data, err := json.MarshalIndent(s.docs.All(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	slog.DebugContext(ctx, funcName, "path", s.path, "bytes", len(data))
	return nil
}

func (s *Store) Close() error {
	return nil
}
