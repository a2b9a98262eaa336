// Package redis stores the snapshot documents as fields of one redis hash.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/zone/internal/repository/snapshot"
)

const DefaultKey = "zone:snapshot"

type Store struct {
	rc   *redis.Client
	key  string
	docs *snapshot.Documents
}

// Open loads every field of the hash at key.
func Open(ctx context.Context, rc *redis.Client, key string) (*Store, error) {
	funcName := "snapshot.redis.Open"
	if key == "" {
		key = DefaultKey
	}

	s := &Store{rc: rc, key: key, docs: snapshot.NewDocuments()}

	fields, err := rc.HGetAll(ctx, key).Result()
	if err != nil {
		slog.ErrorContext(ctx, funcName, "error", err)
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	for field, value := range fields {
		s.docs.PutRaw(field, []byte(value))
	}

	slog.DebugContext(ctx, funcName, "key", key, "fields", len(fields))
	return s, nil
}

func (s *Store) Get(_ context.Context, key string, dst any) error {
	return s.docs.Decode(key, dst)
}

func (s *Store) Set(_ context.Context, key string, value any) error {
	return s.docs.Put(key, value)
}

func (s *Store) Write(ctx context.Context) error {
	funcName := "snapshot.redis.Write"
	all := s.docs.All()
	if len(all) == 0 {
		return nil
	}

	values := make(map[string]any, len(all))
	for field, raw := range all {
		values[field] = string(raw)
	}

	pipe := s.rc.TxPipeline()
	hsetCmd := pipe.HSet(ctx, s.key, values)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.ErrorContext(ctx, funcName, "error", err)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := hsetCmd.Err(); err != nil {
		slog.ErrorContext(ctx, funcName, "error", err)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return nil
}

// Close leaves the client open; its owner closes it.
func (s *Store) Close() error {
	return nil
}
