package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/zone/internal/domain"
	"github.com/sharetube/zone/internal/playback"
	"github.com/sharetube/zone/internal/repository/snapshot"
)

// SaveSnapshot stages the playback state, bans and echoes and writes them outside the lock.
func (s *service) SaveSnapshot(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	s.mu.Lock()
	state := s.engine.CopyState()
	bans := s.banList()
	echoes := make([]domain.Echo, 0)
	for _, e := range s.registry.Echoes() {
		echoes = append(echoes, *e)
	}
	s.mu.Unlock()

	if err := s.store.Set(ctx, snapshot.KeyPlayback, state); err != nil {
		return fmt.Errorf("failed to stage playback: %w", err)
	}
	if err := s.store.Set(ctx, snapshot.KeyBans, bans); err != nil {
		return fmt.Errorf("failed to stage bans: %w", err)
	}
	if err := s.store.Set(ctx, snapshot.KeyEchoes, echoes); err != nil {
		return fmt.Errorf("failed to stage echoes: %w", err)
	}

	if err := s.store.Write(ctx); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.logger.DebugContext(ctx, "snapshot saved", "queue", len(state.Queue), "bans", len(bans), "echoes", len(echoes))
	return nil
}

// LoadSnapshot restores whatever the store holds. Missing keys are skipped.
func (s *service) LoadSnapshot(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	var state playback.State
	hasState, err := s.load(ctx, snapshot.KeyPlayback, &state)
	if err != nil {
		return err
	}

	var bans []domain.Ban
	if _, err := s.load(ctx, snapshot.KeyBans, &bans); err != nil {
		return err
	}

	var echoes []domain.Echo
	if _, err := s.load(ctx, snapshot.KeyEchoes, &echoes); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if hasState {
		s.engine.LoadState(state)
	}
	for _, b := range bans {
		s.bans[b.Ip] = b
	}
	for i := range echoes {
		s.registry.SetEcho(&echoes[i])
	}

	s.logger.InfoContext(ctx, "snapshot loaded", "queue", len(state.Queue), "bans", len(bans), "echoes", len(echoes))
	return nil
}

func (s *service) load(ctx context.Context, key string, dst any) (bool, error) {
	err := s.store.Get(ctx, key, dst)
	if errors.Is(err, snapshot.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}

	return true, nil
}
