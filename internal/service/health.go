package service

import (
	"context"
	"slices"

	"github.com/sharetube/zone/internal/domain"
	"golang.org/x/sync/errgroup"
)

// HealthCheck probes the current and pending items concurrently and drops the failed ones.
// Items that left the queue while probing are left alone.
func (s *service) HealthCheck(ctx context.Context) {
	s.mu.Lock()
	var items []domain.QueueItem
	if current, ok := s.engine.Current(); ok {
		items = append(items, current)
	}
	items = append(items, s.engine.Queue()...)
	s.mu.Unlock()

	if len(items) == 0 {
		return
	}

	results := make([]domain.Availability, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ProbeConcurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = s.resolver.Probe(gctx, item.Media)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range items {
		if results[i] != domain.Failed {
			continue
		}

		if !s.hasItem(item.ItemId) {
			continue
		}

		s.logger.InfoContext(ctx, "dropping unavailable media", "item_id", item.ItemId, "source", item.Media.Source.String())
		if err := s.engine.Fail(item.ItemId); err != nil {
			s.logger.WarnContext(ctx, "failed to drop media", "item_id", item.ItemId, "error", err)
		}
	}
}

// hasItem must be called with s.mu held.
func (s *service) hasItem(itemId int) bool {
	if current, ok := s.engine.Current(); ok && current.ItemId == itemId {
		return true
	}

	return slices.ContainsFunc(s.engine.Queue(), func(item domain.QueueItem) bool {
		return item.ItemId == itemId
	})
}
