// Package media turns "provider/id" paths into playable media and probes their availability.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sharetube/zone/internal/domain"
)

var (
	ErrUnsupportedPath = errors.New("unsupported media path")
	ErrNotFound        = errors.New("media not found")
	ErrNoBangers       = errors.New("no bangers available")
)

type Provider interface {
	Name() string
	Resolve(ctx context.Context, id string) (domain.Media, error)
	Probe(ctx context.Context, media domain.Media) domain.Availability
}

// BangerSource picks a random media from a tagged subset.
type BangerSource interface {
	RandomBanger(ctx context.Context) (domain.Media, error)
}

type Resolver struct {
	providers map[string]Provider
	bangers   BangerSource
	logger    *slog.Logger
}

func NewResolver(logger *slog.Logger, bangers BangerSource, providers ...Provider) *Resolver {
	r := &Resolver{
		providers: make(map[string]Provider, len(providers)),
		bangers:   bangers,
		logger:    logger,
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}

	return r
}

// Resolve maps a "provider/id" path to a Media.
func (r *Resolver) Resolve(ctx context.Context, path string) (domain.Media, error) {
	providerName, id, ok := strings.Cut(strings.Trim(path, "/"), "/")
	if !ok || id == "" {
		return domain.Media{}, fmt.Errorf("%w: %q", ErrUnsupportedPath, path)
	}

	provider, ok := r.providers[providerName]
	if !ok {
		return domain.Media{}, fmt.Errorf("%w: unknown provider %q", ErrUnsupportedPath, providerName)
	}

	m, err := provider.Resolve(ctx, id)
	if err != nil {
		r.logger.DebugContext(ctx, "failed to resolve media", "path", path, "error", err)
		return domain.Media{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	return m, nil
}

// Probe asks the provider that resolved m whether it is still playable.
// Media from an unknown provider is reported as failed.
func (r *Resolver) Probe(ctx context.Context, m domain.Media) domain.Availability {
	provider, ok := r.providers[m.Source.Provider]
	if !ok {
		return domain.Failed
	}

	return provider.Probe(ctx, m)
}

func (r *Resolver) Banger(ctx context.Context) (domain.Media, error) {
	if r.bangers == nil {
		return domain.Media{}, ErrNoBangers
	}

	return r.bangers.RandomBanger(ctx)
}
