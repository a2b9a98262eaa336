// Package youtube resolves youtube video ids through pkg/ytvideodata.
package youtube

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/zone/internal/domain"
	"github.com/sharetube/zone/internal/media"
	"github.com/sharetube/zone/pkg/ytvideodata"
)

const ProviderName = "youtube"

type videoClient interface {
	Get(ctx context.Context, videoId string) (*ytvideodata.VideoData, error)
	Status(ctx context.Context, videoId string) error
}

type Provider struct {
	client videoClient
}

func New(client *ytvideodata.Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) Resolve(ctx context.Context, id string) (domain.Media, error) {
	data, err := p.client.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ytvideodata.ErrVideoNotFound) {
			return domain.Media{}, fmt.Errorf("%w: %s/%s", media.ErrNotFound, ProviderName, id)
		}
		return domain.Media{}, err
	}
	if data.Duration <= 0 {
		return domain.Media{}, fmt.Errorf("%w: %s/%s has no duration", media.ErrNotFound, ProviderName, id)
	}

	return domain.Media{
		Source:   domain.Source{Provider: ProviderName, Id: id},
		Title:    data.Title,
		Duration: data.Duration,
		Src:      "https://www.youtube.com/watch?v=" + id,
	}, nil
}

// Probe maps a missing or unembeddable video to failed and any other error to pending.
func (p *Provider) Probe(ctx context.Context, m domain.Media) domain.Availability {
	err := p.client.Status(ctx, m.Source.Id)
	switch {
	case err == nil:
		return domain.Available
	case errors.Is(err, ytvideodata.ErrVideoNotFound), errors.Is(err, ytvideodata.ErrVideoNotEmbeddable):
		return domain.Failed
	default:
		return domain.Pending
	}
}
