// Package library serves media listed in a local YAML catalog.
package library

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sharetube/zone/internal/domain"
	"github.com/sharetube/zone/internal/media"
	"gopkg.in/yaml.v3"
)

const (
	ProviderName = "library"
	TagBanger    = "banger"
)

type Entry struct {
	Id       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	Duration time.Duration `yaml:"duration"`
	Src      string        `yaml:"src"`
	Tags     []string      `yaml:"tags"`
}

type catalog struct {
	Media []Entry `yaml:"media"`
}

type Library struct {
	dir     string
	entries map[string]Entry
	bangers []string
}

// Load reads the catalog at path. Relative src paths are resolved against its directory.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read library: %w", err)
	}

	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse library: %w", err)
	}

	return New(filepath.Dir(path), c.Media)
}

func New(dir string, entries []Entry) (*Library, error) {
	l := &Library{dir: dir, entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.Id == "" {
			return nil, errors.New("library entry without id")
		}
		if e.Duration <= 0 {
			return nil, fmt.Errorf("library entry %q has no duration", e.Id)
		}
		if _, ok := l.entries[e.Id]; ok {
			return nil, fmt.Errorf("duplicate library entry %q", e.Id)
		}

		l.entries[e.Id] = e
		if slices.Contains(e.Tags, TagBanger) {
			l.bangers = append(l.bangers, e.Id)
		}
	}

	return l, nil
}

func (l *Library) Name() string {
	return ProviderName
}

func (l *Library) Resolve(_ context.Context, id string) (domain.Media, error) {
	e, ok := l.entries[id]
	if !ok {
		return domain.Media{}, fmt.Errorf("%w: %s/%s", media.ErrNotFound, ProviderName, id)
	}

	return l.media(e), nil
}

func (l *Library) RandomBanger(_ context.Context) (domain.Media, error) {
	if len(l.bangers) == 0 {
		return domain.Media{}, media.ErrNoBangers
	}

	return l.media(l.entries[l.bangers[rand.IntN(len(l.bangers))]]), nil
}

// Probe reports a local file as failed once it disappears. Remote sources are assumed available.
func (l *Library) Probe(_ context.Context, m domain.Media) domain.Availability {
	if _, ok := l.entries[m.Source.Id]; !ok {
		return domain.Failed
	}
	if isRemote(m.Src) {
		return domain.Available
	}

	_, err := os.Stat(l.localPath(m.Src))
	switch {
	case err == nil:
		return domain.Available
	case errors.Is(err, os.ErrNotExist):
		return domain.Failed
	default:
		return domain.Pending
	}
}

func (l *Library) media(e Entry) domain.Media {
	title := e.Title
	if title == "" {
		title = e.Id
	}

	return domain.Media{
		Source:   domain.Source{Provider: ProviderName, Id: e.Id},
		Title:    title,
		Duration: e.Duration,
		Src:      e.Src,
	}
}

func (l *Library) localPath(src string) string {
	if filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(l.dir, src)
}

func isRemote(src string) bool {
	return strings.Contains(src, "://")
}
