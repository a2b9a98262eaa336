// Package service is the zone coordinator. It binds channels to users, enforces bans and
// limits, drives the playback engine and fans its state out to every bound channel.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sharetube/zone/internal/domain"
	"github.com/sharetube/zone/internal/playback"
	"github.com/sharetube/zone/internal/repository/connection/inmemory"
	"github.com/sharetube/zone/internal/repository/registry"
	"github.com/sharetube/zone/internal/repository/snapshot"
	"github.com/sharetube/zone/pkg/timeline"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUserNotFound      = errors.New("user not found")
	ErrNotJoined         = errors.New("channel has not joined")
	ErrAlreadyJoined     = errors.New("channel has already joined")
	ErrBanned            = errors.New("address is banned")
	ErrWrongPassword     = errors.New("wrong password")
	ErrAlreadyQueued     = errors.New("media is already queued")
	ErrQueueLimitReached = errors.New("queue limit reached")
	ErrItemNotFound      = errors.New("queue item not found")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrNothingPlaying    = errors.New("nothing is playing")
)

// Close codes sent to channels the coordinator refuses or kicks.
const (
	CloseWrongPassword = 4001
	CloseBanned        = 4003
)

// Conn is one live transport channel.
type Conn interface {
	ID() string
	Addr() string
	Send(messageType string, payload any)
	Close(code int, text string)
}

type iResolver interface {
	Resolve(ctx context.Context, path string) (domain.Media, error)
	Banger(ctx context.Context) (domain.Media, error)
	Probe(ctx context.Context, media domain.Media) domain.Availability
}

type Config struct {
	Secret string
	// Password and AdminPassword accept plain text or a bcrypt hash. Empty disables them.
	Password         string
	AdminPassword    string
	ChatLimit        int
	QueueLimit       int
	VoteThreshold    float64
	GracePeriod      time.Duration
	StartupDelay     time.Duration
	HealthInterval   time.Duration
	SnapshotInterval time.Duration
	ProbeConcurrency int
}

type Params struct {
	Config   *Config
	Resolver iResolver
	// Store may be nil, which disables snapshots.
	Store  snapshot.Store
	Logger *slog.Logger
	// NewScheduler defaults to timeline.New.
	NewScheduler func(mu sync.Locker) timeline.Scheduler
}

type service struct {
	mu       sync.Mutex
	sched    timeline.Scheduler
	registry *registry.Registry
	conns    *inmemory.Repo[Conn]
	engine   *playback.Engine
	resolver iResolver
	store    snapshot.Store
	logger   *slog.Logger
	cfg      Config

	secret            []byte
	passwordHash      []byte
	adminPasswordHash []byte
	tokens            map[string]string
	userTokens        map[string]string
	bans              map[string]domain.Ban
	eventMode         bool

	healthTask   timeline.Task
	snapshotTask timeline.Task
	stopped      bool
}

func New(params *Params) (*service, error) {
	cfg := *params.Config
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = 4
	}

	newScheduler := params.NewScheduler
	if newScheduler == nil {
		newScheduler = timeline.New
	}

	s := &service{
		registry:   registry.New(),
		conns:      inmemory.NewRepo[Conn](),
		resolver:   params.Resolver,
		store:      params.Store,
		logger:     params.Logger,
		cfg:        cfg,
		tokens:     make(map[string]string),
		userTokens: make(map[string]string),
		bans:       make(map[string]domain.Ban),
	}
	s.sched = newScheduler(&s.mu)
	s.engine = playback.New(&playback.Params{
		Scheduler:    s.sched,
		StartupDelay: cfg.StartupDelay,
		OnEvent:      s.handlePlaybackEvent,
	})

	var err error
	if s.secret, err = loadSecret(cfg.Secret); err != nil {
		return nil, err
	}
	if s.passwordHash, err = hashPassword(cfg.Password); err != nil {
		return nil, err
	}
	if s.adminPasswordHash, err = hashPassword(cfg.AdminPassword); err != nil {
		return nil, err
	}

	return s, nil
}

// Start loads the last snapshot and schedules the periodic health check and snapshot.
func (s *service) Start(ctx context.Context) error {
	if err := s.LoadSnapshot(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduleHealthCheck(ctx)
	s.scheduleSnapshot(ctx)
	return nil
}

// Stop cancels periodic work and writes a final snapshot.
func (s *service) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	if s.healthTask != nil {
		s.healthTask.Stop()
	}
	if s.snapshotTask != nil {
		s.snapshotTask.Stop()
	}
	s.mu.Unlock()

	return s.SaveSnapshot(ctx)
}

func (s *service) scheduleHealthCheck(ctx context.Context) {
	if s.stopped || s.cfg.HealthInterval <= 0 {
		return
	}

	s.healthTask = s.sched.AfterFunc(s.cfg.HealthInterval, func() {
		go func() {
			s.HealthCheck(ctx)

			s.mu.Lock()
			defer s.mu.Unlock()
			s.scheduleHealthCheck(ctx)
		}()
	})
}

func (s *service) scheduleSnapshot(ctx context.Context) {
	if s.stopped || s.store == nil || s.cfg.SnapshotInterval <= 0 {
		return
	}

	s.snapshotTask = s.sched.AfterFunc(s.cfg.SnapshotInterval, func() {
		go func() {
			if err := s.SaveSnapshot(ctx); err != nil {
				s.logger.ErrorContext(ctx, "failed to save snapshot", "error", err)
			}

			s.mu.Lock()
			defer s.mu.Unlock()
			s.scheduleSnapshot(ctx)
		}()
	})
}

// IsBanned reports whether addr may not reach the zone.
func (s *service) IsBanned(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.bans[addr]
	return ok
}

func hashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	if strings.HasPrefix(password, "$2") {
		if _, err := bcrypt.Cost([]byte(password)); err == nil {
			return []byte(password), nil
		}
	}

	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

func checkPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
