package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/zone/internal/controller"
	"github.com/sharetube/zone/internal/media"
	"github.com/sharetube/zone/internal/media/library"
	"github.com/sharetube/zone/internal/media/youtube"
	"github.com/sharetube/zone/internal/repository/snapshot"
	"github.com/sharetube/zone/internal/repository/snapshot/file"
	snapshotredis "github.com/sharetube/zone/internal/repository/snapshot/redis"
	"github.com/sharetube/zone/internal/repository/snapshot/sqlite"
	"github.com/sharetube/zone/internal/service"
	"github.com/sharetube/zone/internal/transport"
	"github.com/sharetube/zone/pkg/ctxlogger"
	"github.com/sharetube/zone/pkg/redisclient"
	"github.com/sharetube/zone/pkg/ytvideodata"
)

const (
	SnapshotNone   = "none"
	SnapshotFile   = "file"
	SnapshotRedis  = "redis"
	SnapshotSQLite = "sqlite"
)

type AppConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	LogLevel       string   `json:"log_level"`
	LogFormat      string   `json:"log_format"`
	TrustedProxies []string `json:"trusted_proxies"`

	Secret        string `json:"-"`
	Password      string `json:"-"`
	AdminPassword string `json:"-"`

	ChatLimit        int           `json:"chat_limit"`
	QueueLimit       int           `json:"queue_limit"`
	VoteThreshold    float64       `json:"vote_threshold"`
	GracePeriod      time.Duration `json:"grace_period"`
	StartupDelay     time.Duration `json:"startup_delay"`
	PingInterval     time.Duration `json:"ping_interval"`
	HealthInterval   time.Duration `json:"health_interval"`
	SnapshotInterval time.Duration `json:"snapshot_interval"`

	SnapshotDriver string `json:"snapshot_driver"`
	SnapshotPath   string `json:"snapshot_path"`
	RedisHost      string `json:"redis_host"`
	RedisPort      int    `json:"redis_port"`
	RedisPassword  string `json:"-"`
	RedisDB        int    `json:"redis_db"`

	LibraryPath    string `json:"library_path"`
	YoutubeEnabled bool   `json:"youtube_enabled"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if cfg.ChatLimit < 1 {
		return fmt.Errorf("chat limit must be greater than 0")
	}
	if cfg.QueueLimit < 0 {
		return fmt.Errorf("queue limit must not be negative")
	}
	if cfg.VoteThreshold <= 0 || cfg.VoteThreshold > 1 {
		return fmt.Errorf("vote threshold must be in (0, 1]")
	}
	if cfg.GracePeriod < 0 || cfg.StartupDelay < 0 {
		return fmt.Errorf("grace period and startup delay must not be negative")
	}
	if cfg.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be greater than 0")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	switch cfg.SnapshotDriver {
	case SnapshotNone:
	case SnapshotFile, SnapshotSQLite:
		if cfg.SnapshotPath == "" {
			return fmt.Errorf("snapshot path is required for the %s driver", cfg.SnapshotDriver)
		}
	case SnapshotRedis:
		if cfg.RedisHost == "" {
			return fmt.Errorf("redis host is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown snapshot driver %q", cfg.SnapshotDriver)
	}
	if cfg.LibraryPath == "" && !cfg.YoutubeEnabled {
		return fmt.Errorf("at least one media provider must be configured")
	}
	if _, err := parseTrustedProxies(cfg.TrustedProxies); err != nil {
		return err
	}

	return nil
}

// parseTrustedProxies accepts CIDR prefixes and bare addresses. Values from the environment
// arrive as one comma separated string.
func parseTrustedProxies(values []string) ([]netip.Prefix, error) {
	var fields []string
	for _, value := range values {
		fields = append(fields, strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || r == ' '
		})...)
	}

	prefixes := make([]netip.Prefix, 0, len(fields))
	for _, value := range fields {
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return prefixes, nil
}

func newLogger(cfg *AppConfig, w io.Writer) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: true,
	}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.ToLower(cfg.LogFormat) == "text" {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(ctxlogger.ContextHandler{Handler: handler}), nil
}

// openStore returns a nil store for the none driver.
func openStore(ctx context.Context, cfg *AppConfig) (snapshot.Store, error) {
	switch cfg.SnapshotDriver {
	case SnapshotFile:
		store, err := file.Open(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case SnapshotSQLite:
		store, err := sqlite.Open(ctx, cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case SnapshotRedis:
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		store, err := snapshotredis.Open(ctx, rc, snapshotredis.DefaultKey)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return redisStore{Store: store, rc: rc}, nil
	}

	return nil, nil
}

// redisStore owns the client it was opened with.
type redisStore struct {
	*snapshotredis.Store
	rc *redis.Client
}

func (s redisStore) Close() error {
	return errors.Join(s.Store.Close(), s.rc.Close())
}

func newResolver(cfg *AppConfig, logger *slog.Logger) (*media.Resolver, error) {
	var providers []media.Provider
	var bangers media.BangerSource

	if cfg.LibraryPath != "" {
		lib, err := library.Load(cfg.LibraryPath)
		if err != nil {
			return nil, err
		}
		providers = append(providers, lib)
		bangers = lib
	}

	if cfg.YoutubeEnabled {
		providers = append(providers, youtube.New(ytvideodata.New(nil)))
	}

	return media.NewResolver(logger, bangers, providers...), nil
}

type app struct {
	zone    interface{ Stop(context.Context) error }
	store   snapshot.Store
	handler http.Handler
}

func newApp(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (*app, error) {
	trustedProxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	resolver, err := newResolver(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create media resolver: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	zone, err := service.New(&service.Params{
		Config: &service.Config{
			Secret:           cfg.Secret,
			Password:         cfg.Password,
			AdminPassword:    cfg.AdminPassword,
			ChatLimit:        cfg.ChatLimit,
			QueueLimit:       cfg.QueueLimit,
			VoteThreshold:    cfg.VoteThreshold,
			GracePeriod:      cfg.GracePeriod,
			StartupDelay:     cfg.StartupDelay,
			HealthInterval:   cfg.HealthInterval,
			SnapshotInterval: cfg.SnapshotInterval,
		},
		Resolver: resolver,
		Store:    store,
		Logger:   logger,
	})
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("failed to create zone: %w", err)
	}

	if err := zone.Start(ctx); err != nil {
		closeStore(store)
		return nil, fmt.Errorf("failed to start zone: %w", err)
	}

	transportCfg := transport.DefaultConfig()
	transportCfg.PingInterval = cfg.PingInterval
	transportCfg.PongWait = 2 * cfg.PingInterval

	c := controller.NewController(&controller.Params{
		ZoneService:    zone,
		Transport:      transportCfg,
		TrustedProxies: trustedProxies,
		Logger:         logger,
	})

	return &app{zone: zone, store: store, handler: c.GetMux()}, nil
}

// shutdown stops the zone, which writes the final snapshot, and closes the store.
func (a *app) shutdown(ctx context.Context) error {
	err := a.zone.Stop(ctx)
	if cerr := closeStore(a.store); cerr != nil {
		err = errors.Join(err, cerr)
	}

	return err
}

func closeStore(store snapshot.Store) error {
	if store == nil {
		return nil
	}

	return store.Close()
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: a.handler}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)
	defer serverStopCtx()

	shutdownErr := make(chan error, 1)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		select {
		case <-sig:
		case <-serverCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(serverCtx), 30*time.Second)
		defer cancel()

		logger.InfoContext(shutdownCtx, "shutting down")
		err := server.Shutdown(shutdownCtx)
		shutdownErr <- errors.Join(err, a.shutdown(shutdownCtx))
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		serverStopCtx()
		<-shutdownErr
		return err
	}

	return <-shutdownErr
}
