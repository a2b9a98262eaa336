package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/zone/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	host = configVar[string]{
		envKey:       "ZONE_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	port = configVar[int]{
		envKey:       "ZONE_PORT",
		flagKey:      "port",
		defaultValue: 8080,
		usage:        "Server port",
	}
	logLevel = configVar[string]{
		envKey:       "ZONE_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	logFormat = configVar[string]{
		envKey:       "ZONE_LOG_FORMAT",
		flagKey:      "log-format",
		defaultValue: "json",
		usage:        "Log format, json or text",
	}
	trustedProxies = configVar[[]string]{
		envKey:       "ZONE_TRUSTED_PROXIES",
		flagKey:      "trusted-proxies",
		defaultValue: nil,
		usage:        "Proxy addresses or prefixes whose forwarding headers are honoured",
	}
	secret = configVar[string]{
		envKey:       "ZONE_SECRET",
		flagKey:      "secret",
		defaultValue: "",
		usage:        "Token signing secret, random when empty",
	}
	password = configVar[string]{
		envKey:       "ZONE_PASSWORD",
		flagKey:      "password",
		defaultValue: "",
		usage:        "Join password or its bcrypt hash",
	}
	adminPassword = configVar[string]{
		envKey:       "ZONE_ADMIN_PASSWORD",
		flagKey:      "admin-password",
		defaultValue: "",
		usage:        "Admin password or its bcrypt hash",
	}
	chatLimit = configVar[int]{
		envKey:       "ZONE_CHAT_LIMIT",
		flagKey:      "chat-limit",
		defaultValue: 256,
		usage:        "Maximum chat message length",
	}
	queueLimit = configVar[int]{
		envKey:       "ZONE_QUEUE_LIMIT",
		flagKey:      "queue-limit",
		defaultValue: 3,
		usage:        "Maximum queued items per address, 0 for no limit",
	}
	voteThreshold = configVar[float64]{
		envKey:       "ZONE_VOTE_THRESHOLD",
		flagKey:      "vote-threshold",
		defaultValue: 0.6,
		usage:        "Share of connected users needed to skip",
	}
	gracePeriod = configVar[time.Duration]{
		envKey:       "ZONE_GRACE_PERIOD",
		flagKey:      "grace-period",
		defaultValue: 30 * time.Second,
		usage:        "How long a disconnected user is kept for resume",
	}
	startupDelay = configVar[time.Duration]{
		envKey:       "ZONE_STARTUP_DELAY",
		flagKey:      "startup-delay",
		defaultValue: 2 * time.Second,
		usage:        "Pre-roll before an item starts",
	}
	pingInterval = configVar[time.Duration]{
		envKey:       "ZONE_PING_INTERVAL",
		flagKey:      "ping-interval",
		defaultValue: 30 * time.Second,
		usage:        "Websocket ping interval",
	}
	healthInterval = configVar[time.Duration]{
		envKey:       "ZONE_HEALTH_INTERVAL",
		flagKey:      "health-interval",
		defaultValue: 5 * time.Minute,
		usage:        "Queue health check interval, 0 disables",
	}
	snapshotInterval = configVar[time.Duration]{
		envKey:       "ZONE_SNAPSHOT_INTERVAL",
		flagKey:      "snapshot-interval",
		defaultValue: time.Minute,
		usage:        "Snapshot interval, 0 disables periodic snapshots",
	}
	snapshotDriver = configVar[string]{
		envKey:       "ZONE_SNAPSHOT_DRIVER",
		flagKey:      "snapshot-driver",
		defaultValue: app.SnapshotFile,
		usage:        "Snapshot store: none, file, redis or sqlite",
	}
	snapshotPath = configVar[string]{
		envKey:       "ZONE_SNAPSHOT_PATH",
		flagKey:      "snapshot-path",
		defaultValue: "data/snapshot.json",
		usage:        "Snapshot file or sqlite database path",
	}
	redisHost = configVar[string]{
		envKey:       "ZONE_REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPort = configVar[int]{
		envKey:       "ZONE_REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisPassword = configVar[string]{
		envKey:       "ZONE_REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
	}
	redisDB = configVar[int]{
		envKey:       "ZONE_REDIS_DB",
		flagKey:      "redis-db",
		defaultValue: 0,
		usage:        "Redis database",
	}
	libraryPath = configVar[string]{
		envKey:       "ZONE_LIBRARY_PATH",
		flagKey:      "library-path",
		defaultValue: "",
		usage:        "Media library catalog",
	}
	youtubeEnabled = configVar[bool]{
		envKey:       "ZONE_YOUTUBE_ENABLED",
		flagKey:      "youtube-enabled",
		defaultValue: true,
		usage:        "Allow youtube/<id> paths",
	}
)

func register[T any](v configVar[T], define func(name string, value T, usage string) *T) {
	define(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *app.AppConfig {
	for _, v := range []configVar[string]{host, logLevel, logFormat, secret, password, adminPassword,
		snapshotDriver, snapshotPath, redisHost, redisPassword, libraryPath} {
		register(v, pflag.String)
	}
	for _, v := range []configVar[int]{port, chatLimit, queueLimit, redisPort, redisDB} {
		register(v, pflag.Int)
	}
	for _, v := range []configVar[time.Duration]{gracePeriod, startupDelay, pingInterval, healthInterval, snapshotInterval} {
		register(v, pflag.Duration)
	}
	register(trustedProxies, pflag.StringSlice)
	register(voteThreshold, pflag.Float64)
	register(youtubeEnabled, pflag.Bool)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	config := &app.AppConfig{
		Host:             viper.GetString(host.flagKey),
		Port:             viper.GetInt(port.flagKey),
		LogLevel:         viper.GetString(logLevel.flagKey),
		LogFormat:        viper.GetString(logFormat.flagKey),
		TrustedProxies:   viper.GetStringSlice(trustedProxies.flagKey),
		Secret:           viper.GetString(secret.flagKey),
		Password:         viper.GetString(password.flagKey),
		AdminPassword:    viper.GetString(adminPassword.flagKey),
		ChatLimit:        viper.GetInt(chatLimit.flagKey),
		QueueLimit:       viper.GetInt(queueLimit.flagKey),
		VoteThreshold:    viper.GetFloat64(voteThreshold.flagKey),
		GracePeriod:      viper.GetDuration(gracePeriod.flagKey),
		StartupDelay:     viper.GetDuration(startupDelay.flagKey),
		PingInterval:     viper.GetDuration(pingInterval.flagKey),
		HealthInterval:   viper.GetDuration(healthInterval.flagKey),
		SnapshotInterval: viper.GetDuration(snapshotInterval.flagKey),
		SnapshotDriver:   viper.GetString(snapshotDriver.flagKey),
		SnapshotPath:     viper.GetString(snapshotPath.flagKey),
		RedisHost:        viper.GetString(redisHost.flagKey),
		RedisPort:        viper.GetInt(redisPort.flagKey),
		RedisPassword:    viper.GetString(redisPassword.flagKey),
		RedisDB:          viper.GetInt(redisDB.flagKey),
		LibraryPath:      viper.GetString(libraryPath.flagKey),
		YoutubeEnabled:   viper.GetBool(youtubeEnabled.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	if err := app.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
