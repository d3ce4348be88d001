package main

import (
	"context"
	"strings"
	"time"

	"github.com/AdaptLabsAI/irisync/internal/dedup"
	"github.com/AdaptLabsAI/irisync/internal/events"
	"github.com/AdaptLabsAI/irisync/internal/factory"
	"github.com/AdaptLabsAI/irisync/internal/handlers"
	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/ratelimit"
	"github.com/AdaptLabsAI/irisync/internal/store"
	"github.com/AdaptLabsAI/irisync/internal/syncer"
	"github.com/AdaptLabsAI/irisync/pkg/config"
	fieldcrypt "github.com/AdaptLabsAI/irisync/pkg/crypto"
	"github.com/AdaptLabsAI/irisync/pkg/database"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
	"github.com/AdaptLabsAI/irisync/pkg/monitoring"
	"github.com/AdaptLabsAI/irisync/pkg/redis"
	"github.com/AdaptLabsAI/irisync/pkg/server"
	"github.com/AdaptLabsAI/irisync/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("irisync")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting IriSync (Platform Sync Engine)")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("irisync", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("irisync", version.Version, version.GitCommit)
	syncMetrics := metricsCollector.CreateSyncMetrics()

	// Database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = config.RequireEnv("DATABASE_URL")
	db := database.MustConnect(dbConfig, logger)
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Failed to close database")
		}
	}()
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))

	// Token encryption at rest
	var encryptor *fieldcrypt.FieldEncryptor
	if secret := config.GetEnv("FIELD_ENCRYPTION_SECRET", ""); secret != "" {
		var err error
		encryptor, err = fieldcrypt.DeriveFieldEncryptor([]byte(secret), "oauth-tokens")
		if err != nil {
			logger.WithError(err).Fatal("Failed to derive field encryptor")
		}
	} else {
		logger.Warn("FIELD_ENCRYPTION_SECRET not set, tokens will be stored in plaintext")
	}

	accounts := store.NewAccountStore(db, encryptor)
	inbox := store.NewInboxStore(db)

	// Dedup store: Redis when configured, otherwise per-process memory
	var deduper dedup.Deduper
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		client, err := redis.NewClientFromURL(context.Background(), redisURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.WithError(err).Error("Failed to close Redis client")
			}
		}()
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(client))
		deduper = dedup.NewRedis(client, dedup.DefaultTTL)
	} else {
		logger.Warn("REDIS_URL not set, using in-process dedup")
		deduper = dedup.NewMemory(dedup.DefaultTTL)
	}

	// Event publishing: Kafka when configured
	var publisher events.Publisher = events.NopPublisher{}
	if brokers := config.GetEnv("KAFKA_BROKERS", ""); brokers != "" {
		kp, err := events.NewKafkaPublisher(strings.Split(brokers, ","), logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka publisher")
		}
		defer func() {
			if err := kp.Close(); err != nil {
				logger.WithError(err).Error("Failed to close Kafka publisher")
			}
		}()
		healthChecker.AddCheck("kafka_producer", monitoring.KafkaProducerHealthCheck(kp.Client()))
		publisher = kp
	}

	// Rate limiter and provider factory
	limiter := ratelimit.New(logger)
	providers := factory.New(platformConfigs(), limiter, logger)

	// Sync manager
	manager := syncer.New(accounts, inbox, providers, deduper, publisher, logger,
		syncer.WithConcurrency(config.GetEnvInt("SYNC_CONCURRENCY", 4)),
		syncer.WithMetrics(syncMetrics),
	)

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.InitializeAccounts(appCtx); err != nil {
		logger.WithError(err).Fatal("Failed to initialize accounts")
	}

	// Background sync for every platform with a config entry
	if config.GetEnvBool("BACKGROUND_SYNC_ENABLED", true) {
		syncCfg := platform.SyncConfig{
			Interval:         config.GetEnvDuration("SYNC_INTERVAL", 5*time.Minute),
			EnabledPlatforms: make(map[platform.Type]bool),
			Comments:         config.GetEnvBool("SYNC_COMMENTS", true),
			Mentions:         config.GetEnvBool("SYNC_MENTIONS", true),
			DirectMessages:   config.GetEnvBool("SYNC_DIRECT_MESSAGES", true),
			Notifications:    config.GetEnvBool("SYNC_NOTIFICATIONS", true),
		}
		for p := range platformConfigs() {
			syncCfg.EnabledPlatforms[p] = true
		}
		manager.StartBackground(appCtx, syncCfg)
	}
	defer manager.StopAll()

	// HTTP surface
	jwtSecret := []byte(config.RequireEnv("JWT_SECRET"))
	webhookToken := config.GetEnv("WEBHOOK_TOKEN", "")
	if webhookToken == "" {
		logger.Warn("WEBHOOK_TOKEN not set, webhook receiver is disabled")
	}

	api := handlers.New(appCtx, manager, providers, accounts, inbox, limiter, publisher, logger, syncMetrics)

	router := server.SetupServiceRouter(logger, "irisync", healthChecker, metricsCollector)
	api.RegisterRoutes(router, jwtSecret, webhookToken)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("irisync", "18090")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}

// platformConfigs reads per-platform OAuth credentials from the
// environment. A platform without a client id is not offered.
func platformConfigs() map[platform.Type]platform.Config {
	configs := make(map[platform.Type]platform.Config)

	if id := config.GetEnv("TWITTER_CLIENT_ID", ""); id != "" {
		configs[platform.Twitter] = platform.Config{
			ClientID:     id,
			ClientSecret: config.GetEnv("TWITTER_CLIENT_SECRET", ""),
			RedirectURI:  config.GetEnv("TWITTER_REDIRECT_URI", ""),
			Tier:         config.GetEnv("TWITTER_TIER", "basic"),
		}
	}
	if id := config.GetEnv("MASTODON_CLIENT_ID", ""); id != "" {
		configs[platform.Mastodon] = platform.Config{
			ClientID:     id,
			ClientSecret: config.GetEnv("MASTODON_CLIENT_SECRET", ""),
			RedirectURI:  config.GetEnv("MASTODON_REDIRECT_URI", ""),
			Tier:         config.GetEnv("MASTODON_TIER", "basic"),
			InstanceURL:  config.GetEnv("MASTODON_INSTANCE_URL", ""),
		}
	}
	if id := config.GetEnv("LINKEDIN_CLIENT_ID", ""); id != "" {
		configs[platform.LinkedIn] = platform.Config{
			ClientID:     id,
			ClientSecret: config.GetEnv("LINKEDIN_CLIENT_SECRET", ""),
			RedirectURI:  config.GetEnv("LINKEDIN_REDIRECT_URI", ""),
			Tier:         config.GetEnv("LINKEDIN_TIER", "basic"),
		}
	}

	return configs
}
