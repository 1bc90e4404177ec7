package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-unifiedpush-service/internal/documents"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/platform/apns"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/platform/web"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-unifiedpush-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/storage/postgres"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/document"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"

	"github.com/tinywideclouds/go-unifiedpush-service/unifiedpush"
	"github.com/tinywideclouds/go-unifiedpush-service/unifiedpush/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-unifiedpush-service")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Invalid yaml config", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	metricsStore, err := postgres.NewMetricsStore(cfg.Postgres.DSN)
	if err != nil {
		logger.Error("Metrics store failed", "err", err)
		os.Exit(1)
	}
	defer metricsStore.Close()

	// --- Stores (Decorated) ---
	variantStore := fsStore.NewVariantStore(fsClient)
	var installationStore push.InstallationStore = fsStore.NewInstallationStore(fsClient)
	var documentStore document.DocumentStore = fsStore.NewDocumentStore(fsClient)
	logger.Info("Stores initialized", "type", "firestore")

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		installationStore = cache.NewCachedInstallationStore(installationStore, redisClient, cfg.Redis.TTL, logger)
		documentStore = cache.NewCachedDocumentStore(documentStore, redisClient, cfg.Redis.TTL, logger)
		logger.Info("Stores upgraded", "type", "redis_cached_firestore", "ttl", cfg.Redis.TTL)
	}

	documentService := documents.NewService(
		documents.NewAliasResolver(fsStore.NewAliasStore(fsClient), logger),
		documentStore,
		logger,
	)

	// --- Dispatchers ---
	dispatchers, err := newDispatchers(ctx, cfg, logger)
	if err != nil {
		logger.Error("Dispatcher setup failed", "err", err)
		os.Exit(1)
	}

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer setup failed", "err", err)
		os.Exit(1)
	}

	service, err := unifiedpush.New(cfg, unifiedpush.Dependencies{
		Consumer:      consumer,
		Applications:  variantStore,
		Variants:      variantStore,
		Installations: installationStore,
		Metrics:       metricsStore,
		Documents:     documentService,
		Dispatchers:   dispatchers,
	}, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// newDispatchers builds a delivery client for every channel with credentials.
// Types left out of the map are accepted by the sender and dropped at fan-out.
func newDispatchers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (map[push.VariantType]push.TokenDispatcher, error) {
	dispatchers := make(map[push.VariantType]push.TokenDispatcher)

	// A. Android (FCM)
	if cfg.FCMEnabled {
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase App: %w", err)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
		}
		dispatchers[push.VariantAndroid] = fcm.NewDispatcher(fcmMessaging, logger)
		logger.Info("FCM Dispatcher enabled")
	}

	// B. iOS (APNs)
	if cfg.APNS.Enabled {
		apnsDispatcher, err := apns.NewDispatcher(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: cfg.APNS.P8Key,
			Production:   cfg.APNS.Production,
		}, logger)
		if err != nil {
			return nil, err
		}
		dispatchers[push.VariantIOS] = apnsDispatcher
		logger.Info("APNs Dispatcher enabled", "bundle_id", cfg.APNS.BundleID, "production", cfg.APNS.Production)
	}

	// C. Web (VAPID)
	if cfg.Vapid.PrivateKey == "" || cfg.Vapid.PublicKey == "" {
		logger.Warn("VAPID keys missing in configuration. Web Push disabled.")
	} else {
		dispatchers[push.VariantWebPush] = web.NewDispatcher(web.Config{
			SubscriberEmail: cfg.Vapid.SubscriberEmail,
			PublicKey:       cfg.Vapid.PublicKey,
			PrivateKey:      cfg.Vapid.PrivateKey,
		}, logger)
		logger.Info("Web Dispatcher enabled", "public_key", cfg.Vapid.PublicKey)
	}

	return dispatchers, nil
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:                  sub,
		Topic:                 topicID,
		AckDeadlineSeconds:    10,
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
