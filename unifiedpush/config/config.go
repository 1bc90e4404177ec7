package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type APNSConfig struct {
	Enabled    bool
	KeyID      string
	TeamID     string
	BundleID   string
	P8Key      string
	Production bool
}

type PostgresConfig struct {
	DSN string
	// RetentionDays bounds how long push message records are kept; 0 keeps them forever.
	RetentionDays int
}

type FanoutConfig struct {
	QueueSize int
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Vapid      VapidConfig
	APNS       APNSConfig
	FCMEnabled bool
	Postgres   PostgresConfig
	Fanout     FanoutConfig

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

const (
	defaultListenAddr = ":8080"
	defaultCacheTTL   = time.Hour
)

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	overrideString("PROJECT_ID", &cfg.ProjectID, logger)
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	overrideString("TOPIC_ID", &cfg.TopicID, logger)
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	overrideString("SUBSCRIPTION_DLQ_TOPIC_ID", &cfg.SubscriptionDLQTopicID, logger)
	overridePositiveInt("NUM_PIPELINE_WORKERS", &cfg.NumPipelineWorkers, logger)

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	overrideString("REDIS_PASSWORD", &cfg.Redis.Password, logger)
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	overrideBool("REDIS_ENABLED", &cfg.Redis.Enabled, logger)
	if val := os.Getenv("REDIS_CACHE_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil && ttl > 0 {
			cfg.Redis.TTL = ttl
		} else {
			logger.Warn("Ignoring invalid REDIS_CACHE_TTL", "value", val)
		}
	}

	// VAPID
	overrideString("VAPID_PUBLIC_KEY", &cfg.Vapid.PublicKey, logger)
	overrideString("VAPID_PRIVATE_KEY", &cfg.Vapid.PrivateKey, logger)
	overrideString("VAPID_SUB_EMAIL", &cfg.Vapid.SubscriberEmail, logger)

	// APNs
	overrideString("APNS_KEY_ID", &cfg.APNS.KeyID, logger)
	overrideString("APNS_TEAM_ID", &cfg.APNS.TeamID, logger)
	overrideString("APNS_BUNDLE_ID", &cfg.APNS.BundleID, logger)
	if val := os.Getenv("APNS_P8_KEY"); val != "" {
		cfg.APNS.P8Key = val
		cfg.APNS.Enabled = true
	}
	overrideBool("APNS_PRODUCTION", &cfg.APNS.Production, logger)
	overrideBool("FCM_ENABLED", &cfg.FCMEnabled, logger)

	// Postgres
	overrideString("POSTGRES_DSN", &cfg.Postgres.DSN, logger)
	overridePositiveInt("METRICS_RETENTION_DAYS", &cfg.Postgres.RetentionDays, logger)

	overridePositiveInt("FANOUT_QUEUE_SIZE", &cfg.Fanout.QueueSize, logger)

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		var cleanOrigins []string
		for _, o := range strings.Split(corsOrigins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// Final validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required (set via YAML or POSTGRES_DSN env var)")
	}
	if cfg.APNS.Enabled && (cfg.APNS.KeyID == "" || cfg.APNS.TeamID == "" || cfg.APNS.BundleID == "") {
		return nil, fmt.Errorf("apns requires key_id, team_id and bundle_id when enabled")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = defaultCacheTTL
	}
	if cfg.PubsubConsumerConfig == nil {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func overrideString(key string, dst *string, logger *slog.Logger) {
	if val := os.Getenv(key); val != "" {
		logger.Debug("Overriding config value", "key", key, "source", "env")
		*dst = val
	}
}

func overrideBool(key string, dst *bool, logger *slog.Logger) {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			logger.Warn("Ignoring invalid boolean", "key", key, "value", val)
			return
		}
		*dst = b
	}
}

func overridePositiveInt(key string, dst *int, logger *slog.Logger) {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			logger.Warn("Ignoring invalid positive integer", "key", key, "value", val)
			return
		}
		logger.Debug("Overriding config value", "key", key, "source", "env")
		*dst = n
	}
}
