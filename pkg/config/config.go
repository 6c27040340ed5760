package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"readerhub/pkg/client"
	"readerhub/pkg/logger"

	"github.com/robfig/cron/v3"
)

var (
	mongoURIRegex   = regexp.MustCompile(`^mongodb(\+srv)?://`)
	currencyRegex   = regexp.MustCompile(`^[a-z]{3}$`)
	credentialRegex = regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	Port string

	JWTSecret string
	JWTIssuer string

	// FeedSealingKey is a base64 AES-256 key. When set, calendar feed URLs
	// are encrypted at rest.
	FeedSealingKey string

	StripeSecretKey        string
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
	DefaultCurrency        string
	PlatformFeeBps         int

	KafkaEnabled         bool
	BookingEventsTopic   string
	PaymentOutcomesTopic string
	KafkaDLQTopic        string
	KafkaConsumerGroup   string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// BookingGraceWindow is how long a pending booking may hold its slots
	// before the sweeper reclaims them.
	BookingGraceWindow time.Duration
	SweepEnabled       bool
	SweepSchedule      string
	SweepBatchSize     int

	FeedFetchTimeout    time.Duration
	FeedCacheTTL        time.Duration
	MaxFeedsPerProvider int

	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := load(serviceName)

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func load(serviceName string) *Config {
	return &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, ""),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, 0),
		RedisTimeout:  getEnvDuration(EnvRedisTimeout, DefaultRedisTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		JWTSecret: getEnvStr(EnvJWTSecret, ""),
		JWTIssuer: getEnvStr(EnvJWTIssuer, DefaultJWTIssuer),

		FeedSealingKey: getEnvStr(EnvFeedSealingKey, ""),

		StripeSecretKey:        getEnvStr(EnvStripeSecretKey, ""),
		StripeWebhookSecret:    getEnvStr(EnvStripeWebhookSecret, ""),
		StripeWebhookTolerance: getEnvDuration(EnvStripeWebhookTolerance, DefaultStripeWebhookTolerance),
		DefaultCurrency:        strings.ToLower(getEnvStr(EnvDefaultCurrency, DefaultCurrency)),
		PlatformFeeBps:         getEnvNum(EnvPlatformFeeBps, DefaultPlatformFeeBps),

		KafkaEnabled:         getEnvBool(EnvKafkaEnabled, false),
		BookingEventsTopic:   getEnvStr(EnvBookingEventsTopic, DefaultBookingEventsTopic),
		PaymentOutcomesTopic: getEnvStr(EnvPaymentOutcomesTopic, DefaultPaymentOutcomesTopic),
		KafkaDLQTopic:        getEnvStr(EnvKafkaDLQTopic, DefaultKafkaDLQTopic),
		KafkaConsumerGroup:   getEnvStr(EnvKafkaConsumerGroup, DefaultKafkaConsumerGroup),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		BookingGraceWindow: getEnvDuration(EnvBookingGraceWindow, DefaultBookingGraceWindow),
		SweepEnabled:       getEnvBool(EnvSweepEnabled, true),
		SweepSchedule:      getEnvStr(EnvSweepSchedule, DefaultSweepSchedule),
		SweepBatchSize:     getEnvNum(EnvSweepBatchSize, DefaultSweepBatchSize),

		FeedFetchTimeout:    getEnvDuration(EnvFeedFetchTimeout, DefaultFeedFetchTimeout),
		FeedCacheTTL:        getEnvDuration(EnvFeedCacheTTL, DefaultFeedCacheTTL),
		MaxFeedsPerProvider: getEnvNum(EnvMaxFeedsPerProvider, DefaultMaxFeedsPerProvider),

		OTelEnabled:     getEnvBool(EnvOTelEnabled, false),
		OTelEndpoint:    getEnvStr(EnvOTelEndpoint, DefaultOTelEndpoint),
		OTelSampleRatio: getEnvFloat(EnvOTelSampleRatio, DefaultOTelSampleRatio),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if !mongoURIRegex.MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}

	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		errors = append(errors, "JWTSecret must be at least 32 characters when set")
	}
	if cfg.FeedSealingKey != "" {
		if key, err := base64.StdEncoding.DecodeString(cfg.FeedSealingKey); err != nil || len(key) != 32 {
			errors = append(errors, "FeedSealingKey must be a base64 encoded 32 byte key when set")
		}
	}
	if !currencyRegex.MatchString(cfg.DefaultCurrency) {
		errors = append(errors, fmt.Sprintf("DefaultCurrency must be a lowercase ISO 4217 code, got: %s", cfg.DefaultCurrency))
	}
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps > 10000 {
		errors = append(errors, fmt.Sprintf("PlatformFeeBps must be between 0 and 10000, got: %d", cfg.PlatformFeeBps))
	}

	if cfg.BookingGraceWindow <= 0 {
		errors = append(errors, fmt.Sprintf("BookingGraceWindow must be positive, got: %s", cfg.BookingGraceWindow))
	}
	if cfg.SweepEnabled {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("SweepSchedule is not a valid cron expression (%s): %v", cfg.SweepSchedule, err))
		}
	}
	if cfg.SweepBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("SweepBatchSize must be positive, got: %d", cfg.SweepBatchSize))
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"MongoConnTimeout", cfg.MongoConnTimeout},
		{"RedisTimeout", cfg.RedisTimeout},
		{"StripeWebhookTolerance", cfg.StripeWebhookTolerance},
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
		{"FeedFetchTimeout", cfg.FeedFetchTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", p.name, p.value))
		}
	}
	if cfg.FeedCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("FeedCacheTTL cannot be negative, got: %s", cfg.FeedCacheTTL))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.MaxFeedsPerProvider < 0 {
		errors = append(errors, fmt.Sprintf("MaxFeedsPerProvider cannot be negative, got: %d", cfg.MaxFeedsPerProvider))
	}

	if cfg.OTelEnabled {
		if cfg.OTelEndpoint == "" {
			errors = append(errors, "OTelEndpoint cannot be empty when tracing is enabled")
		}
		if cfg.OTelSampleRatio < 0 || cfg.OTelSampleRatio > 1 {
			errors = append(errors, fmt.Sprintf("OTelSampleRatio must be between 0 and 1, got: %v", cfg.OTelSampleRatio))
		}
	}

	if cfg.KafkaEnabled {
		if cfg.BookingEventsTopic == "" {
			errors = append(errors, "BookingEventsTopic cannot be empty when Kafka is enabled")
		}
		if cfg.PaymentOutcomesTopic == "" || cfg.KafkaConsumerGroup == "" {
			errors = append(errors, "PaymentOutcomesTopic and KafkaConsumerGroup are required when Kafka is enabled")
		}
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"port", cfg.Port,
		"jwt_secret_set", cfg.JWTSecret != "",
		"jwt_issuer", cfg.JWTIssuer,
		"feed_sealing_enabled", cfg.FeedSealingKey != "",
		"stripe_key_set", cfg.StripeSecretKey != "",
		"stripe_webhook_secret_set", cfg.StripeWebhookSecret != "",
		"default_currency", cfg.DefaultCurrency,
		"platform_fee_bps", cfg.PlatformFeeBps,
		"kafka_enabled", cfg.KafkaEnabled,
		"booking_events_topic", cfg.BookingEventsTopic,
		"payment_outcomes_topic", cfg.PaymentOutcomesTopic,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"booking_grace_window", cfg.BookingGraceWindow,
		"sweep_enabled", cfg.SweepEnabled,
		"sweep_schedule", cfg.SweepSchedule,
		"sweep_batch_size", cfg.SweepBatchSize,
		"feed_fetch_timeout", cfg.FeedFetchTimeout,
		"feed_cache_ttl", cfg.FeedCacheTTL,
		"max_feeds_per_provider", cfg.MaxFeedsPerProvider,
		"otel_enabled", cfg.OTelEnabled,
		"otel_endpoint", cfg.OTelEndpoint,
	)
}

func (cfg *Config) GracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	cfg.Client.GracefulShutdown(ctx, cfg.Log)
}

func redactMongoURI(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
