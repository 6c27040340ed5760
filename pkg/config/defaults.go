package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017/?replicaSet=rs0"
	DefaultMongoDatabaseName = "readerhub"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisTimeout = 2 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultJWTIssuer = "readerhub"

	DefaultStripeWebhookTolerance = 5 * time.Minute
	DefaultCurrency               = "usd"
	DefaultPlatformFeeBps         = 1500

	DefaultBookingEventsTopic   = "bookings.lifecycle"
	DefaultPaymentOutcomesTopic = "payments.outcomes"
	DefaultKafkaDLQTopic        = "dlq-bookings"
	DefaultKafkaConsumerGroup   = "bookings-payments"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultBookingGraceWindow = 15 * time.Minute
	DefaultSweepSchedule      = "@every 1m"
	DefaultSweepBatchSize     = 100

	DefaultFeedFetchTimeout    = 5 * time.Second
	DefaultFeedCacheTTL        = 5 * time.Minute
	DefaultMaxFeedsPerProvider = 10

	DefaultOTelEndpoint    = "localhost:4317"
	DefaultOTelSampleRatio = 1.0
)
