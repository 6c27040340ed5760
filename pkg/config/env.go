package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"
	EnvRedisTimeout  = "REDIS_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvJWTSecret = "JWT_SECRET"
	EnvJWTIssuer = "JWT_ISSUER"

	EnvFeedSealingKey = "FEED_SEALING_KEY"

	EnvStripeSecretKey        = "STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret    = "STRIPE_WEBHOOK_SECRET"
	EnvStripeWebhookTolerance = "STRIPE_WEBHOOK_TOLERANCE"
	EnvDefaultCurrency        = "DEFAULT_CURRENCY"
	EnvPlatformFeeBps         = "PLATFORM_FEE_BPS"

	EnvKafkaEnabled         = "KAFKA_ENABLED"
	EnvBookingEventsTopic   = "KAFKA_BOOKING_EVENTS_TOPIC"
	EnvPaymentOutcomesTopic = "KAFKA_PAYMENT_OUTCOMES_TOPIC"
	EnvKafkaDLQTopic        = "KAFKA_DLQ_TOPIC"
	EnvKafkaConsumerGroup   = "KAFKA_CONSUMER_GROUP"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvBookingGraceWindow = "BOOKING_GRACE_WINDOW"
	EnvSweepEnabled       = "SWEEP_ENABLED"
	EnvSweepSchedule      = "SWEEP_SCHEDULE"
	EnvSweepBatchSize     = "SWEEP_BATCH_SIZE"

	EnvFeedFetchTimeout    = "FEED_FETCH_TIMEOUT"
	EnvFeedCacheTTL        = "FEED_CACHE_TTL"
	EnvMaxFeedsPerProvider = "MAX_FEEDS_PER_PROVIDER"

	EnvOTelEnabled     = "OTEL_ENABLED"
	EnvOTelEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTelSampleRatio = "OTEL_SAMPLING_RATIO"
)
