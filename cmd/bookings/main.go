package main

import (
	"context"

	availabilityhandler "readerhub/internal/availability/handler"
	availabilityservice "readerhub/internal/availability/service"
	"readerhub/internal/bookings/events"
	bookinghandler "readerhub/internal/bookings/handler"
	bookingrepo "readerhub/internal/bookings/repository"
	bookingservice "readerhub/internal/bookings/service"
	bookingvalidator "readerhub/internal/bookings/validator"
	"readerhub/internal/calendars"
	"readerhub/internal/payments"
	providerhandler "readerhub/internal/providers/handler"
	providerrepo "readerhub/internal/providers/repository"
	providerservice "readerhub/internal/providers/service"
	providervalidator "readerhub/internal/providers/validator"
	slothandler "readerhub/internal/slots/handler"
	slotrepo "readerhub/internal/slots/repository"
	slotservice "readerhub/internal/slots/service"
	slotvalidator "readerhub/internal/slots/validator"
	"readerhub/internal/sweeper"
	"readerhub/pkg/app"
	"readerhub/pkg/client"
	"readerhub/pkg/config"
	"readerhub/pkg/contracts"
	"readerhub/pkg/kafka"
	kafkaconfig "readerhub/pkg/kafka/config"
	kafkamiddleware "readerhub/pkg/kafka/middleware"
	"readerhub/pkg/otelx"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting Bookings service")
	serverApp := app.NewApplication(cfg)

	shutdownTracing, err := otelx.Setup(context.Background(), otelx.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  ServiceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		cfg.Log.Fatal("Failed to set up tracing", "error", err)
	}
	serverApp.OnShutdown(shutdownTracing)

	handlers := initServices(cfg, serverApp)
	serverApp.ExemptContentType(payments.WebhookPath)
	serverApp.SetApp(handlers)
	serverApp.Run()
}

func initServices(cfg *config.Config, serverApp *app.Application) contracts.Handlers {
	providerRepo := providerrepo.NewMongoProviderRepository(cfg)
	slotRepo := slotrepo.NewMongoSlotRepository(cfg)
	bookingRepo := bookingrepo.NewMongoBookingRepository(cfg)

	providerService := providerservice.NewProviderService(
		providerRepo,
		providervalidator.NewProviderValidator(cfg.Log, cfg.MaxFeedsPerProvider),
		cfg,
	)
	slotService := slotservice.NewSlotService(
		slotRepo,
		providerRepo,
		slotvalidator.NewTemplateValidator(cfg.Log),
		cfg,
	)

	var opts []bookingservice.Option
	if cfg.StripeSecretKey != "" {
		opts = append(opts, bookingservice.WithPayments(payments.NewStripeGateway(cfg)))
		cfg.Log.Info("Stripe payments enabled")
	} else {
		cfg.Log.Warn("Stripe secret key not configured, bookings are created without a payment intent")
	}

	var kafkaCfg *kafkaconfig.Config
	if cfg.KafkaEnabled {
		var err error
		kafkaCfg, err = kafkaconfig.Load()
		if err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		producer, err := kafka.NewProducer(kafkaCfg, cfg.BookingEventsTopic, cfg.KafkaDLQTopic, cfg.Log)
		if err != nil {
			cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
		}
		if kafkaCfg.EnableMiddleware {
			producer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
			producer.Use(kafkamiddleware.MetricsProducerMiddleware())
		}
		serverApp.OnShutdown(func(context.Context) error { return producer.Close() })
		opts = append(opts, bookingservice.WithEvents(events.NewKafkaPublisher(producer)))
		cfg.Log.Info("Booking events enabled", "topic", cfg.BookingEventsTopic)
	}

	bookingService := bookingservice.NewBookingService(
		bookingRepo,
		slotRepo,
		providerRepo,
		bookingvalidator.NewBookingValidator(cfg.Log),
		cfg,
		opts...,
	)

	var resolverOpts []calendars.Option
	if cfg.Client.Redis != nil {
		resolverOpts = append(resolverOpts, calendars.WithCache(calendars.NewRedisCache(cfg.Client.Redis, cfg.FeedCacheTTL, cfg.Log)))
	}
	resolver := calendars.NewResolver(client.NewHttpClient("", cfg.FeedFetchTimeout), cfg, resolverOpts...)
	availabilityService := availabilityservice.NewAvailabilityService(slotRepo, providerRepo, resolver, cfg)

	processor := payments.NewProcessor(bookingService, cfg.Log)
	if kafkaCfg != nil {
		startOutcomeConsumer(cfg, kafkaCfg, processor, serverApp)
	}

	sweep := sweeper.New(bookingRepo, bookingService, cfg)
	if cfg.SweepEnabled {
		scheduleSweeper(cfg, sweep, serverApp)
	}

	cfg.Log.Info("Services initialized", "database", cfg.MongoDatabaseName)
	return contracts.Handlers{
		providerhandler.NewProviderHandler(providerService, cfg.Log),
		slothandler.NewSlotHandler(slotService, cfg.Log),
		availabilityhandler.NewAvailabilityHandler(availabilityService, cfg.Log),
		bookinghandler.NewBookingHandler(bookingService, cfg.Log),
		payments.NewWebhookHandler(processor, cfg),
		sweeper.NewHandler(sweep, cfg.Log),
	}
}

func startOutcomeConsumer(cfg *config.Config, kafkaCfg *kafkaconfig.Config, processor *payments.Processor, serverApp *app.Application) {
	consumer, err := kafka.NewConsumer(
		kafkaCfg,
		cfg.PaymentOutcomesTopic,
		cfg.KafkaConsumerGroup,
		cfg.KafkaDLQTopic,
		payments.OutcomeHandler(processor),
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create payment outcome consumer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(kafkamiddleware.MetricsConsumerMiddleware())
	}
	serverApp.Go(consumer.Start)
	serverApp.OnShutdown(func(context.Context) error { return consumer.Close() })
	cfg.Log.Info("Payment outcome consumer enabled", "topic", cfg.PaymentOutcomesTopic)
}

func scheduleSweeper(cfg *config.Config, sweep *sweeper.Sweeper, serverApp *app.Application) {
	serverApp.Go(func(ctx context.Context) error {
		runner, err := sweep.Schedule(ctx)
		if err != nil {
			return err
		}
		runner.Start()
		<-ctx.Done()
		<-runner.Stop().Done()
		return nil
	})
}
