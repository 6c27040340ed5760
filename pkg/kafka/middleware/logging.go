package kafkamiddleware

import (
	"context"
	"time"

	"readerhub/pkg/kafka"
	"readerhub/pkg/logger"
)

func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		l := logger.FromContext(ctx, log).With(
			"topic", msg.Topic,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"event_type", msg.GetEventType(),
		)

		err := next(ctx, msg)
		if err != nil {
			l.Error("failed to publish kafka message", "duration", time.Since(start), "error", err)
			return err
		}
		l.Debug("published kafka message", "duration", time.Since(start))
		return nil
	}
}

func LoggingConsumerMiddleware(log *logger.Logger) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		l := log.With(
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"event_id", msg.GetEventID(),
			"event_type", msg.GetEventType(),
			"correlation_id", msg.GetCorrelationID(),
		)

		err := next(logger.WithContext(ctx, l), msg)
		if err != nil {
			l.Warn("kafka message handler failed", "duration", time.Since(start), "error", err)
			return err
		}
		l.Info("processed kafka message", "duration", time.Since(start))
		return nil
	}
}
