package payments

import (
	"context"
	"strings"

	"readerhub/pkg/kafka"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// OutcomeEvent is the payload on the payment outcomes topic, used by
// payment providers that report through Kafka instead of a webhook.
type OutcomeEvent struct {
	BookingID  string `json:"booking_id"`
	Outcome    string `json:"outcome"`
	PaymentRef string `json:"payment_ref,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

// OutcomeHandler adapts the processor to a Kafka consumer. Malformed
// messages are permanent failures and go straight to the dead letter topic.
func OutcomeHandler(processor *Processor) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt OutcomeEvent
		if err := msg.DecodeValue(&evt); err != nil {
			return err
		}

		bookingID := strings.TrimSpace(evt.BookingID)
		if bookingID == "" {
			return kafka.NewPermanentError("payment outcome without booking_id", nil)
		}

		var err error
		switch strings.ToLower(strings.TrimSpace(evt.Outcome)) {
		case OutcomeSucceeded:
			err = processor.Succeeded(ctx, SourceKafka, bookingID, evt.PaymentRef)
		case OutcomeFailed:
			err = processor.Failed(ctx, SourceKafka, bookingID, evt.PaymentRef)
		default:
			return kafka.NewPermanentError("unknown payment outcome", nil).WithDetail("outcome", evt.Outcome)
		}

		if err != nil {
			if retryable(err) {
				return kafka.NewTransientError("apply payment outcome", err)
			}
			return kafka.NewBusinessError("apply payment outcome", err)
		}
		return nil
	}
}
