package payments

import (
	"context"
	"errors"
	"net/http"

	apperrors "readerhub/pkg/errors"
	"readerhub/pkg/identity"
	"readerhub/pkg/logger"
	"readerhub/pkg/metrics"
	"readerhub/pkg/model"
)

const (
	SourceStripe = "stripe"
	SourceKafka  = "kafka"
)

type BookingTransitions interface {
	Confirm(ctx context.Context, id string) (*model.Booking, error)
	Cancel(ctx context.Context, id string) (*model.CancelResult, error)
}

// Processor applies a payment outcome to its booking: success confirms,
// failure cancels the hold. Both run as the system identity.
type Processor struct {
	bookings BookingTransitions
	log      *logger.Logger
}

func NewProcessor(bookings BookingTransitions, log *logger.Logger) *Processor {
	return &Processor{bookings: bookings, log: log}
}

// Succeeded confirms the booking. A booking that no longer exists or has
// been released cannot be confirmed; that is logged for reconciliation and
// not returned, because redelivery would not change it.
func (p *Processor) Succeeded(ctx context.Context, source, bookingID, paymentRef string) error {
	ctx = identity.WithIdentity(ctx, identity.System())

	_, err := p.bookings.Confirm(ctx, bookingID)
	switch {
	case err == nil:
		metrics.RecordPaymentEvent(source, "succeeded", "confirmed")
		return nil
	case apperrors.HasCode(err, apperrors.CodeNotFound), apperrors.HasCode(err, apperrors.CodeConflict),
		apperrors.HasCode(err, apperrors.CodeInvalidInput):
		metrics.RecordPaymentEvent(source, "succeeded", "orphaned")
		p.log.Error("Payment succeeded for a booking that is no longer held",
			"source", source,
			"booking_id", bookingID,
			"payment_ref", paymentRef,
			"error", err,
		)
		return nil
	default:
		metrics.RecordPaymentEvent(source, "succeeded", "error")
		return err
	}
}

// Failed releases the hold right away instead of waiting for the sweeper.
func (p *Processor) Failed(ctx context.Context, source, bookingID, paymentRef string) error {
	ctx = identity.WithIdentity(ctx, identity.System())

	result, err := p.bookings.Cancel(ctx, bookingID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeInvalidInput) {
			p.log.Warn("Ignoring payment failure with invalid booking id", "source", source, "booking_id", bookingID)
			return nil
		}
		metrics.RecordPaymentEvent(source, "failed", "error")
		return err
	}

	outcome := "noop"
	if result.Released {
		outcome = "released"
	}
	metrics.RecordPaymentEvent(source, "failed", outcome)
	p.log.Info("Payment failed, hold handled",
		"source", source,
		"booking_id", bookingID,
		"payment_ref", paymentRef,
		"released", result.Released,
		"status", result.Status,
	)
	return nil
}

// retryable reports whether err is worth redelivering.
func retryable(err error) bool {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return true
	}
	return appErr.HTTPStatus >= http.StatusInternalServerError
}
