package events

import (
	"context"
	"time"

	"readerhub/pkg/kafka"
	"readerhub/pkg/model"
)

const (
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCanceled  = "booking.canceled"
	BookingExpired   = "booking.expired"

	SchemaVersion = "1"
	Source        = "bookings"
)

// BookingEvent is the payload of every lifecycle event. Status is the status
// the booking reached with this transition.
type BookingEvent struct {
	BookingID        string    `json:"booking_id"`
	ProviderID       string    `json:"provider_id"`
	ClientID         string    `json:"client_id"`
	Status           string    `json:"status"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	Currency         string    `json:"currency"`
	ReleasedSlots    int64     `json:"released_slot_count,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// EventType maps a booking status to the event announcing it.
func EventType(status string) string {
	switch status {
	case model.BookingConfirmed:
		return BookingConfirmed
	case model.BookingCanceled:
		return BookingCanceled
	case model.BookingExpired:
		return BookingExpired
	default:
		return BookingCreated
	}
}

type MessagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type KafkaPublisher struct {
	producer MessagePublisher
	now      func() time.Time
}

func NewKafkaPublisher(producer MessagePublisher) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, now: time.Now}
}

// Publish emits the event for b having reached status. Events are keyed by
// booking id so one booking's history stays ordered within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, status string, b *model.Booking, releasedSlots int64) error {
	evt := BookingEvent{
		BookingID:        b.ID,
		ProviderID:       b.ProviderID,
		ClientID:         b.ClientID,
		Status:           status,
		StartTime:        b.StartTime,
		EndTime:          b.EndTime,
		TotalAmountCents: b.TotalAmountCents,
		Currency:         b.Currency,
		ReleasedSlots:    releasedSlots,
		OccurredAt:       p.now().UTC(),
	}

	msg, err := kafka.NewMessage().
		WithKey(b.ID).
		WithEventType(EventType(status)).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		WithCorrelationID(correlationID(ctx)).
		WithValue(evt).
		Build()
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

type correlationKey struct{}

// WithCorrelationID tags events published under ctx, typically with the
// HTTP request id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
