package model

import (
	"time"

	"readerhub/pkg/interval"
)

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCanceled  = "canceled"
	BookingExpired   = "expired"
)

// IsTerminalStatus reports whether status is one of the released states.
// Terminal records only live until the reclaim that produced them commits.
func IsTerminalStatus(status string) bool {
	return status == BookingCanceled || status == BookingExpired
}

type Booking struct {
	ID               string    `json:"id" bson:"_id"`
	ProviderID       string    `json:"provider_id" bson:"provider_id"`
	ClientID         string    `json:"client_id" bson:"client_id"`
	StartTime        time.Time `json:"start_time" bson:"start_time"`
	EndTime          time.Time `json:"end_time" bson:"end_time"`
	Status           string    `json:"status" bson:"status"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
	SlotIDs          []string  `json:"slot_ids" bson:"slot_ids"`
	TotalAmountCents int64     `json:"total_amount_cents" bson:"total_amount_cents"`
	PlatformFeeCents int64     `json:"platform_fee_cents" bson:"platform_fee_cents"`
	Currency         string    `json:"currency" bson:"currency"`
	MeetingLink      string    `json:"meeting_link,omitempty" bson:"meeting_link,omitempty"`
	PaymentRef       string    `json:"payment_ref,omitempty" bson:"payment_ref,omitempty"`
	ClientSecret     string    `json:"client_secret,omitempty" bson:"-"`
}

func (b *Booking) Interval() interval.Interval {
	return interval.Interval{Start: b.StartTime, End: b.EndTime}
}

type CreateBookingRequest struct {
	ProviderID  string    `json:"provider_id" validate:"required,mongodb"`
	ClientID    string    `json:"client_id" validate:"required,min=1,max=128"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
	Currency    string    `json:"currency,omitempty" validate:"omitempty,len=3,lowercase"`
	MeetingLink string    `json:"meeting_link,omitempty" validate:"omitempty,url,max=500"`
}

// CancelResult is returned by cancel and expire. A zero result means there
// was no pending hold left to release.
type CancelResult struct {
	BookingID     string `json:"booking_id"`
	Released      bool   `json:"released"`
	ReleasedSlots int64  `json:"released_slot_count"`
	Status        string `json:"status,omitempty"`
}

// ReclaimCursor is the position of the last booking a sweep has visited.
// The zero value starts at the oldest booking.
type ReclaimCursor struct {
	CreatedAt time.Time
	ID        string
}

// After reports whether b sorts after the cursor in (created_at, id) order.
func (c ReclaimCursor) After(b *Booking) bool {
	if c.ID == "" {
		return true
	}
	if !b.CreatedAt.Equal(c.CreatedAt) {
		return b.CreatedAt.After(c.CreatedAt)
	}
	return b.ID > c.ID
}

type SweepResult struct {
	Cutoff        time.Time `json:"cutoff"`
	Scanned       int       `json:"scanned"`
	Expired       int       `json:"expired"`
	ReleasedSlots int64     `json:"released_slot_count"`
	Failed        int       `json:"failed"`
}

// PaymentIntent is what the payment collaborator hands back for a booking:
// a reference to correlate its callbacks and the secret the client needs to
// complete payment.
type PaymentIntent struct {
	Ref          string
	ClientSecret string
}
