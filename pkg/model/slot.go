package model

import (
	"time"

	"readerhub/pkg/interval"
)

// Slot is one bookable unit of a provider's calendar. Locked is true exactly
// when BookingID references the booking that holds it.
type Slot struct {
	ID         string    `json:"id" bson:"_id"`
	ProviderID string    `json:"provider_id" bson:"provider_id"`
	StartTime  time.Time `json:"start_time" bson:"start_time"`
	EndTime    time.Time `json:"end_time" bson:"end_time"`
	Locked     bool      `json:"locked" bson:"locked"`
	BookingID  string    `json:"booking_id,omitempty" bson:"booking_id,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

func (s *Slot) Interval() interval.Interval {
	return interval.Interval{Start: s.StartTime, End: s.EndTime}
}

// SlotTemplate describes a provider's recurring weekly availability. Times
// of day are wall clock values in the provider's time zone.
type SlotTemplate struct {
	WorkingDays []string `json:"working_days" validate:"required,min=1,max=7,dive,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	StartOfDay  string   `json:"start_of_day" validate:"required,hhmm"`
	EndOfDay    string   `json:"end_of_day" validate:"required,hhmm"`
	SlotMinutes int      `json:"slot_minutes" validate:"required,min=5,max=480"`
	From        string   `json:"from" validate:"required,datetime=2006-01-02"`
	Days        int      `json:"days" validate:"required,min=1,max=90"`
	Exceptions  []string `json:"exceptions,omitempty" validate:"omitempty,dive,datetime=2006-01-02"`
}

type GenerateSlotsResult struct {
	ProviderID string `json:"provider_id"`
	Requested  int    `json:"requested"`
	Created    int    `json:"created"`
	Skipped    int    `json:"skipped"`
}

// Availability is the bookable part of one provider day. Date is in the
// provider's time zone; slot times are UTC.
type Availability struct {
	ProviderID string  `json:"provider_id"`
	Date       string  `json:"date"`
	TimeZone   string  `json:"time_zone"`
	Slots      []*Slot `json:"slots"`
}
