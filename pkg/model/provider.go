package model

import (
	"time"
)

// Provider is the bookable side of the marketplace (a reader). Only the
// fields the booking engine needs are modelled here.
type Provider struct {
	ID              string    `json:"id" bson:"_id"`
	DisplayName     string    `json:"display_name" bson:"display_name" validate:"required,min=2,max=100"`
	Email           string    `json:"email" bson:"email" validate:"required,email"`
	TimeZone        string    `json:"time_zone" bson:"time_zone" validate:"required,timezone"`
	CalendarFeeds   []string  `json:"calendar_feeds,omitempty" bson:"calendar_feeds" validate:"omitempty,max=10,dive,url"`
	HourlyRateCents int64     `json:"hourly_rate_cents" bson:"hourly_rate_cents" validate:"min=0"`
	Currency        string    `json:"currency,omitempty" bson:"currency,omitempty" validate:"omitempty,len=3,lowercase"`
	EmailVerified   bool      `json:"email_verified" bson:"email_verified"`
	ProfileComplete bool      `json:"profile_complete" bson:"profile_complete"`
	PayoutsEnabled  bool      `json:"payouts_enabled" bson:"payouts_enabled"`
	AgreedToTerms   bool      `json:"agreed_to_terms" bson:"agreed_to_terms"`
	Suspended       bool      `json:"suspended" bson:"suspended"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}

func (p *Provider) Location() (*time.Location, error) {
	return time.LoadLocation(p.TimeZone)
}

type ProviderFeedsUpdate struct {
	CalendarFeeds []string `json:"calendar_feeds" validate:"max=10,dive,url"`
}

type ReadinessResult struct {
	ProviderID string   `json:"provider_id"`
	Ready      bool     `json:"ready"`
	Failed     []string `json:"failed_criteria"`
}
