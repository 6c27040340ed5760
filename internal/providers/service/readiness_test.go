package service

import (
	"testing"

	"readerhub/pkg/model"

	"github.com/stretchr/testify/assert"
)

func readyProvider() *model.Provider {
	return &model.Provider{
		ID:              "65f1c2a9e4b0a1b2c3d4e5f6",
		TimeZone:        "Europe/London",
		HourlyRateCents: 6000,
		EmailVerified:   true,
		ProfileComplete: true,
		PayoutsEnabled:  true,
		AgreedToTerms:   true,
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *model.Provider)
		failed []string
	}{
		{name: "fully onboarded", mutate: func(*model.Provider) {}, failed: []string{}},
		{
			name:   "suspended",
			mutate: func(p *model.Provider) { p.Suspended = true },
			failed: []string{CriterionNotSuspended},
		},
		{
			name: "several failures in fixed order",
			mutate: func(p *model.Provider) {
				p.HourlyRateCents = 0
				p.EmailVerified = false
				p.TimeZone = "Nowhere/Special"
			},
			failed: []string{CriterionEmailVerified, CriterionValidTimeZone, CriterionRateSet},
		},
		{
			name:   "empty time zone",
			mutate: func(p *model.Provider) { p.TimeZone = "" },
			failed: []string{CriterionValidTimeZone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := readyProvider()
			tt.mutate(p)

			got := Readiness(p)
			assert.Equal(t, tt.failed, got.Failed)
			assert.Equal(t, len(tt.failed) == 0, got.Ready)
			assert.Equal(t, p.ID, got.ProviderID)
		})
	}
}
