package service

import (
	"time"

	"readerhub/pkg/model"
)

const (
	CriterionEmailVerified   = "email_verified"
	CriterionProfileComplete = "profile_complete"
	CriterionPayoutsEnabled  = "payouts_enabled"
	CriterionAgreedToTerms   = "agreed_to_terms"
	CriterionNotSuspended    = "not_suspended"
	CriterionValidTimeZone   = "valid_time_zone"
	CriterionRateSet         = "rate_set"
)

// Readiness decides whether a provider can take bookings. It is a pure
// function of the snapshot and lists every failed criterion in a fixed
// order.
func Readiness(p *model.Provider) model.ReadinessResult {
	result := model.ReadinessResult{ProviderID: p.ID, Failed: []string{}}

	check := func(ok bool, criterion string) {
		if !ok {
			result.Failed = append(result.Failed, criterion)
		}
	}

	check(p.EmailVerified, CriterionEmailVerified)
	check(p.ProfileComplete, CriterionProfileComplete)
	check(p.PayoutsEnabled, CriterionPayoutsEnabled)
	check(p.AgreedToTerms, CriterionAgreedToTerms)
	check(!p.Suspended, CriterionNotSuspended)
	check(validTimeZone(p.TimeZone), CriterionValidTimeZone)
	check(p.HourlyRateCents > 0, CriterionRateSet)

	result.Ready = len(result.Failed) == 0
	return result
}

func validTimeZone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
