package validator

import (
	"errors"
	"testing"
	"time"

	"readerhub/pkg/logger"
	"readerhub/pkg/model"
	"readerhub/pkg/validation"
)

func validRequest() *model.CreateBookingRequest {
	start := time.Date(2030, 3, 4, 15, 0, 0, 0, time.UTC)
	return &model.CreateBookingRequest{
		ProviderID: "65f1c0ffee0123456789abcd",
		ClientID:   "actor-42",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	}
}

func TestBookingValidator(t *testing.T) {
	v := NewBookingValidator(logger.Discard())

	tests := []struct {
		name      string
		mutate    func(r *model.CreateBookingRequest)
		wantField string
	}{
		{name: "valid", mutate: func(r *model.CreateBookingRequest) {}},
		{name: "missing provider", mutate: func(r *model.CreateBookingRequest) { r.ProviderID = "" }, wantField: "provider_id"},
		{name: "malformed provider", mutate: func(r *model.CreateBookingRequest) { r.ProviderID = "abc" }, wantField: "provider_id"},
		{name: "missing client", mutate: func(r *model.CreateBookingRequest) { r.ClientID = "" }, wantField: "client_id"},
		{name: "uppercase currency", mutate: func(r *model.CreateBookingRequest) { r.Currency = "USD" }, wantField: "currency"},
		{name: "bad meeting link", mutate: func(r *model.CreateBookingRequest) { r.MeetingLink = "not a url" }, wantField: "meeting_link"},
		{name: "seconds in start", mutate: func(r *model.CreateBookingRequest) { r.StartTime = r.StartTime.Add(30 * time.Second) }, wantField: "start_time"},
		{name: "too long", mutate: func(r *model.CreateBookingRequest) { r.EndTime = r.StartTime.Add(13 * time.Hour) }, wantField: "end_time"},
		{name: "reversed is left to the interval check", mutate: func(r *model.CreateBookingRequest) { r.EndTime = r.StartTime.Add(-time.Hour) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := v.Validate(req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var verrs validation.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.wantField, verrs)
			}
		})
	}
}
