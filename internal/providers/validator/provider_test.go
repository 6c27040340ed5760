package validator

import (
	"testing"

	"readerhub/pkg/logger"
	"readerhub/pkg/model"
	"readerhub/pkg/validation"
)

func validProvider() *model.Provider {
	return &model.Provider{
		DisplayName:     "Ada Reader",
		Email:           "ada@example.com",
		TimeZone:        "America/New_York",
		HourlyRateCents: 5000,
		CalendarFeeds:   []string{"https://calendar.example.com/ada.ics"},
	}
}

func TestValidate(t *testing.T) {
	v := NewProviderValidator(logger.Discard(), 2)

	tests := []struct {
		name      string
		mutate    func(p *model.Provider)
		wantField string
	}{
		{name: "valid", mutate: func(*model.Provider) {}},
		{name: "missing name", mutate: func(p *model.Provider) { p.DisplayName = "" }, wantField: "display_name"},
		{name: "bad email", mutate: func(p *model.Provider) { p.Email = "nope" }, wantField: "email"},
		{name: "bad zone", mutate: func(p *model.Provider) { p.TimeZone = "Mars/Base" }, wantField: "time_zone"},
		{name: "negative rate", mutate: func(p *model.Provider) { p.HourlyRateCents = -1 }, wantField: "hourly_rate_cents"},
		{
			name:      "ftp feed",
			mutate:    func(p *model.Provider) { p.CalendarFeeds = []string{"ftp://files.example.com/cal.ics"} },
			wantField: "calendar_feeds[0]",
		},
		{
			name: "too many feeds",
			mutate: func(p *model.Provider) {
				p.CalendarFeeds = []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}
			},
			wantField: "calendar_feeds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProvider()
			tt.mutate(p)
			err := v.Validate(p)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			errs, ok := err.(validation.ValidationErrors)
			if !ok {
				t.Fatalf("expected ValidationErrors, got %T (%v)", err, err)
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error on %s, got %v", tt.wantField, errs)
			}
		})
	}
}
