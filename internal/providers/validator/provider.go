package validator

import (
	"fmt"
	"net/url"
	"strings"

	"readerhub/pkg/logger"
	"readerhub/pkg/model"
	"readerhub/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type ProviderValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
	maxFeeds int
}

func NewProviderValidator(log *logger.Logger, maxFeeds int) *ProviderValidator {
	v, err := validation.New()
	if err != nil {
		log.Fatal("Failed to initialize provider validator", "error", err)
	}

	log.Info("Provider validator initialized successfully")

	return &ProviderValidator{
		validate: v,
		logger:   log,
		maxFeeds: maxFeeds,
	}
}

func (v *ProviderValidator) Validate(p *model.Provider) error {
	if err := validation.Struct(v.validate, p); err != nil {
		return err
	}
	return v.validateFeeds(p.CalendarFeeds)
}

func (v *ProviderValidator) ValidateFeeds(upd *model.ProviderFeedsUpdate) error {
	if err := validation.Struct(v.validate, upd); err != nil {
		return err
	}
	return v.validateFeeds(upd.CalendarFeeds)
}

// validateFeeds only accepts http(s) and webcal feeds and enforces the
// configured per-provider cap.
func (v *ProviderValidator) validateFeeds(feeds []string) error {
	var errs validation.ValidationErrors

	if v.maxFeeds > 0 && len(feeds) > v.maxFeeds {
		errs = append(errs, validation.ValidationError{
			Field:   "calendar_feeds",
			Message: fmt.Sprintf("at most %d calendar feeds are allowed", v.maxFeeds),
		})
	}
	for i, feed := range feeds {
		u, err := url.Parse(strings.TrimSpace(feed))
		if err != nil || u.Host == "" {
			errs = append(errs, validation.ValidationError{
				Field:   fmt.Sprintf("calendar_feeds[%d]", i),
				Message: "must be an absolute URL",
			})
			continue
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "webcal":
		default:
			errs = append(errs, validation.ValidationError{
				Field:   fmt.Sprintf("calendar_feeds[%d]", i),
				Message: "scheme must be http, https or webcal",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
