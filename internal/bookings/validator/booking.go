package validator

import (
	"time"

	"readerhub/pkg/logger"
	"readerhub/pkg/model"
	"readerhub/pkg/validation"

	"github.com/go-playground/validator/v10"
)

// MaxBookingDuration caps a single booking.
const MaxBookingDuration = 12 * time.Hour

var bookingMessages = validation.Messages{
	"max_duration": "%s must be at most 12h after start_time",
	"whole_minute": "%s must be on a whole minute",
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v, err := validation.New()
	if err != nil {
		log.Fatal("Failed to initialize booking validator", "error", err)
	}
	v.RegisterStructValidation(validateTimes, model.CreateBookingRequest{})

	log.Info("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

// validateTimes leaves ordering of start and end to the interval check and
// only looks at granularity and length.
func validateTimes(sl validator.StructLevel) {
	req := sl.Current().Interface().(model.CreateBookingRequest)
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return
	}

	if req.StartTime.Truncate(time.Minute) != req.StartTime {
		sl.ReportError(req.StartTime, "start_time", "StartTime", "whole_minute", "")
	}
	if req.EndTime.Truncate(time.Minute) != req.EndTime {
		sl.ReportError(req.EndTime, "end_time", "EndTime", "whole_minute", "")
	}
	if req.EndTime.Sub(req.StartTime) > MaxBookingDuration {
		sl.ReportError(req.EndTime, "end_time", "EndTime", "max_duration", "")
	}
}

func (v *BookingValidator) Validate(req *model.CreateBookingRequest) error {
	return validation.Struct(v.validate, req, bookingMessages)
}
