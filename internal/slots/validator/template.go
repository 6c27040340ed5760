package validator

import (
	"readerhub/pkg/logger"
	"readerhub/pkg/model"
	"readerhub/pkg/validation"

	"github.com/go-playground/validator/v10"
)

var templateMessages = validation.Messages{
	"after_start": "%s must be after start_of_day",
	"fits_day":    "%s must fit between start_of_day and end_of_day",
}

type TemplateValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewTemplateValidator(log *logger.Logger) *TemplateValidator {
	v, err := validation.New()
	if err != nil {
		log.Fatal("Failed to initialize slot template validator", "error", err)
	}
	v.RegisterStructValidation(validateDayFrame, model.SlotTemplate{})

	log.Info("Slot template validator initialized successfully")

	return &TemplateValidator{
		validate: v,
		logger:   log,
	}
}

// validateDayFrame requires end_of_day after start_of_day with room for at
// least one slot.
func validateDayFrame(sl validator.StructLevel) {
	tmpl := sl.Current().Interface().(model.SlotTemplate)

	start, err := validation.ParseHHMM(tmpl.StartOfDay)
	if err != nil {
		return
	}
	end, err := validation.ParseHHMM(tmpl.EndOfDay)
	if err != nil {
		return
	}
	if end <= start {
		sl.ReportError(tmpl.EndOfDay, "end_of_day", "EndOfDay", "after_start", "")
		return
	}
	if tmpl.SlotMinutes > 0 && int((end-start).Minutes()) < tmpl.SlotMinutes {
		sl.ReportError(tmpl.SlotMinutes, "slot_minutes", "SlotMinutes", "fits_day", "")
	}
}

func (v *TemplateValidator) Validate(tmpl *model.SlotTemplate) error {
	return validation.Struct(v.validate, tmpl, templateMessages)
}
