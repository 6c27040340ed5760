package service

import (
	"context"
	"errors"
	"strings"
	"time"

	providerserrors "readerhub/internal/providers/errors"
	"readerhub/internal/slots/repository"
	"readerhub/internal/slots/validator"
	"readerhub/pkg/config"
	apperrors "readerhub/pkg/errors"
	"readerhub/pkg/identity"
	"readerhub/pkg/interval"
	"readerhub/pkg/model"
	"readerhub/pkg/validation"
)

// ProviderFinder is the part of the provider directory slot generation needs.
type ProviderFinder interface {
	FindByID(ctx context.Context, id string) (*model.Provider, error)
}

type SlotService interface {
	Generate(ctx context.Context, providerID string, tmpl *model.SlotTemplate) (*model.GenerateSlotsResult, error)
}

type slotService struct {
	repo      repository.SlotRepository
	providers ProviderFinder
	validator *validator.TemplateValidator
	cfg       *config.Config
	now       func() time.Time
}

func NewSlotService(
	repo repository.SlotRepository,
	providers ProviderFinder,
	validator *validator.TemplateValidator,
	cfg *config.Config,
) SlotService {
	return &slotService{
		repo:      repo,
		providers: providers,
		validator: validator,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Generate materializes the template into slots for the requested range of
// days. Slots in the past, on exception dates, or overlapping an existing
// slot are skipped, so re-running a template is harmless.
func (s *slotService) Generate(ctx context.Context, providerID string, tmpl *model.SlotTemplate) (*model.GenerateSlotsResult, error) {
	if _, err := identity.RequireAny(ctx, identity.Provider(providerID)); err != nil {
		return nil, err
	}

	if err := s.validator.Validate(tmpl); err != nil {
		s.cfg.Log.Warn("Slot template validation failed", "provider_id", providerID, "error", err)
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, apperrors.Validation("Invalid slot template", verrs.Details())
		}
		return nil, apperrors.Validation("Invalid slot template", map[string]any{"error": err.Error()})
	}

	provider, err := s.providers.FindByID(ctx, providerID)
	if err != nil {
		switch {
		case errors.Is(err, providerserrors.ErrNotFound):
			return nil, apperrors.NotFoundWithID("Provider", providerID)
		case errors.Is(err, providerserrors.ErrInvalidID):
			return nil, apperrors.InvalidInput("Invalid provider ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve provider", err)
	}
	loc, err := provider.Location()
	if err != nil {
		return nil, apperrors.Validation("Provider time zone is invalid", map[string]any{"time_zone": provider.TimeZone})
	}

	candidates, err := Expand(tmpl, loc, s.now())
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	result := &model.GenerateSlotsResult{ProviderID: providerID, Requested: len(candidates)}
	if len(candidates) == 0 {
		return result, nil
	}

	span := interval.Interval{Start: candidates[0].Start, End: candidates[len(candidates)-1].End}
	existing, err := s.repo.FindOverlapping(ctx, providerID, span)
	if err != nil {
		s.cfg.Log.Error("Failed to load existing slots", "provider_id", providerID, "error", err)
		return nil, apperrors.Internal("Failed to generate slots", err)
	}
	taken := make([]interval.Interval, 0, len(existing))
	for _, e := range existing {
		taken = append(taken, e.Interval())
	}

	slots := make([]*model.Slot, 0, len(candidates))
	for _, c := range candidates {
		if interval.OverlapsAny(c, taken) {
			continue
		}
		slots = append(slots, &model.Slot{
			ProviderID: providerID,
			StartTime:  c.Start.UTC(),
			EndTime:    c.End.UTC(),
		})
	}

	created, err := s.repo.InsertMany(ctx, slots)
	if err != nil {
		s.cfg.Log.Error("Failed to insert slots", "provider_id", providerID, "error", err)
		return nil, apperrors.Internal("Failed to generate slots", err)
	}
	result.Created = created
	result.Skipped = result.Requested - created

	s.cfg.Log.Info("Slots generated",
		"provider_id", providerID,
		"requested", result.Requested,
		"created", result.Created,
		"skipped", result.Skipped,
	)
	return result, nil
}

// Expand turns a template into concrete intervals in loc, skipping days not
// listed as working days, exception dates and slots starting before now.
// Wall clock times are resolved per day so DST shifts keep local hours.
func Expand(tmpl *model.SlotTemplate, loc *time.Location, now time.Time) ([]interval.Interval, error) {
	from, err := interval.ParseDate(tmpl.From, loc)
	if err != nil {
		return nil, err
	}
	startOffset, err := validation.ParseHHMM(tmpl.StartOfDay)
	if err != nil {
		return nil, err
	}
	endOffset, err := validation.ParseHHMM(tmpl.EndOfDay)
	if err != nil {
		return nil, err
	}
	length := time.Duration(tmpl.SlotMinutes) * time.Minute

	working := make(map[time.Weekday]bool, len(tmpl.WorkingDays))
	for _, d := range tmpl.WorkingDays {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			if strings.EqualFold(wd.String(), strings.TrimSpace(d)) {
				working[wd] = true
			}
		}
	}
	exceptions := make(map[string]bool, len(tmpl.Exceptions))
	for _, e := range tmpl.Exceptions {
		exceptions[e] = true
	}

	var out []interval.Interval
	for i := 0; i < tmpl.Days; i++ {
		day := from.AddDate(0, 0, i)
		if !working[day.Weekday()] || exceptions[day.Format(interval.DateLayout)] {
			continue
		}

		dayStart := wallClock(day, startOffset, loc)
		dayEnd := wallClock(day, endOffset, loc)
		for t := dayStart; !t.Add(length).After(dayEnd); t = t.Add(length) {
			if t.Before(now) {
				continue
			}
			out = append(out, interval.Interval{Start: t, End: t.Add(length)})
		}
	}
	return out, nil
}

func wallClock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
}
