package service

import (
	"context"
	"errors"
	"time"

	providerserrors "readerhub/internal/providers/errors"
	"readerhub/pkg/config"
	apperrors "readerhub/pkg/errors"
	"readerhub/pkg/interval"
	"readerhub/pkg/logger"
	"readerhub/pkg/model"
	"readerhub/pkg/otelx"
)

type SlotLister interface {
	ListOpen(ctx context.Context, providerID string, window interval.Interval) ([]*model.Slot, error)
}

type ProviderFinder interface {
	FindByID(ctx context.Context, id string) (*model.Provider, error)
}

type BusyResolver interface {
	BusyIntervals(ctx context.Context, feeds []string, loc *time.Location) []interval.Interval
}

type AvailabilityService interface {
	ListAvailable(ctx context.Context, providerID, date string) (*model.Availability, error)
}

type availabilityService struct {
	slots     SlotLister
	providers ProviderFinder
	busy      BusyResolver
	cfg       *config.Config
}

func NewAvailabilityService(slots SlotLister, providers ProviderFinder, busy BusyResolver, cfg *config.Config) AvailabilityService {
	return &availabilityService{
		slots:     slots,
		providers: providers,
		busy:      busy,
		cfg:       cfg,
	}
}

// ListAvailable returns the provider's open slots on date, a YYYY-MM-DD day
// in the provider's own time zone, minus every slot that overlaps a busy
// interval from the provider's calendar feeds. It only reads.
func (s *availabilityService) ListAvailable(ctx context.Context, providerID, date string) (availability *model.Availability, err error) {
	ctx, span := otelx.Start(ctx, "availability.ListAvailable")
	defer func() { otelx.End(span, err) }()

	if providerID == "" {
		return nil, apperrors.InvalidInput("Provider ID cannot be empty")
	}

	provider, err := s.providers.FindByID(ctx, providerID)
	if err != nil {
		switch {
		case errors.Is(err, providerserrors.ErrNotFound):
			return nil, apperrors.NotFoundWithID("Provider", providerID)
		case errors.Is(err, providerserrors.ErrInvalidID):
			return nil, apperrors.InvalidInput("Invalid provider ID format")
		}
		s.log(ctx).Error("Failed to retrieve provider", "provider_id", providerID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve provider", err)
	}

	loc, err := provider.Location()
	if err != nil {
		s.log(ctx).Warn("Provider has an invalid time zone, using UTC", "provider_id", providerID, "time_zone", provider.TimeZone)
		loc = time.UTC
	}

	day, err := interval.ParseDate(date, loc)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	window := interval.DayWindow(day, loc)

	open, err := s.slots.ListOpen(ctx, providerID, window)
	if err != nil {
		s.log(ctx).Error("Failed to list open slots", "provider_id", providerID, "window", window.String(), "error", err)
		return nil, apperrors.Internal("Failed to list open slots", err)
	}

	var busy []interval.Interval
	if len(open) > 0 && len(provider.CalendarFeeds) > 0 {
		busy = s.busy.BusyIntervals(ctx, provider.CalendarFeeds, loc)
	}

	available := make([]*model.Slot, 0, len(open))
	for _, slot := range open {
		if interval.OverlapsAny(slot.Interval(), busy) {
			continue
		}
		available = append(available, slot)
	}

	s.log(ctx).Debug("Availability computed",
		"provider_id", providerID,
		"date", date,
		"open", len(open),
		"busy", len(busy),
		"available", len(available),
	)

	return &model.Availability{
		ProviderID: providerID,
		Date:       day.Format(interval.DateLayout),
		TimeZone:   loc.String(),
		Slots:      available,
	}, nil
}

func (s *availabilityService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx, s.cfg.Log)
}
