package service

import (
	"context"
	"errors"

	providerserrors "readerhub/internal/providers/errors"
	"readerhub/internal/providers/repository"
	"readerhub/internal/providers/validator"
	"readerhub/pkg/config"
	apperrors "readerhub/pkg/errors"
	"readerhub/pkg/identity"
	"readerhub/pkg/model"
	"readerhub/pkg/sanitizer"
	"readerhub/pkg/validation"
)

type ProviderService interface {
	Create(ctx context.Context, provider *model.Provider) error
	GetByID(ctx context.Context, id string) (*model.Provider, error)
	UpdateFeeds(ctx context.Context, id string, upd *model.ProviderFeedsUpdate) error
	Readiness(ctx context.Context, id string) (*model.ReadinessResult, error)
}

type providerService struct {
	repo      repository.ProviderRepository
	validator *validator.ProviderValidator
	cfg       *config.Config
}

func NewProviderService(
	repo repository.ProviderRepository,
	validator *validator.ProviderValidator,
	cfg *config.Config,
) ProviderService {
	return &providerService{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *providerService) Create(ctx context.Context, provider *model.Provider) error {
	if _, err := identity.RequirePrivileged(ctx); err != nil {
		return err
	}

	s.sanitize(provider)
	if err := s.validate(provider); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, provider); err != nil {
		if errors.Is(err, providerserrors.ErrDuplicateEmail) {
			return apperrors.Conflict("A provider with this email already exists")
		}
		s.cfg.Log.Error("Failed to create provider", "error", err)
		return apperrors.Internal("Failed to create provider", err)
	}

	s.cfg.Log.Info("Provider created successfully",
		"id", provider.ID,
		"time_zone", provider.TimeZone,
		"feeds", len(provider.CalendarFeeds),
	)
	return nil
}

// GetByID is public. Calendar feed URLs usually embed a private token, so
// they are only returned to the provider and to admins.
func (s *providerService) GetByID(ctx context.Context, id string) (*model.Provider, error) {
	provider, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := identity.RequireAny(ctx, identity.Provider(provider.ID)); err != nil {
		provider.CalendarFeeds = nil
		provider.Email = ""
	}
	return provider, nil
}

func (s *providerService) UpdateFeeds(ctx context.Context, id string, upd *model.ProviderFeedsUpdate) error {
	if _, err := identity.RequireAny(ctx, identity.Provider(id)); err != nil {
		return err
	}

	upd.CalendarFeeds = sanitizer.NormalizeFeeds(upd.CalendarFeeds)
	if err := s.validator.ValidateFeeds(upd); err != nil {
		return validationError(err)
	}

	if err := s.repo.UpdateFeeds(ctx, id, upd.CalendarFeeds); err != nil {
		return s.mapRepoError(err, id, "Failed to update calendar feeds")
	}

	s.cfg.Log.Info("Provider calendar feeds updated", "id", id, "feeds", len(upd.CalendarFeeds))
	return nil
}

func (s *providerService) Readiness(ctx context.Context, id string) (*model.ReadinessResult, error) {
	if _, err := identity.RequireAny(ctx, identity.Provider(id)); err != nil {
		return nil, err
	}

	provider, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	result := Readiness(provider)
	return &result, nil
}

func (s *providerService) find(ctx context.Context, id string) (*model.Provider, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Provider ID cannot be empty")
	}
	provider, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id, "Failed to retrieve provider")
	}
	return provider, nil
}

func (s *providerService) mapRepoError(err error, id, msg string) error {
	switch {
	case errors.Is(err, providerserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Provider", id)
	case errors.Is(err, providerserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid provider ID format")
	}
	s.cfg.Log.Error(msg, "id", id, "error", err)
	return apperrors.Internal(msg, err)
}

func (s *providerService) validate(provider *model.Provider) error {
	if err := s.validator.Validate(provider); err != nil {
		s.cfg.Log.Warn("Provider validation failed", "error", err)
		return validationError(err)
	}
	return nil
}

func (s *providerService) sanitize(provider *model.Provider) {
	provider.DisplayName = sanitizer.NormalizeName(provider.DisplayName)
	provider.Email = sanitizer.NormalizeEmail(provider.Email)
	provider.TimeZone = sanitizer.NormalizeTimeZone(provider.TimeZone)
	provider.Currency = sanitizer.NormalizeCurrency(provider.Currency)
	provider.CalendarFeeds = sanitizer.NormalizeFeeds(provider.CalendarFeeds)
}

func validationError(err error) error {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation("Invalid provider input", verrs.Details())
	}
	return apperrors.Validation("Invalid provider input", map[string]any{"error": err.Error()})
}
