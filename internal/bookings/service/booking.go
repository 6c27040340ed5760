package service

import (
	"context"
	"errors"
	"strings"
	"time"

	bookingserrors "readerhub/internal/bookings/errors"
	"readerhub/internal/bookings/repository"
	"readerhub/internal/bookings/validator"
	providerserrors "readerhub/internal/providers/errors"
	providerservice "readerhub/internal/providers/service"
	slotserrors "readerhub/internal/slots/errors"
	"readerhub/pkg/config"
	mongotx "readerhub/pkg/db/mongo"
	apperrors "readerhub/pkg/errors"
	"readerhub/pkg/identity"
	"readerhub/pkg/interval"
	"readerhub/pkg/logger"
	"readerhub/pkg/metrics"
	"readerhub/pkg/model"
	"readerhub/pkg/otelx"
	"readerhub/pkg/validation"
)

const (
	releaseCanceled      = "canceled"
	releaseExpired       = "expired"
	releasePaymentFailed = "payment_failed"
	releaseLeftover      = "leftover"
)

type SlotStore interface {
	Acquire(ctx context.Context, providerID string, iv interval.Interval, bookingID string) ([]string, error)
	Release(ctx context.Context, bookingID string, slotIDs []string) (int64, error)
}

type ProviderFinder interface {
	FindByID(ctx context.Context, id string) (*model.Provider, error)
}

type PaymentGateway interface {
	Initiate(ctx context.Context, booking *model.Booking) (*model.PaymentIntent, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, status string, booking *model.Booking, releasedSlots int64) error
}

type BookingService interface {
	Create(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	Confirm(ctx context.Context, id string) (*model.Booking, error)
	Cancel(ctx context.Context, id string) (*model.CancelResult, error)
	Expire(ctx context.Context, id string, cutoff time.Time) (*model.CancelResult, error)
}

type Option func(*bookingService)

// WithPayments makes Create initiate a payment for every new hold.
func WithPayments(gateway PaymentGateway) Option {
	return func(s *bookingService) { s.payments = gateway }
}

func WithEvents(publisher EventPublisher) Option {
	return func(s *bookingService) { s.events = publisher }
}

func WithClock(now func() time.Time) Option {
	return func(s *bookingService) { s.now = now }
}

type bookingService struct {
	repo      repository.BookingRepository
	slots     SlotStore
	providers ProviderFinder
	validator *validator.BookingValidator
	payments  PaymentGateway
	events    EventPublisher
	cfg       *config.Config
	now       func() time.Time
}

func NewBookingService(
	repo repository.BookingRepository,
	slots SlotStore,
	providers ProviderFinder,
	validator *validator.BookingValidator,
	cfg *config.Config,
	opts ...Option,
) BookingService {
	s := &bookingService{
		repo:      repo,
		slots:     slots,
		providers: providers,
		validator: validator,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places a pending hold: the covering slots are locked and the
// booking inserted in one transaction, so either both happen or neither.
func (s *bookingService) Create(ctx context.Context, req *model.CreateBookingRequest) (booking *model.Booking, err error) {
	ctx, span := otelx.Start(ctx, "bookings.Create")
	defer func() { otelx.End(span, err) }()

	// Clients book for themselves unless the request names someone else.
	if caller, ok := identity.FromContext(ctx); ok && caller.Role == identity.RoleActor && strings.TrimSpace(req.ClientID) == "" {
		req.ClientID = caller.Subject
	}
	if _, err := identity.RequireAny(ctx, identity.Client(strings.TrimSpace(req.ClientID))); err != nil {
		return nil, err
	}

	s.sanitize(req)
	if err := s.validator.Validate(req); err != nil {
		s.log(ctx).Warn("Booking validation failed", "error", err)
		return nil, validationError(err)
	}

	iv, err := interval.New(req.StartTime, req.EndTime)
	if err != nil {
		return nil, apperrors.InvalidInterval("end_time must be after start_time")
	}
	iv = iv.UTC()
	now := s.now()
	if !iv.Start.After(now) {
		return nil, apperrors.InvalidInterval("start_time must be in the future")
	}

	provider, err := s.providers.FindByID(ctx, req.ProviderID)
	if err != nil {
		return nil, s.mapProviderError(ctx, err, req.ProviderID)
	}
	if readiness := providerservice.Readiness(provider); !readiness.Ready {
		return nil, apperrors.Validation("Provider is not accepting bookings", map[string]any{
			"provider_id":     provider.ID,
			"failed_criteria": readiness.Failed,
		})
	}

	total, fee := s.price(provider, iv)
	booking = &model.Booking{
		ID:               mongotx.NewID(),
		ProviderID:       provider.ID,
		ClientID:         req.ClientID,
		StartTime:        iv.Start,
		EndTime:          iv.End,
		Status:           model.BookingPending,
		CreatedAt:        now.UTC().Truncate(time.Millisecond),
		TotalAmountCents: total,
		PlatformFeeCents: fee,
		Currency:         s.currency(req, provider),
		MeetingLink:      req.MeetingLink,
	}

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		ids, err := s.slots.Acquire(txCtx, booking.ProviderID, iv, booking.ID)
		if err != nil {
			return err
		}
		booking.SlotIDs = ids
		return s.repo.Create(txCtx, booking)
	})
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotAvailable) {
			metrics.RecordSlotConflict()
			s.log(ctx).Info("Booking rejected, slots not available",
				"provider_id", booking.ProviderID,
				"interval", iv.String(),
			)
			return nil, apperrors.SlotConflict("The requested time is no longer available")
		}
		s.log(ctx).Error("Failed to create booking", "provider_id", booking.ProviderID, "error", err)
		return nil, apperrors.Internal("Failed to create booking", err)
	}

	metrics.RecordBookingTransition(model.BookingPending)
	s.log(ctx).Info("Booking created",
		"id", booking.ID,
		"provider_id", booking.ProviderID,
		"client_id", booking.ClientID,
		"interval", iv.String(),
		"slots", len(booking.SlotIDs),
	)
	s.publish(ctx, model.BookingPending, booking, 0)

	if err := s.initiatePayment(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// initiatePayment hands the booking reference to the payment collaborator.
// If that fails the hold is given back immediately rather than waiting for
// the sweeper.
func (s *bookingService) initiatePayment(ctx context.Context, booking *model.Booking) error {
	if s.payments == nil {
		return nil
	}

	intent, err := s.payments.Initiate(ctx, booking)
	if err != nil {
		s.log(ctx).Error("Payment initiation failed, releasing hold", "id", booking.ID, "error", err)
		released, relErr := s.reclaim(ctx, booking, model.BookingCanceled, func(txCtx context.Context) error {
			_, err := s.repo.CompareAndSetStatus(txCtx, booking.ID, model.BookingPending, model.BookingCanceled)
			return err
		})
		if relErr != nil {
			s.log(ctx).Error("Failed to release hold after payment failure, sweeper will reclaim it",
				"id", booking.ID, "error", relErr)
		} else {
			metrics.RecordSlotsReleased(releasePaymentFailed, released)
		}
		return apperrors.UpstreamUnavailable("Payment provider", err)
	}

	// Payment outcomes carry the booking id in the intent metadata, so the
	// hold stays usable without the stored reference.
	if err := s.repo.SetPaymentRef(ctx, booking.ID, intent.Ref); err != nil {
		s.log(ctx).Error("Failed to store payment reference", "id", booking.ID, "payment_ref", intent.Ref, "error", err)
	}
	booking.PaymentRef = intent.Ref
	booking.ClientSecret = intent.ClientSecret
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if _, err := identity.Require(ctx); err != nil {
		return nil, err
	}

	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := identity.RequireAny(ctx, identity.Client(booking.ClientID), identity.Provider(booking.ProviderID)); err != nil {
		return nil, err
	}
	return booking, nil
}

// Confirm finalizes a pending booking. Confirming twice is a no-op. Slots
// are already held, so nothing else changes.
func (s *bookingService) Confirm(ctx context.Context, id string) (booking *model.Booking, err error) {
	ctx, span := otelx.Start(ctx, "bookings.Confirm")
	defer func() { otelx.End(span, err) }()

	if _, err := identity.RequirePrivileged(ctx); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err = s.repo.CompareAndSetStatus(ctx, id, model.BookingPending, model.BookingConfirmed)
	if err != nil {
		if !errors.Is(err, bookingserrors.ErrStatusMismatch) {
			return nil, s.mapRepoError(ctx, err, id, "Failed to confirm booking")
		}
		current, findErr := s.find(ctx, id)
		if findErr != nil {
			return nil, findErr
		}
		if current.Status == model.BookingConfirmed {
			return current, nil
		}
		return nil, apperrors.Conflict("Booking is no longer pending").WithDetails(map[string]any{
			"id":     id,
			"status": current.Status,
		})
	}

	metrics.RecordBookingTransition(model.BookingConfirmed)
	s.log(ctx).Info("Booking confirmed", "id", id, "provider_id", booking.ProviderID)
	s.publish(ctx, model.BookingConfirmed, booking, 0)
	return booking, nil
}

// Cancel releases a pending hold on behalf of one of its participants.
// A booking that is already gone or no longer pending yields a zero result,
// never an error, so retries are safe.
func (s *bookingService) Cancel(ctx context.Context, id string) (result *model.CancelResult, err error) {
	ctx, span := otelx.Start(ctx, "bookings.Cancel")
	defer func() { otelx.End(span, err) }()

	if _, err := identity.Require(ctx); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		// A malformed id cannot name a booking, so it is missing like any other.
		if errors.Is(err, bookingserrors.ErrNotFound) || errors.Is(err, bookingserrors.ErrInvalidID) {
			return &model.CancelResult{BookingID: id}, nil
		}
		return nil, s.mapRepoError(ctx, err, id, "Failed to retrieve booking")
	}

	if _, err := identity.RequireAny(ctx, identity.Client(booking.ClientID), identity.Provider(booking.ProviderID)); err != nil {
		return nil, err
	}

	if booking.Status != model.BookingPending {
		return &model.CancelResult{BookingID: id, Status: booking.Status}, nil
	}

	released, err := s.reclaim(ctx, booking, model.BookingCanceled, func(txCtx context.Context) error {
		_, err := s.repo.CompareAndSetStatus(txCtx, id, model.BookingPending, model.BookingCanceled)
		return err
	})
	if err != nil {
		if lostRace(err) {
			s.log(ctx).Info("Booking changed before cancel committed", "id", id)
			return &model.CancelResult{BookingID: id}, nil
		}
		s.log(ctx).Error("Failed to cancel booking", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to cancel booking", err)
	}

	metrics.RecordBookingTransition(model.BookingCanceled)
	metrics.RecordSlotsReleased(releaseCanceled, released)
	s.log(ctx).Info("Booking canceled", "id", id, "released_slots", released)
	s.publish(ctx, model.BookingCanceled, booking, released)

	return &model.CancelResult{
		BookingID:     id,
		Released:      true,
		ReleasedSlots: released,
		Status:        model.BookingCanceled,
	}, nil
}

// Expire reclaims a pending booking created before cutoff. Terminal records
// left behind by an interrupted reclaim are finished here too.
func (s *bookingService) Expire(ctx context.Context, id string, cutoff time.Time) (*model.CancelResult, error) {
	if _, err := identity.RequirePrivileged(ctx); err != nil {
		return nil, err
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return &model.CancelResult{BookingID: id}, nil
		}
		return nil, s.mapRepoError(ctx, err, id, "Failed to retrieve booking")
	}

	switch {
	case model.IsTerminalStatus(booking.Status):
		released, err := s.reclaim(ctx, booking, booking.Status, nil)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrNotFound) {
				return &model.CancelResult{BookingID: id}, nil
			}
			return nil, apperrors.Internal("Failed to finish booking reclaim", err)
		}
		metrics.RecordSlotsReleased(releaseLeftover, released)
		s.log(ctx).Info("Finished interrupted reclaim", "id", id, "status", booking.Status, "released_slots", released)
		return &model.CancelResult{BookingID: id, Released: true, ReleasedSlots: released, Status: booking.Status}, nil

	case booking.Status != model.BookingPending || !booking.CreatedAt.Before(cutoff):
		return &model.CancelResult{BookingID: id, Status: booking.Status}, nil
	}

	released, err := s.reclaim(ctx, booking, model.BookingExpired, func(txCtx context.Context) error {
		_, err := s.repo.ExpireIfStale(txCtx, id, cutoff)
		return err
	})
	if err != nil {
		if lostRace(err) {
			return &model.CancelResult{BookingID: id}, nil
		}
		return nil, apperrors.Internal("Failed to expire booking", err)
	}

	metrics.RecordBookingTransition(model.BookingExpired)
	metrics.RecordSlotsReleased(releaseExpired, released)
	s.log(ctx).Info("Booking expired", "id", id, "created_at", booking.CreatedAt, "released_slots", released)
	s.publish(ctx, model.BookingExpired, booking, released)

	return &model.CancelResult{
		BookingID:     id,
		Released:      true,
		ReleasedSlots: released,
		Status:        model.BookingExpired,
	}, nil
}

// reclaim marks the booking terminal, releases its slots and deletes the
// record in one transaction. mark may be nil when the record already
// carries a terminal status.
func (s *bookingService) reclaim(ctx context.Context, booking *model.Booking, status string, mark func(ctx context.Context) error) (int64, error) {
	var released int64
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if mark != nil {
			if err := mark(txCtx); err != nil {
				return err
			}
		}
		n, err := s.slots.Release(txCtx, booking.ID, booking.SlotIDs)
		if err != nil {
			return err
		}
		released = n
		return s.repo.Delete(txCtx, booking.ID)
	})
	if err != nil {
		return 0, err
	}
	booking.Status = status
	return released, nil
}

func (s *bookingService) publish(ctx context.Context, status string, booking *model.Booking, released int64) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, status, booking, released); err != nil {
		s.log(ctx).Warn("Failed to publish booking event", "id", booking.ID, "status", status, "error", err)
	}
}

// price charges the provider's hourly rate pro rata by minute. The platform
// fee is taken out of the total in basis points.
func (s *bookingService) price(provider *model.Provider, iv interval.Interval) (total, fee int64) {
	minutes := int64(iv.Duration() / time.Minute)
	total = provider.HourlyRateCents * minutes / 60
	fee = total * int64(s.cfg.PlatformFeeBps) / 10000
	return total, fee
}

func (s *bookingService) currency(req *model.CreateBookingRequest, provider *model.Provider) string {
	switch {
	case req.Currency != "":
		return req.Currency
	case provider.Currency != "":
		return provider.Currency
	default:
		return s.cfg.DefaultCurrency
	}
}

func (s *bookingService) sanitize(req *model.CreateBookingRequest) {
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))
	req.MeetingLink = strings.TrimSpace(req.MeetingLink)
}

func (s *bookingService) find(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(ctx, err, id, "Failed to retrieve booking")
	}
	return booking, nil
}

func (s *bookingService) mapRepoError(ctx context.Context, err error, id, msg string) error {
	switch {
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", id)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid booking ID format")
	}
	s.log(ctx).Error(msg, "id", id, "error", err)
	return apperrors.Internal(msg, err)
}

func (s *bookingService) mapProviderError(ctx context.Context, err error, id string) error {
	switch {
	case errors.Is(err, providerserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Provider", id)
	case errors.Is(err, providerserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid provider ID format")
	}
	s.log(ctx).Error("Failed to retrieve provider", "provider_id", id, "error", err)
	return apperrors.Internal("Failed to retrieve provider", err)
}

func (s *bookingService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx, s.cfg.Log)
}

// lostRace reports whether a transition failed because another writer got
// to the booking first.
func lostRace(err error) bool {
	return errors.Is(err, bookingserrors.ErrStatusMismatch) || errors.Is(err, bookingserrors.ErrNotFound)
}

func validationError(err error) error {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation("Invalid booking request", verrs.Details())
	}
	return apperrors.Validation("Invalid booking request", map[string]any{"error": err.Error()})
}
