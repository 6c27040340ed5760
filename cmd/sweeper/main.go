package main

import (
	"context"

	bookingrepo "readerhub/internal/bookings/repository"
	bookingservice "readerhub/internal/bookings/service"
	bookingvalidator "readerhub/internal/bookings/validator"
	providerrepo "readerhub/internal/providers/repository"
	slotrepo "readerhub/internal/slots/repository"
	"readerhub/internal/sweeper"
	"readerhub/pkg/config"
)

// JobName runs one reclaim pass and exits, for deployments that schedule
// the sweep externally instead of inside the bookings service.
const JobName = "booking-sweeper"

func main() {
	cfg := config.Load(JobName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	bookingRepo := bookingrepo.NewMongoBookingRepository(cfg)
	bookingService := bookingservice.NewBookingService(
		bookingRepo,
		slotrepo.NewMongoSlotRepository(cfg),
		providerrepo.NewMongoProviderRepository(cfg),
		bookingvalidator.NewBookingValidator(cfg.Log),
		cfg,
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+cfg.RequestTimeout)
	defer cancel()

	result, err := sweeper.New(bookingRepo, bookingService, cfg).Sweep(ctx)
	if err != nil {
		cfg.Log.Error("Sweep finished with errors", "error", err)
	}
	if result != nil {
		cfg.Log.Info("Sweep completed",
			"cutoff", result.Cutoff,
			"scanned", result.Scanned,
			"expired", result.Expired,
			"released_slots", result.ReleasedSlots,
			"failed", result.Failed,
		)
	}
}
