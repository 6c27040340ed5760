package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"readerhub/pkg/config"
	"readerhub/pkg/identity"
	"readerhub/pkg/logger"
	"readerhub/pkg/metrics"
	"readerhub/pkg/model"
	"readerhub/pkg/otelx"

	"github.com/robfig/cron/v3"
)

const (
	outcomeSuccess = "success"
	outcomePartial = "partial"
	outcomeError   = "error"
)

type BookingSource interface {
	FindReclaimable(ctx context.Context, cutoff time.Time, after model.ReclaimCursor, limit int) ([]*model.Booking, error)
}

type Expirer interface {
	Expire(ctx context.Context, id string, cutoff time.Time) (*model.CancelResult, error)
}

// Sweeper reclaims pending bookings whose grace window has passed. Runs may
// overlap; every reclaim is guarded by a compare-and-set on the status.
type Sweeper struct {
	bookings BookingSource
	expirer  Expirer
	cfg      *config.Config
	now      func() time.Time
}

func New(bookings BookingSource, expirer Expirer, cfg *config.Config) *Sweeper {
	return &Sweeper{
		bookings: bookings,
		expirer:  expirer,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Cutoff is the creation time before which a pending booking is abandoned.
func (s *Sweeper) Cutoff() time.Time {
	return s.now().UTC().Add(-s.cfg.BookingGraceWindow)
}

// Sweep expires every abandoned booking and finishes interrupted reclaims.
// Per-booking failures are logged and skipped; they are returned joined
// together with the counts of what did succeed.
func (s *Sweeper) Sweep(ctx context.Context) (result *model.SweepResult, err error) {
	ctx, span := otelx.Start(ctx, "sweeper.Sweep")
	defer func() { otelx.End(span, err) }()

	ctx = identity.WithIdentity(ctx, identity.System())
	started := time.Now()
	result = &model.SweepResult{Cutoff: s.Cutoff()}

	batch := s.cfg.SweepBatchSize
	if batch <= 0 {
		batch = config.DefaultSweepBatchSize
	}

	var (
		errs   []error
		cursor model.ReclaimCursor
	)
	for {
		page, err := s.bookings.FindReclaimable(ctx, result.Cutoff, cursor, batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing reclaimable bookings: %w", err))
			break
		}

		for _, b := range page {
			cursor = model.ReclaimCursor{CreatedAt: b.CreatedAt, ID: b.ID}
			result.Scanned++

			res, err := s.expirer.Expire(ctx, b.ID, result.Cutoff)
			if err != nil {
				result.Failed++
				errs = append(errs, fmt.Errorf("booking %s: %w", b.ID, err))
				s.cfg.Log.Warn("Failed to expire booking", "id", b.ID, "error", err)
				continue
			}
			if res.Released {
				result.Expired++
				result.ReleasedSlots += res.ReleasedSlots
			}
		}

		// Failed bookings stay reclaimable; the cursor moves past them so
		// the rest of the backlog is still reached this run.
		if len(page) < batch {
			break
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	err = errors.Join(errs...)
	outcome := outcomeSuccess
	switch {
	case err != nil && result.Expired == 0 && result.Scanned == result.Failed:
		outcome = outcomeError
	case err != nil:
		outcome = outcomePartial
	}
	metrics.RecordSweep(outcome, time.Since(started).Seconds())

	s.cfg.Log.Info("Sweep finished",
		"cutoff", result.Cutoff,
		"scanned", result.Scanned,
		"expired", result.Expired,
		"released_slots", result.ReleasedSlots,
		"failed", result.Failed,
		"outcome", outcome,
	)
	return result, err
}

// Schedule registers Sweep on a cron runner using SweepSchedule. Runs that
// are still in progress when the next tick fires cause that tick to be
// skipped. The caller starts and stops the returned runner.
func (s *Sweeper) Schedule(ctx context.Context) (*cron.Cron, error) {
	log := cronLogger{s.cfg.Log}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	_, err := c.AddFunc(s.cfg.SweepSchedule, func() {
		// errors are already logged per booking
		_, _ = s.Sweep(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.SweepSchedule, err)
	}

	s.cfg.Log.Info("Sweeper scheduled",
		"schedule", s.cfg.SweepSchedule,
		"grace_window", s.cfg.BookingGraceWindow.String(),
		"batch_size", s.cfg.SweepBatchSize,
	)
	return c, nil
}

type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
