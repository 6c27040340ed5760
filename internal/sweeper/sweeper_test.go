package sweeper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"readerhub/internal/bookings/service"
	"readerhub/internal/bookings/validator"
	"readerhub/internal/memstore"
	"readerhub/pkg/config"
	mongotx "readerhub/pkg/db/mongo"
	"readerhub/pkg/identity"
	"readerhub/pkg/logger"
	"readerhub/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sweepNow = time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)

type mockBookingSource struct {
	findReclaimableFunc func(ctx context.Context, cutoff time.Time, after model.ReclaimCursor, limit int) ([]*model.Booking, error)
}

func (m *mockBookingSource) FindReclaimable(ctx context.Context, cutoff time.Time, after model.ReclaimCursor, limit int) ([]*model.Booking, error) {
	return m.findReclaimableFunc(ctx, cutoff, after, limit)
}

// pageOf returns up to limit of ids that sort after the cursor.
func pageOf(ids []string, after model.ReclaimCursor, limit int) []*model.Booking {
	var page []*model.Booking
	for _, id := range ids {
		b := &model.Booking{ID: id}
		if after.After(b) && len(page) < limit {
			page = append(page, b)
		}
	}
	return page
}

type mockExpirer struct {
	expireFunc func(ctx context.Context, id string, cutoff time.Time) (*model.CancelResult, error)
}

func (m *mockExpirer) Expire(ctx context.Context, id string, cutoff time.Time) (*model.CancelResult, error) {
	return m.expireFunc(ctx, id, cutoff)
}

func testConfig(batch int) *config.Config {
	return &config.Config{
		Log:                logger.Discard(),
		BookingGraceWindow: 15 * time.Minute,
		SweepBatchSize:     batch,
		SweepSchedule:      "@every 1m",
	}
}

func newTestSweeper(src BookingSource, exp Expirer, cfg *config.Config) *Sweeper {
	s := New(src, exp, cfg)
	s.now = func() time.Time { return sweepNow }
	return s
}

func TestSweep_UsesGraceWindowCutoffAndSystemIdentity(t *testing.T) {
	var gotCutoff time.Time
	src := &mockBookingSource{
		findReclaimableFunc: func(_ context.Context, cutoff time.Time, _ model.ReclaimCursor, _ int) ([]*model.Booking, error) {
			gotCutoff = cutoff
			return []*model.Booking{{ID: "a"}}, nil
		},
	}
	exp := &mockExpirer{
		expireFunc: func(ctx context.Context, id string, cutoff time.Time) (*model.CancelResult, error) {
			caller, ok := identity.FromContext(ctx)
			if !ok || caller.Role != identity.RoleSystem {
				t.Errorf("expected system identity, got %+v", caller)
			}
			return &model.CancelResult{BookingID: id, Released: true, ReleasedSlots: 3, Status: model.BookingExpired}, nil
		},
	}

	result, err := newTestSweeper(src, exp, testConfig(10)).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sweepNow.Add(-15*time.Minute), gotCutoff)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, int64(3), result.ReleasedSlots)
}

func TestSweep_PagesUntilExhausted(t *testing.T) {
	pending := []string{"a", "b", "c", "d", "e"}
	src := &mockBookingSource{
		findReclaimableFunc: func(_ context.Context, _ time.Time, after model.ReclaimCursor, limit int) ([]*model.Booking, error) {
			return pageOf(pending, after, limit), nil
		},
	}
	exp := &mockExpirer{
		expireFunc: func(_ context.Context, id string, _ time.Time) (*model.CancelResult, error) {
			for i, p := range pending {
				if p == id {
					pending = append(pending[:i], pending[i+1:]...)
					break
				}
			}
			return &model.CancelResult{BookingID: id, Released: true, ReleasedSlots: 1}, nil
		},
	}

	result, err := newTestSweeper(src, exp, testConfig(2)).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Expired)
	assert.Empty(t, pending)
}

func TestSweep_FailuresDoNotHideLaterBookings(t *testing.T) {
	calls := 0
	src := &mockBookingSource{
		findReclaimableFunc: func(_ context.Context, _ time.Time, after model.ReclaimCursor, limit int) ([]*model.Booking, error) {
			calls++
			// the "bad" bookings never go away
			return pageOf([]string{"a-bad", "b-bad", "c-good"}, after, limit), nil
		},
	}
	exp := &mockExpirer{
		expireFunc: func(_ context.Context, id string, _ time.Time) (*model.CancelResult, error) {
			if strings.HasSuffix(id, "-bad") {
				return nil, errors.New("write conflict")
			}
			return &model.CancelResult{BookingID: id, Released: true, ReleasedSlots: 2}, nil
		},
	}

	result, err := newTestSweeper(src, exp, testConfig(2)).Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "booking a-bad")
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 2, calls)
}

func TestSweep_FailingHeadAgainstStore(t *testing.T) {
	store := memstore.New()
	created := sweepNow.Add(-time.Hour)

	var ids []string
	for i := 0; i < 3; i++ {
		b := model.Booking{
			ID:         mongotx.NewID(),
			ProviderID: "p1",
			ClientID:   "c1",
			Status:     model.BookingPending,
			CreatedAt:  created.Add(time.Duration(i) * time.Second),
		}
		store.Bookings().Put(b)
		ids = append(ids, b.ID)
	}
	healthy := ids[2]

	exp := &mockExpirer{
		expireFunc: func(ctx context.Context, id string, _ time.Time) (*model.CancelResult, error) {
			if id != healthy {
				return nil, errors.New("write conflict")
			}
			require.NoError(t, store.Bookings().Delete(ctx, id))
			return &model.CancelResult{BookingID: id, Released: true}, nil
		},
	}

	result, err := newTestSweeper(store.Bookings(), exp, testConfig(2)).Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 2, result.Failed)

	_, err = store.Bookings().FindByID(context.Background(), healthy)
	assert.Error(t, err, "healthy booking behind failing ones must be reclaimed")
}

func TestSweep_ListingFailure(t *testing.T) {
	src := &mockBookingSource{
		findReclaimableFunc: func(context.Context, time.Time, model.ReclaimCursor, int) ([]*model.Booking, error) {
			return nil, errors.New("connection refused")
		},
	}
	exp := &mockExpirer{
		expireFunc: func(context.Context, string, time.Time) (*model.CancelResult, error) {
			t.Fatal("expire must not be called")
			return nil, nil
		},
	}

	result, err := newTestSweeper(src, exp, testConfig(10)).Sweep(context.Background())
	require.Error(t, err)
	assert.Zero(t, result.Scanned)
}

func TestSweep_AgainstBookingService(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	provider := &model.Provider{
		DisplayName: "Ada", Email: "ada@example.com", TimeZone: "UTC", HourlyRateCents: 3000,
		EmailVerified: true, ProfileComplete: true, PayoutsEnabled: true, AgreedToTerms: true,
	}
	require.NoError(t, store.Providers().Create(ctx, provider))

	start := sweepNow.Add(24 * time.Hour)
	var slots []*model.Slot
	for i := 0; i < 4; i++ {
		s := start.Add(time.Duration(i) * time.Hour)
		slots = append(slots, &model.Slot{ProviderID: provider.ID, StartTime: s, EndTime: s.Add(time.Hour)})
	}
	_, err := store.Slots().InsertMany(ctx, slots)
	require.NoError(t, err)

	cfg := testConfig(10)
	clock := sweepNow.Add(-time.Hour)
	bookings := service.NewBookingService(store.Bookings(), store.Slots(), store.Providers(),
		validator.NewBookingValidator(cfg.Log), cfg, service.WithClock(func() time.Time { return clock }))

	actor := identity.WithIdentity(ctx, identity.Identity{Subject: "c1", Role: identity.RoleActor})
	stale, err := bookings.Create(actor, &model.CreateBookingRequest{
		ProviderID: provider.ID, ClientID: "c1", StartTime: start, EndTime: start.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	// Exactly at the cutoff: not abandoned yet.
	clock = sweepNow.Add(-15 * time.Minute)
	fresh, err := bookings.Create(actor, &model.CreateBookingRequest{
		ProviderID: provider.ID, ClientID: "c1", StartTime: start.Add(2 * time.Hour), EndTime: start.Add(3 * time.Hour),
	})
	require.NoError(t, err)

	result, err := newTestSweeper(store.Bookings(), bookings, cfg).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, int64(2), result.ReleasedSlots)

	for _, sl := range store.Slots().All() {
		switch {
		case sl.BookingID == stale.ID:
			t.Errorf("slot %s still held by expired booking", sl.ID)
		case sl.StartTime.Equal(start.Add(2 * time.Hour)):
			assert.Equal(t, fresh.ID, sl.BookingID)
		}
	}

	_, err = store.Bookings().FindByID(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestHandler_RequiresPrivilegedCaller(t *testing.T) {
	runner := &mockRunner{result: &model.SweepResult{Expired: 2}}
	router := httprouter.New()
	NewHandler(runner, logger.Discard()).RegisterRoutes(router)

	tests := []struct {
		name       string
		caller     *identity.Identity
		wantStatus int
	}{
		{name: "anonymous", wantStatus: http.StatusUnauthorized},
		{name: "client", caller: &identity.Identity{Subject: "c1", Role: identity.RoleActor}, wantStatus: http.StatusForbidden},
		{name: "admin", caller: &identity.Identity{Subject: "ops", Role: identity.RoleAdmin}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweep", nil)
			if tt.caller != nil {
				req = req.WithContext(identity.WithIdentity(req.Context(), *tt.caller))
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK && !strings.Contains(rec.Body.String(), `"expired":2`) {
				t.Errorf("unexpected body: %s", rec.Body.String())
			}
		})
	}
}

type mockRunner struct {
	result *model.SweepResult
}

func (m *mockRunner) Sweep(context.Context) (*model.SweepResult, error) {
	return m.result, nil
}

func TestSchedule_RejectsBadExpression(t *testing.T) {
	cfg := testConfig(10)
	cfg.SweepSchedule = "sometimes"
	_, err := New(nil, nil, cfg).Schedule(context.Background())
	assert.Error(t, err)
}
