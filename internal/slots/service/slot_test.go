package service

import (
	"context"
	"testing"
	"time"

	providerserrors "readerhub/internal/providers/errors"
	"readerhub/internal/slots/validator"
	"readerhub/pkg/config"
	mongotx "readerhub/pkg/db/mongo"
	apperrors "readerhub/pkg/errors"
	"readerhub/pkg/identity"
	"readerhub/pkg/interval"
	"readerhub/pkg/logger"
	"readerhub/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const providerID = "65f1c2a9e4b0a1b2c3d4e5f6"

type mockSlotRepository struct {
	findOverlappingFunc func(ctx context.Context, providerID string, window interval.Interval) ([]*model.Slot, error)
	insertManyFunc      func(ctx context.Context, slots []*model.Slot) (int, error)
}

func (m *mockSlotRepository) Acquire(context.Context, string, interval.Interval, string) ([]string, error) {
	return nil, nil
}

func (m *mockSlotRepository) Release(context.Context, string, []string) (int64, error) {
	return 0, nil
}

func (m *mockSlotRepository) ListOpen(context.Context, string, interval.Interval) ([]*model.Slot, error) {
	return nil, nil
}

func (m *mockSlotRepository) FindOverlapping(ctx context.Context, providerID string, window interval.Interval) ([]*model.Slot, error) {
	if m.findOverlappingFunc != nil {
		return m.findOverlappingFunc(ctx, providerID, window)
	}
	return nil, nil
}

func (m *mockSlotRepository) InsertMany(ctx context.Context, slots []*model.Slot) (int, error) {
	if m.insertManyFunc != nil {
		return m.insertManyFunc(ctx, slots)
	}
	return len(slots), nil
}

func (m *mockSlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

type mockProviderFinder struct {
	provider *model.Provider
	err      error
}

func (m *mockProviderFinder) FindByID(context.Context, string) (*model.Provider, error) {
	return m.provider, m.err
}

func setupTestService(repo *mockSlotRepository, providers *mockProviderFinder, now time.Time) *slotService {
	log := logger.Discard()
	svc := NewSlotService(repo, providers, validator.NewTemplateValidator(log), &config.Config{Log: log}).(*slotService)
	svc.now = func() time.Time { return now }
	return svc
}

func asProvider() context.Context {
	return identity.WithIdentity(context.Background(), identity.Identity{Subject: providerID, Role: identity.RoleReader})
}

func TestExpand_WorkingDaysAndPast(t *testing.T) {
	tmpl := &model.SlotTemplate{
		WorkingDays: []string{"monday"},
		StartOfDay:  "09:00",
		EndOfDay:    "10:00",
		SlotMinutes: 20,
		From:        "2026-05-04", // a Monday
		Days:        8,
	}
	now := time.Date(2026, 5, 4, 9, 10, 0, 0, time.UTC)

	got, err := Expand(tmpl, time.UTC, now)
	require.NoError(t, err)

	var starts []string
	for _, iv := range got {
		starts = append(starts, iv.Start.Format("01-02 15:04"))
	}
	// 09:00 on the first Monday is already past; the next Monday is complete.
	assert.Equal(t, []string{"05-04 09:20", "05-04 09:40", "05-11 09:00", "05-11 09:20", "05-11 09:40"}, starts)
}

func TestExpand_KeepsLocalHoursAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tmpl := &model.SlotTemplate{
		WorkingDays: []string{"Saturday", "Sunday", "Monday"},
		StartOfDay:  "09:00",
		EndOfDay:    "09:30",
		SlotMinutes: 30,
		From:        "2026-03-07",
		Days:        3,
		Exceptions:  []string{"2026-03-08"},
	}
	got, err := Expand(tmpl, loc, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "14:00", got[0].Start.UTC().Format("15:04"), "EST is UTC-5")
	assert.Equal(t, "13:00", got[1].Start.UTC().Format("15:04"), "EDT is UTC-4")
}

func TestGenerate_SkipsExistingOverlaps(t *testing.T) {
	var inserted []*model.Slot
	repo := &mockSlotRepository{
		findOverlappingFunc: func(_ context.Context, _ string, _ interval.Interval) ([]*model.Slot, error) {
			return []*model.Slot{{
				StartTime: time.Date(2026, 5, 4, 9, 15, 0, 0, time.UTC),
				EndTime:   time.Date(2026, 5, 4, 9, 45, 0, 0, time.UTC),
			}}, nil
		},
		insertManyFunc: func(_ context.Context, slots []*model.Slot) (int, error) {
			inserted = slots
			return len(slots), nil
		},
	}
	providers := &mockProviderFinder{provider: &model.Provider{ID: providerID, TimeZone: "UTC"}}
	svc := setupTestService(repo, providers, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	res, err := svc.Generate(asProvider(), providerID, &model.SlotTemplate{
		WorkingDays: []string{"Monday"},
		StartOfDay:  "09:00",
		EndOfDay:    "10:00",
		SlotMinutes: 15,
		From:        "2026-05-04",
		Days:        1,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Requested)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, inserted, 2)
	assert.Equal(t, 9, inserted[0].StartTime.Hour())
	assert.Equal(t, 45, inserted[1].StartTime.Minute())
	assert.Equal(t, providerID, inserted[0].ProviderID)
}

func TestGenerate_Errors(t *testing.T) {
	validTmpl := func() *model.SlotTemplate {
		return &model.SlotTemplate{WorkingDays: []string{"Monday"}, StartOfDay: "09:00", EndOfDay: "10:00", SlotMinutes: 15, From: "2026-05-04", Days: 1}
	}

	tests := []struct {
		name      string
		ctx       context.Context
		providers *mockProviderFinder
		tmpl      *model.SlotTemplate
		wantCode  string
	}{
		{
			name:      "anonymous",
			ctx:       context.Background(),
			providers: &mockProviderFinder{},
			tmpl:      validTmpl(),
			wantCode:  apperrors.CodeUnauthorized,
		},
		{
			name:      "other reader",
			ctx:       identity.WithIdentity(context.Background(), identity.Identity{Subject: "other", Role: identity.RoleReader}),
			providers: &mockProviderFinder{},
			tmpl:      validTmpl(),
			wantCode:  apperrors.CodeForbidden,
		},
		{
			name:      "invalid template",
			ctx:       asProvider(),
			providers: &mockProviderFinder{},
			tmpl:      &model.SlotTemplate{},
			wantCode:  apperrors.CodeValidation,
		},
		{
			name:      "unknown provider",
			ctx:       asProvider(),
			providers: &mockProviderFinder{err: providerserrors.ErrNotFound},
			tmpl:      validTmpl(),
			wantCode:  apperrors.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := setupTestService(&mockSlotRepository{}, tt.providers, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
			_, err := svc.Generate(tt.ctx, providerID, tt.tmpl)
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}
