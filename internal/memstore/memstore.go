// Package memstore keeps slots, bookings and providers in memory behind the
// same repository interfaces as the Mongo implementations. A transaction
// holds the store lock for its whole duration and restores a snapshot when
// it fails, which gives the serializable behaviour the services rely on.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	bookingserrors "readerhub/internal/bookings/errors"
	bookingsrepo "readerhub/internal/bookings/repository"
	providerserrors "readerhub/internal/providers/errors"
	providersrepo "readerhub/internal/providers/repository"
	slotsrepo "readerhub/internal/slots/repository"
	slotserrors "readerhub/internal/slots/errors"
	mongotx "readerhub/pkg/db/mongo"
	"readerhub/pkg/interval"
	"readerhub/pkg/model"
)

type Store struct {
	mu        sync.Mutex
	slots     map[string]model.Slot
	bookings  map[string]model.Booking
	providers map[string]model.Provider
}

func New() *Store {
	return &Store{
		slots:     make(map[string]model.Slot),
		bookings:  make(map[string]model.Booking),
		providers: make(map[string]model.Provider),
	}
}

type txKey struct{}

func (st *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == st
}

// lock takes the store lock unless ctx already belongs to a transaction on
// this store.
func (st *Store) lock(ctx context.Context) func() {
	if st.inTx(ctx) {
		return func() {}
	}
	st.mu.Lock()
	return st.mu.Unlock
}

func (st *Store) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	if st.inTx(ctx) {
		return fn(ctx)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	slots := cloneMap(st.slots)
	bookings := cloneMap(st.bookings)
	providers := cloneMap(st.providers)

	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		st.slots, st.bookings, st.providers = slots, bookings, providers
		return err
	}
	return nil
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *Store) Slots() *Slots         { return &Slots{st: st} }
func (st *Store) Bookings() *Bookings   { return &Bookings{st: st} }
func (st *Store) Providers() *Providers { return &Providers{st: st} }

type Slots struct{ st *Store }

var _ slotsrepo.SlotRepository = (*Slots)(nil)

func (s *Slots) Acquire(ctx context.Context, providerID string, iv interval.Interval, bookingID string) ([]string, error) {
	var ids []string
	err := s.st.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if err := iv.Validate(); err != nil {
			return err
		}
		var covering []*model.Slot
		for _, sl := range s.st.slots {
			if sl.ProviderID == providerID && !sl.StartTime.Before(iv.Start) && !sl.EndTime.After(iv.End) {
				sl := sl
				covering = append(covering, &sl)
			}
		}
		if !slotsrepo.Covers(covering, iv) {
			return slotserrors.ErrNotAvailable
		}
		sortSlots(covering)
		ids = ids[:0]
		for _, sl := range covering {
			if sl.Locked {
				return slotserrors.ErrNotAvailable
			}
			ids = append(ids, sl.ID)
		}
		for _, id := range ids {
			sl := s.st.slots[id]
			sl.Locked = true
			sl.BookingID = bookingID
			s.st.slots[id] = sl
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Slots) Release(ctx context.Context, bookingID string, slotIDs []string) (int64, error) {
	if bookingID == "" {
		return 0, nil
	}
	defer s.st.lock(ctx)()

	wanted := make(map[string]bool, len(slotIDs))
	for _, id := range slotIDs {
		wanted[id] = true
	}

	var n int64
	for id, sl := range s.st.slots {
		if sl.BookingID != bookingID || (len(slotIDs) > 0 && !wanted[id]) {
			continue
		}
		sl.Locked = false
		sl.BookingID = ""
		s.st.slots[id] = sl
		n++
	}
	return n, nil
}

func (s *Slots) ListOpen(ctx context.Context, providerID string, window interval.Interval) ([]*model.Slot, error) {
	return s.filter(ctx, func(sl model.Slot) bool {
		return sl.ProviderID == providerID && !sl.Locked && window.Contains(sl.Interval())
	}), nil
}

func (s *Slots) FindOverlapping(ctx context.Context, providerID string, window interval.Interval) ([]*model.Slot, error) {
	return s.filter(ctx, func(sl model.Slot) bool {
		return sl.ProviderID == providerID && window.Overlaps(sl.Interval())
	}), nil
}

// InsertMany skips slots whose (provider_id, start_time) already exists, as
// the unique index does in Mongo.
func (s *Slots) InsertMany(ctx context.Context, slots []*model.Slot) (int, error) {
	defer s.st.lock(ctx)()

	taken := make(map[string]bool, len(s.st.slots))
	for _, sl := range s.st.slots {
		taken[uniqueKey(sl)] = true
	}

	created := 0
	for _, sl := range slots {
		if sl.ID == "" {
			sl.ID = mongotx.NewID()
		}
		sl.StartTime = sl.StartTime.UTC()
		sl.EndTime = sl.EndTime.UTC()
		if taken[uniqueKey(*sl)] {
			continue
		}
		if sl.CreatedAt.IsZero() {
			sl.CreatedAt = time.Now().UTC()
		}
		taken[uniqueKey(*sl)] = true
		s.st.slots[sl.ID] = *sl
		created++
	}
	return created, nil
}

func (s *Slots) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return s.st.ExecuteTransaction(ctx, fn)
}

// Get returns a copy of one slot, for assertions.
func (s *Slots) Get(id string) (model.Slot, bool) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	sl, ok := s.st.slots[id]
	return sl, ok
}

func (s *Slots) All() []*model.Slot {
	return s.filter(context.Background(), func(model.Slot) bool { return true })
}

func (s *Slots) filter(ctx context.Context, keep func(model.Slot) bool) []*model.Slot {
	defer s.st.lock(ctx)()

	out := []*model.Slot{}
	for _, sl := range s.st.slots {
		if keep(sl) {
			sl := sl
			out = append(out, &sl)
		}
	}
	sortSlots(out)
	return out
}

func uniqueKey(sl model.Slot) string {
	return sl.ProviderID + "|" + sl.StartTime.UTC().Format(time.RFC3339Nano)
}

func sortSlots(slots []*model.Slot) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartTime.Before(slots[j].StartTime) })
}

type Bookings struct{ st *Store }

var _ bookingsrepo.BookingRepository = (*Bookings)(nil)

func (b *Bookings) Create(ctx context.Context, booking *model.Booking) error {
	defer b.st.lock(ctx)()

	if booking.ID == "" {
		booking.ID = mongotx.NewID()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	b.st.bookings[booking.ID] = cloneBooking(*booking)
	return nil
}

func (b *Bookings) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if !mongotx.ValidID(id) {
		return nil, bookingserrors.ErrInvalidID
	}
	defer b.st.lock(ctx)()

	booking, ok := b.st.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	out := cloneBooking(booking)
	return &out, nil
}

func (b *Bookings) CompareAndSetStatus(ctx context.Context, id, from, to string) (*model.Booking, error) {
	return b.transition(ctx, id, to, func(bk model.Booking) bool { return bk.Status == from })
}

func (b *Bookings) ExpireIfStale(ctx context.Context, id string, cutoff time.Time) (*model.Booking, error) {
	return b.transition(ctx, id, model.BookingExpired, func(bk model.Booking) bool {
		return bk.Status == model.BookingPending && bk.CreatedAt.Before(cutoff)
	})
}

func (b *Bookings) transition(ctx context.Context, id, to string, match func(model.Booking) bool) (*model.Booking, error) {
	if !mongotx.ValidID(id) {
		return nil, bookingserrors.ErrInvalidID
	}
	defer b.st.lock(ctx)()

	booking, ok := b.st.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	if !match(booking) {
		return nil, bookingserrors.ErrStatusMismatch
	}
	booking.Status = to
	b.st.bookings[id] = booking
	out := cloneBooking(booking)
	return &out, nil
}

func (b *Bookings) Delete(ctx context.Context, id string) error {
	defer b.st.lock(ctx)()

	if _, ok := b.st.bookings[id]; !ok {
		return bookingserrors.ErrNotFound
	}
	delete(b.st.bookings, id)
	return nil
}

func (b *Bookings) FindReclaimable(ctx context.Context, cutoff time.Time, after model.ReclaimCursor, limit int) ([]*model.Booking, error) {
	defer b.st.lock(ctx)()

	out := []*model.Booking{}
	for _, bk := range b.st.bookings {
		stale := bk.Status == model.BookingPending && bk.CreatedAt.Before(cutoff)
		if (stale || model.IsTerminalStatus(bk.Status)) && after.After(&bk) {
			bk := cloneBooking(bk)
			out = append(out, &bk)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *Bookings) SetPaymentRef(ctx context.Context, id, ref string) error {
	defer b.st.lock(ctx)()

	booking, ok := b.st.bookings[id]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	booking.PaymentRef = ref
	b.st.bookings[id] = booking
	return nil
}

func (b *Bookings) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return b.st.ExecuteTransaction(ctx, fn)
}

// Put stores booking as is, for seeding tests.
func (b *Bookings) Put(booking model.Booking) {
	b.st.mu.Lock()
	defer b.st.mu.Unlock()
	b.st.bookings[booking.ID] = cloneBooking(booking)
}

func (b *Bookings) Len() int {
	b.st.mu.Lock()
	defer b.st.mu.Unlock()
	return len(b.st.bookings)
}

func cloneBooking(b model.Booking) model.Booking {
	b.SlotIDs = append([]string(nil), b.SlotIDs...)
	return b
}

type Providers struct{ st *Store }

var _ providersrepo.ProviderRepository = (*Providers)(nil)

func (p *Providers) Create(ctx context.Context, provider *model.Provider) error {
	defer p.st.lock(ctx)()

	for _, existing := range p.st.providers {
		if existing.Email == provider.Email {
			return providerserrors.ErrDuplicateEmail
		}
	}
	if provider.ID == "" {
		provider.ID = mongotx.NewID()
	}
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = time.Now().UTC()
	}
	p.st.providers[provider.ID] = *provider
	return nil
}

func (p *Providers) FindByID(ctx context.Context, id string) (*model.Provider, error) {
	if !mongotx.ValidID(id) {
		return nil, providerserrors.ErrInvalidID
	}
	defer p.st.lock(ctx)()

	provider, ok := p.st.providers[id]
	if !ok {
		return nil, providerserrors.ErrNotFound
	}
	provider.CalendarFeeds = append([]string(nil), provider.CalendarFeeds...)
	return &provider, nil
}

func (p *Providers) UpdateFeeds(ctx context.Context, id string, feeds []string) error {
	if !mongotx.ValidID(id) {
		return providerserrors.ErrInvalidID
	}
	defer p.st.lock(ctx)()

	provider, ok := p.st.providers[id]
	if !ok {
		return providerserrors.ErrNotFound
	}
	provider.CalendarFeeds = append([]string(nil), feeds...)
	p.st.providers[id] = provider
	return nil
}
