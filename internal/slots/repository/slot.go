package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	slotserrors "readerhub/internal/slots/errors"
	"readerhub/pkg/config"
	mongotx "readerhub/pkg/db/mongo"
	"readerhub/pkg/interval"
	"readerhub/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Slots"
)

type SlotRepository interface {
	// Acquire locks every slot tiling iv for bookingID, or none of them.
	Acquire(ctx context.Context, providerID string, iv interval.Interval, bookingID string) ([]string, error)
	// Release unlocks the slots still held by bookingID. Slots already
	// released, or now held by another booking, are left alone.
	Release(ctx context.Context, bookingID string, slotIDs []string) (int64, error)
	ListOpen(ctx context.Context, providerID string, window interval.Interval) ([]*model.Slot, error)
	FindOverlapping(ctx context.Context, providerID string, window interval.Interval) ([]*model.Slot, error)
	InsertMany(ctx context.Context, slots []*model.Slot) (int, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoSlotRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoSlotRepository(cfg *config.Config) SlotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoSlotRepository) Acquire(ctx context.Context, providerID string, iv interval.Interval, bookingID string) ([]string, error) {
	if mongo.SessionFromContext(ctx) == nil {
		var ids []string
		err := r.txManager.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			var err error
			ids, err = r.acquire(txCtx, providerID, iv, bookingID)
			return err
		})
		return ids, err
	}
	return r.acquire(ctx, providerID, iv, bookingID)
}

func (r *mongoSlotRepository) acquire(ctx context.Context, providerID string, iv interval.Interval, bookingID string) ([]string, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}

	slots, err := r.find(ctx, bson.M{
		"provider_id": providerID,
		"start_time":  bson.M{"$gte": iv.Start.UTC()},
		"end_time":    bson.M{"$lte": iv.End.UTC()},
	}, r.cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	if !Covers(slots, iv) {
		return nil, slotserrors.ErrNotAvailable
	}

	ids := make([]string, 0, len(slots))
	for _, s := range slots {
		if s.Locked {
			return nil, slotserrors.ErrNotAvailable
		}
		ids = append(ids, s.ID)
	}

	wctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.UpdateMany(wctx,
		bson.M{"_id": bson.M{"$in": ids}, "locked": false},
		bson.M{"$set": bson.M{"locked": true, "booking_id": bookingID}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock slots: %w", err)
	}
	if res.ModifiedCount != int64(len(ids)) {
		return nil, slotserrors.ErrNotAvailable
	}
	return ids, nil
}

func (r *mongoSlotRepository) Release(ctx context.Context, bookingID string, slotIDs []string) (int64, error) {
	if bookingID == "" {
		return 0, nil
	}
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"booking_id": bookingID}
	if len(slotIDs) > 0 {
		filter["_id"] = bson.M{"$in": slotIDs}
	}

	res, err := r.collection.UpdateMany(ctx, filter, bson.M{
		"$set":   bson.M{"locked": false},
		"$unset": bson.M{"booking_id": ""},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to release slots: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *mongoSlotRepository) ListOpen(ctx context.Context, providerID string, window interval.Interval) ([]*model.Slot, error) {
	return r.find(ctx, bson.M{
		"provider_id": providerID,
		"locked":      false,
		"start_time":  bson.M{"$gte": window.Start.UTC()},
		"end_time":    bson.M{"$lte": window.End.UTC()},
	}, r.cfg.ReadTimeout)
}

func (r *mongoSlotRepository) FindOverlapping(ctx context.Context, providerID string, window interval.Interval) ([]*model.Slot, error) {
	return r.find(ctx, bson.M{
		"provider_id": providerID,
		"start_time":  bson.M{"$lt": window.End.UTC()},
		"end_time":    bson.M{"$gt": window.Start.UTC()},
	}, r.cfg.ReadTimeout)
}

// InsertMany stores new slots and returns how many were written. Slots
// colliding with an existing (provider_id, start_time) are skipped.
func (r *mongoSlotRepository) InsertMany(ctx context.Context, slots []*model.Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]any, 0, len(slots))
	for _, s := range slots {
		if s.ID == "" {
			s.ID = primitive.NewObjectID().Hex()
		}
		s.StartTime = s.StartTime.UTC()
		s.EndTime = s.EndTime.UTC()
		s.CreatedAt = now
		docs = append(docs, s)
	}

	res, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(res.InsertedIDs), nil
	}

	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) {
		return 0, fmt.Errorf("failed to insert slots: %w", err)
	}
	for _, we := range bulkErr.WriteErrors {
		if we.Code != 11000 {
			return 0, fmt.Errorf("failed to insert slots: %w", err)
		}
	}
	if bulkErr.WriteConcernError != nil {
		return 0, fmt.Errorf("failed to insert slots: %w", err)
	}
	return len(slots) - len(bulkErr.WriteErrors), nil
}

func (r *mongoSlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func (r *mongoSlotRepository) find(ctx context.Context, filter bson.M, timeout time.Duration) ([]*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find slots: %w", err)
	}
	defer cursor.Close(ctx)

	slots := []*model.Slot{}
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}
	return slots, nil
}

// Covers reports whether slots, taken in start order, tile iv exactly: the
// first starts at iv.Start, each one starts where the previous ended and
// the last ends at iv.End.
func Covers(slots []*model.Slot, iv interval.Interval) bool {
	if len(slots) == 0 {
		return false
	}
	sorted := make([]*model.Slot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime.Before(sorted[j].StartTime) })

	cursor := iv.Start
	for _, s := range sorted {
		if !s.StartTime.Equal(cursor) || !s.EndTime.After(s.StartTime) {
			return false
		}
		cursor = s.EndTime
	}
	return cursor.Equal(iv.End)
}
