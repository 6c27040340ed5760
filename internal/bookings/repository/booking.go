package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "readerhub/internal/bookings/errors"
	"readerhub/pkg/config"
	mongotx "readerhub/pkg/db/mongo"
	"readerhub/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// CompareAndSetStatus moves the booking from one status to another and
	// returns the updated record. ErrStatusMismatch if it is no longer in from.
	CompareAndSetStatus(ctx context.Context, id, from, to string) (*model.Booking, error)
	// ExpireIfStale moves a pending booking created before cutoff to expired.
	ExpireIfStale(ctx context.Context, id string, cutoff time.Time) (*model.Booking, error)
	Delete(ctx context.Context, id string) error
	// FindReclaimable lists pending bookings created before cutoff together
	// with terminal records whose reclaim never completed, ordered by
	// (created_at, id) and starting after the cursor.
	FindReclaimable(ctx context.Context, cutoff time.Time, after model.ReclaimCursor, limit int) ([]*model.Booking, error)
	SetPaymentRef(ctx context.Context, id, ref string) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if booking.ID == "" {
		booking.ID = mongotx.NewID()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	booking.CreatedAt = booking.CreatedAt.UTC().Truncate(time.Millisecond)
	booking.StartTime = booking.StartTime.UTC()
	booking.EndTime = booking.EndTime.UTC()

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if !mongotx.ValidID(id) {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) CompareAndSetStatus(ctx context.Context, id, from, to string) (*model.Booking, error) {
	return r.transition(ctx, id, bson.M{"_id": id, "status": from}, to)
}

func (r *mongoBookingRepository) ExpireIfStale(ctx context.Context, id string, cutoff time.Time) (*model.Booking, error) {
	return r.transition(ctx, id, bson.M{
		"_id":        id,
		"status":     model.BookingPending,
		"created_at": bson.M{"$lt": cutoff.UTC()},
	}, model.BookingExpired)
}

func (r *mongoBookingRepository) transition(ctx context.Context, id string, filter bson.M, to string) (*model.Booking, error) {
	if !mongotx.ValidID(id) {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	wctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOneAndUpdate(wctx, filter,
		bson.M{"$set": bson.M{"status": to}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&booking)
	if err == nil {
		return &booking, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	// Nothing matched. Tell a missing booking apart from one that moved on.
	if _, findErr := r.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, bookingserrors.ErrStatusMismatch
}

func (r *mongoBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if res.DeletedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

func (r *mongoBookingRepository) FindReclaimable(ctx context.Context, cutoff time.Time, after model.ReclaimCursor, limit int) ([]*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"$or": bson.A{
		bson.M{"status": model.BookingPending, "created_at": bson.M{"$lt": cutoff.UTC()}},
		bson.M{"status": bson.M{"$in": bson.A{model.BookingCanceled, model.BookingExpired}}},
	}}
	if after.ID != "" {
		filter = bson.M{"$and": bson.A{filter, bson.M{"$or": bson.A{
			bson.M{"created_at": bson.M{"$gt": after.CreatedAt.UTC()}},
			bson.M{"created_at": after.CreatedAt.UTC(), "_id": bson.M{"$gt": after.ID}},
		}}}}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find reclaimable bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []*model.Booking{}
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *mongoBookingRepository) SetPaymentRef(ctx context.Context, id, ref string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"payment_ref": ref}})
	if err != nil {
		return fmt.Errorf("failed to set payment reference: %w", err)
	}
	if res.MatchedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
