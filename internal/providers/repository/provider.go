package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	providerserrors "readerhub/internal/providers/errors"
	"readerhub/pkg/config"
	mongotx "readerhub/pkg/db/mongo"
	"readerhub/pkg/model"
	"readerhub/pkg/sealer"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	CollectionName = "Providers"
)

type ProviderRepository interface {
	Create(ctx context.Context, provider *model.Provider) error
	FindByID(ctx context.Context, id string) (*model.Provider, error)
	UpdateFeeds(ctx context.Context, id string, feeds []string) error
}

type mongoProviderRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	sealer     *sealer.Sealer
}

// NewMongoProviderRepository stores calendar feed URLs sealed when
// FeedSealingKey is configured. Feed URLs usually embed a private token.
func NewMongoProviderRepository(cfg *config.Config) ProviderRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	repo := &mongoProviderRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
	if cfg.FeedSealingKey != "" {
		s, err := sealer.New(cfg.FeedSealingKey)
		if err != nil {
			cfg.Log.Fatal("Invalid feed sealing key", "error", err)
		}
		repo.sealer = s
	}
	return repo
}

func (r *mongoProviderRepository) sealFeeds(feeds []string) ([]string, error) {
	if feeds == nil {
		return []string{}, nil
	}
	if r.sealer == nil {
		return feeds, nil
	}
	return r.sealer.SealAll(feeds)
}

func (r *mongoProviderRepository) openFeeds(feeds []string) ([]string, error) {
	if r.sealer == nil || len(feeds) == 0 {
		return feeds, nil
	}
	return r.sealer.OpenAll(feeds)
}

func (r *mongoProviderRepository) Create(ctx context.Context, provider *model.Provider) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if provider.ID == "" {
		provider.ID = primitive.NewObjectID().Hex()
	}
	if provider.CalendarFeeds == nil {
		provider.CalendarFeeds = []string{}
	}
	provider.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	feeds, err := r.sealFeeds(provider.CalendarFeeds)
	if err != nil {
		return fmt.Errorf("failed to seal calendar feeds: %w", err)
	}
	doc := *provider
	doc.CalendarFeeds = feeds

	if _, err := r.collection.InsertOne(ctx, &doc); err != nil {
		if mongotx.IsDuplicateKey(err) {
			return providerserrors.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

func (r *mongoProviderRepository) FindByID(ctx context.Context, id string) (*model.Provider, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, fmt.Errorf("%w: %s", providerserrors.ErrInvalidID, id)
	}

	var provider model.Provider
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&provider)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, providerserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find provider: %w", err)
	}

	if provider.CalendarFeeds, err = r.openFeeds(provider.CalendarFeeds); err != nil {
		return nil, fmt.Errorf("failed to open calendar feeds of provider %s: %w", id, err)
	}
	return &provider, nil
}

func (r *mongoProviderRepository) UpdateFeeds(ctx context.Context, id string, feeds []string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return fmt.Errorf("%w: %s", providerserrors.ErrInvalidID, id)
	}
	feeds, err := r.sealFeeds(feeds)
	if err != nil {
		return fmt.Errorf("failed to seal calendar feeds: %w", err)
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"calendar_feeds": feeds}})
	if err != nil {
		return fmt.Errorf("failed to update provider feeds: %w", err)
	}
	if res.MatchedCount == 0 {
		return providerserrors.ErrNotFound
	}
	return nil
}
