package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/styl6559/storefront/internal/domain"
)

type MongoStore struct {
	carts     *mongo.Collection
	wishlists *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		carts:     db.Collection("carts"),
		wishlists: db.Collection("wishlists"),
	}
}

func (m *MongoStore) LoadCart(ctx context.Context, key string) (*domain.Cart, error) {
	filter := bson.M{"identity_key": key}
	res := m.carts.FindOne(ctx, filter)
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	// The document exists; a decode failure at this point means the
	// persisted data is unreadable, not that the store is down.
	var cart domain.Cart
	if err := res.Decode(&cart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedData, err)
	}

	return &cart, nil
}

func (m *MongoStore) SaveCart(ctx context.Context, key string, cart *domain.Cart) error {
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	cart.IdentityKey = key

	filter := bson.M{"identity_key": key}
	update := bson.M{"$set": bson.M{
		"identity_key": cart.IdentityKey,
		"items":        cart.Items,
		"created_at":   cart.CreatedAt,
		"updated_at":   cart.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.carts.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}

	return nil
}

func (m *MongoStore) DeleteCart(ctx context.Context, key string) error {
	result, err := m.carts.DeleteOne(ctx, bson.M{"identity_key": key})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoStore) LoadWishlist(ctx context.Context, key string) (*domain.Wishlist, error) {
	filter := bson.M{"identity_key": key}
	res := m.wishlists.FindOne(ctx, filter)
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrWishlistNotFound
		}
		return nil, fmt.Errorf("failed to load wishlist: %w", err)
	}

	var wishlist domain.Wishlist
	if err := res.Decode(&wishlist); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedData, err)
	}

	return &wishlist, nil
}

func (m *MongoStore) SaveWishlist(ctx context.Context, key string, wishlist *domain.Wishlist) error {
	now := time.Now()
	if wishlist.CreatedAt.IsZero() {
		wishlist.CreatedAt = now
	}
	wishlist.UpdatedAt = now
	wishlist.IdentityKey = key

	filter := bson.M{"identity_key": key}
	update := bson.M{"$set": bson.M{
		"identity_key": wishlist.IdentityKey,
		"items":        wishlist.Items,
		"created_at":   wishlist.CreatedAt,
		"updated_at":   wishlist.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.wishlists.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save wishlist: %w", err)
	}

	return nil
}

func (m *MongoStore) DeleteWishlist(ctx context.Context, key string) error {
	result, err := m.wishlists.DeleteOne(ctx, bson.M{"identity_key": key})
	if err != nil {
		return fmt.Errorf("failed to delete wishlist: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrWishlistNotFound
	}
	return nil
}

// CreateIndexes sets up the unique identity index and a 90 day TTL on
// stale collections for both the carts and wishlists collections.
func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "identity_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
		},
	}

	for _, coll := range []*mongo.Collection{m.carts, m.wishlists} {
		if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
