package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Cedctf/foodbridge-sub000/internal/config"
	"github.com/Cedctf/foodbridge-sub000/internal/db"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// IImpactService is the Impact Ledger.
type IImpactService interface {
	// ApplyImpact atomically adds delta to ownerID's record, creating it if missing.
	// With a non-empty key the increment is applied at most once per key;
	// applied is false when the key had already been applied.
	ApplyImpact(ctx context.Context, ownerID string, delta models.ImpactDelta, key string) (record *models.Impact, applied bool, err error)
	// GetImpact returns ownerID's record, creating a zeroed one on first access.
	GetImpact(ctx context.Context, ownerID string) (*models.Impact, error)
}

const defaultImpactKeyWindow = 1000

type impactService struct {
	db        *mongo.Database
	keyWindow int
}

// NewImpactService creates a new ImpactService.
func NewImpactService(db *mongo.Database, cfg *config.Config) IImpactService {
	window := defaultImpactKeyWindow
	if cfg != nil && cfg.ImpactKeyWindow > 0 {
		window = cfg.ImpactKeyWindow
	}
	return &impactService{db: db, keyWindow: window}
}

func (s *impactService) collection() *mongo.Collection {
	return s.db.Collection(db.ImpactCollection)
}

func (s *impactService) ApplyImpact(ctx context.Context, ownerID string, delta models.ImpactDelta, key string) (*models.Impact, bool, error) {
	if ownerID == "" {
		return nil, false, &ValidationError{Fields: []string{"owner_id"}, Reason: "owner id is required"}
	}

	now := time.Now().UTC()
	filter := bson.M{"owner_id": ownerID}
	update := bson.M{
		"$inc": bson.M{
			"meals_provided":    delta.MealsProvided,
			"food_saved_lbs":    delta.FoodSavedLbs,
			"recipients_helped": delta.RecipientsHelped,
		},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"_id": utils.NewSixID(), "created_at": now},
	}
	if key != "" {
		// A record that already holds key does not match; the upsert then
		// collides with the unique owner index, which signals "already applied".
		filter["applied_keys"] = bson.M{"$ne": key}
		update["$push"] = bson.M{"applied_keys": bson.M{"$each": bson.A{key}, "$slice": -s.keyWindow}}
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var record models.Impact
	applied := false
	err := db.Try(func() error {
		err := s.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
		if err == nil {
			applied = true
			return nil
		}
		if key != "" && db.IsMongoDuplicateKeyError(err) {
			existing, findErr := s.findWithKey(ctx, ownerID, key)
			if findErr != nil {
				return findErr
			}
			if existing != nil {
				record = *existing
				return nil
			}
		}
		// A bare duplicate key here is two concurrent first inserts; retrying updates the winner's record.
		return err
	})
	if err != nil {
		return nil, false, storageError(err, "failed to apply impact for owner %s", ownerID)
	}
	return &record, applied, nil
}

func (s *impactService) findWithKey(ctx context.Context, ownerID, key string) (*models.Impact, error) {
	var record models.Impact
	err := s.collection().FindOne(ctx, bson.M{"owner_id": ownerID, "applied_keys": key}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up applied key %s: %w", key, err)
	}
	return &record, nil
}

func (s *impactService) GetImpact(ctx context.Context, ownerID string) (*models.Impact, error) {
	if ownerID == "" {
		return nil, &ValidationError{Fields: []string{"owner_id"}, Reason: "owner id is required"}
	}

	now := time.Now().UTC()
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":               utils.NewSixID(),
			"meals_provided":    0,
			"food_saved_lbs":    0,
			"recipients_helped": 0,
			"created_at":        now,
			"updated_at":        now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var record models.Impact
	err := db.Try(func() error {
		return s.collection().FindOneAndUpdate(ctx, bson.M{"owner_id": ownerID}, update, opts).Decode(&record)
	})
	if err != nil {
		return nil, storageError(err, "failed to load impact for owner %s", ownerID)
	}
	return &record, nil
}
