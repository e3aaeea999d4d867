package db

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Index names. Duplicate-key errors are attributed to a constraint by these names.
const (
	IndexRequestsApprovedPerFood   = "food_id_approved_unique"
	IndexRequestsFoodEmail         = "food_id_requester_email_unique"
	IndexRequestsFoodRequesterID   = "food_id_requester_id_unique"
	IndexRequestsByRequester       = "requester_id_created_at"
	IndexListingsStatusCreated     = "status_created_at"
	IndexListingsOwner             = "owner_id"
	IndexImpactOwner               = "owner_id_unique"
	IndexEmailTemplatesIDAndLocale = "template_id_locale_unique"
)

var collectionIndexes = map[string][]mongo.IndexModel{
	RequestsCollection: {
		{
			// At most one approved request per listing.
			Keys: bson.D{{Key: "food_id", Value: 1}},
			Options: options.Index().
				SetName(IndexRequestsApprovedPerFood).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "approved"}),
		},
		{
			Keys:    bson.D{{Key: "food_id", Value: 1}, {Key: "requester_email", Value: 1}},
			Options: options.Index().SetName(IndexRequestsFoodEmail).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "food_id", Value: 1}, {Key: "requester_id", Value: 1}},
			Options: options.Index().
				SetName(IndexRequestsFoodRequesterID).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"requester_id": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "requester_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName(IndexRequestsByRequester),
		},
	},
	ListingsCollection: {
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName(IndexListingsStatusCreated),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetName(IndexListingsOwner),
		},
	},
	ImpactCollection: {
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetName(IndexImpactOwner).SetUnique(true),
		},
	},
	EmailTemplatesCollection: {
		{
			Keys:    bson.D{{Key: "template_id", Value: 1}, {Key: "locale", Value: 1}},
			Options: options.Index().SetName(IndexEmailTemplatesIDAndLocale).SetUnique(true),
		},
	},
}

// EnsureIndexes creates every index the stores rely on. Creating an existing
// index with identical options is a no-op in MongoDB.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	for collection, models := range collectionIndexes {
		names, err := database.Collection(collection).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
		slog.Debug("indexes ensured", "collection", collection, "indexes", names)
	}
	return nil
}
