package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Cedctf/foodbridge-sub000/internal/config"
	"github.com/Cedctf/foodbridge-sub000/internal/db"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// ListingFilter narrows FindListings. Zero fields do not filter.
type ListingFilter struct {
	SearchText     string
	FoodType       models.FoodType
	IncludeClaimed bool
	OwnerID        string
	// Before keeps only listings after the cursor in newest-first order.
	Before *ListingCursor
	Sort   SortOrder
	Offset int
	Limit  int
}

// ListingCursor is a position in newest-first order. CreatedAt alone is not
// unique, so the id breaks ties.
type ListingCursor struct {
	CreatedAt time.Time
	ID        utils.SixID
}

// CursorAt returns the cursor positioned on l.
func CursorAt(l models.Listing) *ListingCursor {
	return &ListingCursor{CreatedAt: l.CreatedAt, ID: l.ID}
}

// IListingService is the Listing Store.
type IListingService interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error)
	// FindListings returns one page of listings in filter.Sort order.
	FindListings(ctx context.Context, filter ListingFilter) ([]models.Listing, error)
	// CountListings counts every match of filter, ignoring Offset and Limit.
	CountListings(ctx context.Context, filter ListingFilter) (int, error)
	// MarkClaimed moves an available listing to claimed. It succeeds idempotently
	// when the listing is already claimed by requestID.
	MarkClaimed(ctx context.Context, listingID, requestID utils.SixID, at time.Time) error
}

// listingService implements IListingService.
type listingService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewListingService creates a new ListingService.
func NewListingService(db *mongo.Database, cfg *config.Config) IListingService {
	return &listingService{db: db, cfg: cfg}
}

// CreateListing assigns the id and timestamps and inserts the listing.
func (s *listingService) CreateListing(ctx context.Context, listing *models.Listing) error {
	collection := s.db.Collection(db.ListingsCollection)
	now := time.Now().UTC()
	listing.CreatedAt = now
	listing.UpdatedAt = now

	err := db.TryNewID(func() error {
		listing.ID = utils.NewSixID()
		_, insertErr := collection.InsertOne(ctx, listing)
		return insertErr
	})
	if err != nil {
		return storageError(err, "failed to insert listing (last attempted ID: %s)", listing.ID)
	}
	return nil
}

// FindListingByID returns the listing or a *NotFoundError.
func (s *listingService) FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.Collection(db.ListingsCollection).FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{Entity: "listing", ID: listingID.String()}
		}
		return nil, storageError(err, "error finding listing %s", listingID)
	}
	return &listing, nil
}

// FindListings queries listings matching filter. Sorting, skipping and
// limiting all happen in Mongo so pages reach every match.
func (s *listingService) FindListings(ctx context.Context, filter ListingFilter) ([]models.Listing, error) {
	query := listingQuery(filter)

	opts := options.Find().SetSort(listingSort(filter.Sort))
	if filter.Sort == SortName {
		opts.SetCollation(&options.Collation{Locale: "en", Strength: 2})
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	limit := filter.Limit
	if limit <= 0 && s.cfg != nil {
		limit = s.cfg.BrowseMaxResults
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(db.ListingsCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, storageError(err, "failed to query listings")
	}
	defer cursor.Close(ctx)

	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, storageError(err, "failed to decode listings")
	}
	return listings, nil
}

func (s *listingService) CountListings(ctx context.Context, filter ListingFilter) (int, error) {
	n, err := s.db.Collection(db.ListingsCollection).CountDocuments(ctx, listingQuery(filter))
	if err != nil {
		return 0, storageError(err, "failed to count listings")
	}
	return int(n), nil
}

// listingSort maps a SortOrder to a sort document. Ties fall back to newest
// first, then to the id, so paging is deterministic.
func listingSort(order SortOrder) bson.D {
	newest := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	switch order {
	case SortOldest:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	case SortExpiryAsc:
		return append(bson.D{{Key: "expiry_date", Value: 1}}, newest...)
	case SortExpiryDesc:
		return append(bson.D{{Key: "expiry_date", Value: -1}}, newest...)
	case SortName:
		return append(bson.D{{Key: "name", Value: 1}}, newest...)
	default:
		return newest
	}
}

// listingQuery translates a ListingFilter into a Mongo filter document.
func listingQuery(filter ListingFilter) bson.M {
	query := bson.M{}
	if !filter.IncludeClaimed {
		// absent status means available
		query["status"] = bson.M{"$ne": models.ListingStatusClaimed}
	}
	if filter.FoodType != "" {
		query["food_type"] = filter.FoodType
	}
	if filter.OwnerID != "" {
		query["owner_id"] = filter.OwnerID
	}
	var and bson.A
	if c := filter.Before; c != nil {
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"created_at": bson.M{"$lt": c.CreatedAt}},
			bson.M{"created_at": c.CreatedAt, "_id": bson.M{"$lt": c.ID}},
		}})
	}
	if filter.SearchText != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(filter.SearchText), "$options": "i"}
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
			bson.M{"location_address": pattern},
		}})
	}
	if len(and) > 0 {
		query["$and"] = and
	}
	return query
}

// MarkClaimed is a compare-and-swap on the listing status.
func (s *listingService) MarkClaimed(ctx context.Context, listingID, requestID utils.SixID, at time.Time) error {
	collection := s.db.Collection(db.ListingsCollection)

	filter := bson.M{
		"_id":    listingID,
		"status": bson.M{"$ne": models.ListingStatusClaimed},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     models.ListingStatusClaimed,
			"claimed_at": at,
			"claimed_by": requestID,
			"updated_at": time.Now().UTC(),
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return storageError(err, "db error claiming listing %s", listingID)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Nothing matched: find out why.
	listing, err := s.FindListingByID(ctx, listingID)
	if err != nil {
		return err
	}
	if listing.ClaimedBy != nil && *listing.ClaimedBy == requestID {
		return nil
	}
	claimedBy := "<unknown>"
	if listing.ClaimedBy != nil {
		claimedBy = listing.ClaimedBy.String()
	}
	return fmt.Errorf("listing %s already claimed by request %s: %w", listingID, claimedBy, ErrAlreadyClaimed)
}
