package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Cedctf/foodbridge-sub000/internal/db"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// IRequestService is the Request Store. Its lookups are the exact query shapes
// claim arbitration depends on; callers must not substitute ad hoc queries.
type IRequestService interface {
	// CreateRequest inserts req. Unique index violations are reported as
	// ErrAlreadyClaimed or ErrDuplicateRequest.
	CreateRequest(ctx context.Context, req *models.Request) error
	FindRequestByID(ctx context.Context, requestID utils.SixID) (*models.Request, error)
	FindByFood(ctx context.Context, foodID utils.SixID) ([]models.Request, error)
	// FindApprovedByFood returns nil, nil when the listing has no approved request.
	FindApprovedByFood(ctx context.Context, foodID utils.SixID) (*models.Request, error)
	// FindApprovedByFoods returns the approved request of each listing that has one.
	FindApprovedByFoods(ctx context.Context, foodIDs []utils.SixID) (map[utils.SixID]models.Request, error)
	// FindByFoodAndRequester matches on requesterID (when set) or email. Returns nil, nil when absent.
	FindByFoodAndRequester(ctx context.Context, foodID utils.SixID, requesterID, email string) (*models.Request, error)
	FindByUser(ctx context.Context, userID string) ([]models.Request, error)
}

type requestService struct {
	db *mongo.Database
}

// NewRequestService creates a new RequestService.
func NewRequestService(db *mongo.Database) IRequestService {
	return &requestService{db: db}
}

// NormalizeEmail is the canonical form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *requestService) collection() *mongo.Collection {
	return s.db.Collection(db.RequestsCollection)
}

func (s *requestService) CreateRequest(ctx context.Context, req *models.Request) error {
	req.RequesterEmail = NormalizeEmail(req.RequesterEmail)
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	err := db.TryNewID(func() error {
		req.ID = utils.NewSixID()
		_, insertErr := s.collection().InsertOne(ctx, req)
		return insertErr
	})
	if err == nil {
		return nil
	}

	switch db.DuplicateKeyIndex(err) {
	case db.IndexRequestsApprovedPerFood:
		return ErrAlreadyClaimed
	case db.IndexRequestsFoodEmail, db.IndexRequestsFoodRequesterID:
		return ErrDuplicateRequest
	}
	return storageError(err, "failed to insert request for listing %s", req.FoodID)
}

func (s *requestService) FindRequestByID(ctx context.Context, requestID utils.SixID) (*models.Request, error) {
	var req models.Request
	err := s.collection().FindOne(ctx, bson.M{"_id": requestID}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{Entity: "request", ID: requestID.String()}
		}
		return nil, storageError(err, "error finding request %s", requestID)
	}
	return &req, nil
}

func (s *requestService) FindByFood(ctx context.Context, foodID utils.SixID) ([]models.Request, error) {
	return s.find(ctx, bson.M{"food_id": foodID}, "requests for listing "+foodID.String())
}

func (s *requestService) FindByUser(ctx context.Context, userID string) ([]models.Request, error) {
	if userID == "" {
		return []models.Request{}, nil
	}
	return s.find(ctx, bson.M{"requester_id": userID}, "requests of user "+userID)
}

func (s *requestService) find(ctx context.Context, filter bson.M, what string) ([]models.Request, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, storageError(err, "failed to query %s", what)
	}
	defer cursor.Close(ctx)

	requests := []models.Request{}
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, storageError(err, "failed to decode %s", what)
	}
	return requests, nil
}

func (s *requestService) findOne(ctx context.Context, filter bson.M, what string) (*models.Request, error) {
	var req models.Request
	err := s.collection().FindOne(ctx, filter).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, storageError(err, "failed to query %s", what)
	}
	return &req, nil
}

func (s *requestService) FindApprovedByFood(ctx context.Context, foodID utils.SixID) (*models.Request, error) {
	filter := bson.M{"food_id": foodID, "status": models.RequestStatusApproved}
	return s.findOne(ctx, filter, "approved request for listing "+foodID.String())
}

func (s *requestService) FindApprovedByFoods(ctx context.Context, foodIDs []utils.SixID) (map[utils.SixID]models.Request, error) {
	approved := make(map[utils.SixID]models.Request)
	if len(foodIDs) == 0 {
		return approved, nil
	}

	filter := bson.M{
		"food_id": bson.M{"$in": foodIDs},
		"status":  models.RequestStatusApproved,
	}
	cursor, err := s.collection().Find(ctx, filter)
	if err != nil {
		return nil, storageError(err, "failed to query approved requests")
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var req models.Request
		if err := cursor.Decode(&req); err != nil {
			return nil, storageError(err, "failed to decode approved request")
		}
		approved[req.FoodID] = req
	}
	if err := cursor.Err(); err != nil {
		return nil, storageError(err, "failed to iterate approved requests")
	}
	return approved, nil
}

func (s *requestService) FindByFoodAndRequester(ctx context.Context, foodID utils.SixID, requesterID, email string) (*models.Request, error) {
	email = NormalizeEmail(email)
	or := bson.A{bson.M{"requester_email": email}}
	if requesterID != "" {
		or = append(or, bson.M{"requester_id": requesterID})
	}
	filter := bson.M{"food_id": foodID, "$or": or}
	return s.findOne(ctx, filter, "request of requester for listing "+foodID.String())
}
