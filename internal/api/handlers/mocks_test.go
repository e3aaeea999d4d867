package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/services"
	"github.com/Cedctf/foodbridge-sub000/internal/storage"
)

// --- Mocks ---

type MockDonationService struct {
	mock.Mock
}

func (m *MockDonationService) SubmitDonation(ctx context.Context, in services.DonationInput) (*models.Listing, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

type MockClaimService struct {
	mock.Mock
}

func (m *MockClaimService) SubmitClaim(ctx context.Context, in services.ClaimInput) (*services.ClaimResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ClaimResult), args.Error(1)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Browse(ctx context.Context, opts services.BrowseOptions) ([]models.Listing, int, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.Listing), args.Int(1), args.Error(2)
}

func (m *MockQueryService) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockQueryService) ListRequests(ctx context.Context, listingID string) ([]models.Request, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Request), args.Error(1)
}

func (m *MockQueryService) ListUserRequests(ctx context.Context, userID string) ([]models.Request, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Request), args.Error(1)
}

type MockImpactService struct {
	mock.Mock
}

func (m *MockImpactService) ApplyImpact(ctx context.Context, ownerID string, delta models.ImpactDelta, key string) (*models.Impact, bool, error) {
	args := m.Called(ctx, ownerID, delta, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Impact), args.Bool(1), args.Error(2)
}

func (m *MockImpactService) GetImpact(ctx context.Context, ownerID string) (*models.Impact, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Impact), args.Error(1)
}

type MockS3Storage struct {
	mock.Mock
}

func (m *MockS3Storage) GeneratePresignedPutURL(ctx context.Context, ownerID, filename, contentType string) (*storage.Upload, error) {
	args := m.Called(ctx, ownerID, filename, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Upload), args.Error(1)
}

type MockAssistantService struct {
	mock.Mock
}

func (m *MockAssistantService) Reply(ctx context.Context, message string, history []services.ChatTurn) (string, error) {
	args := m.Called(ctx, message, history)
	return args.String(0), args.Error(1)
}

// stubSubscriber hands out a prepared channel.
type stubSubscriber struct {
	events chan models.ListingEvent
	err    error
}

func (s *stubSubscriber) Subscribe(ctx context.Context) (<-chan models.ListingEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}
