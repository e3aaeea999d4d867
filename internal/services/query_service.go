package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// SortOrder orders browse results.
type SortOrder string

const (
	SortNewest     SortOrder = "newest"
	SortOldest     SortOrder = "oldest"
	SortExpiryAsc  SortOrder = "expiry_asc"
	SortExpiryDesc SortOrder = "expiry_desc"
	SortName       SortOrder = "name"
)

// Valid reports whether o is a known sort order. The empty order means newest.
func (o SortOrder) Valid() bool {
	switch o {
	case "", SortNewest, SortOldest, SortExpiryAsc, SortExpiryDesc, SortName:
		return true
	}
	return false
}

// BrowseOptions are the filters of browseListings.
type BrowseOptions struct {
	SearchText     string
	FoodType       string
	IncludeClaimed bool
	Sort           SortOrder
	Limit          int
	Offset         int
}

// IListingQueryService is the read side over listings.
type IListingQueryService interface {
	// Browse returns one page of matching listings and the number of matches.
	Browse(ctx context.Context, opts BrowseOptions) ([]models.Listing, int, error)
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	// ListRequests returns the requests made against a listing.
	ListRequests(ctx context.Context, listingID string) ([]models.Request, error)
	ListUserRequests(ctx context.Context, userID string) ([]models.Request, error)
}

type listingQueryService struct {
	listings  IListingService
	requests  IRequestService
	reconcile ReconcileScheduler
}

// NewListingQueryService creates a new ListingQueryService. reconcile may be nil.
func NewListingQueryService(listings IListingService, requests IRequestService, reconcile ReconcileScheduler) IListingQueryService {
	return &listingQueryService{listings: listings, requests: requests, reconcile: reconcile}
}

func (s *listingQueryService) Browse(ctx context.Context, opts BrowseOptions) ([]models.Listing, int, error) {
	opts.SearchText = strings.TrimSpace(opts.SearchText)
	foodType := models.FoodType(strings.ToLower(strings.TrimSpace(opts.FoodType)))

	var invalid []string
	if foodType != "" && !foodType.Valid() {
		invalid = append(invalid, "food_type")
	}
	if !opts.Sort.Valid() {
		invalid = append(invalid, "sort")
	}
	if opts.Limit < 0 {
		invalid = append(invalid, "limit")
	}
	if opts.Offset < 0 {
		invalid = append(invalid, "offset")
	}
	if len(invalid) > 0 {
		return nil, 0, &ValidationError{Fields: invalid, Reason: "invalid filter"}
	}

	filter := ListingFilter{
		SearchText:     opts.SearchText,
		FoodType:       foodType,
		IncludeClaimed: opts.IncludeClaimed,
		Sort:           opts.Sort,
		Offset:         opts.Offset,
		Limit:          opts.Limit,
	}
	total, err := s.listings.CountListings(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if opts.Offset >= total {
		return []models.Listing{}, total, nil
	}

	page, err := s.listings.FindListings(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	kept, err := s.overlay(ctx, page, opts.IncludeClaimed)
	if err != nil {
		return nil, 0, err
	}
	// Listings dropped by the overlay are claimed and pending repair.
	return kept, total - (len(page) - len(kept)), nil
}

// overlay treats an approved request as authoritative over a listing's own
// status. Disagreeing listings are reported claimed, scheduled for repair and,
// unless includeClaimed, dropped.
func (s *listingQueryService) overlay(ctx context.Context, listings []models.Listing, includeClaimed bool) ([]models.Listing, error) {
	var unclaimed []utils.SixID
	for i := range listings {
		if !listings[i].IsClaimed() {
			unclaimed = append(unclaimed, listings[i].ID)
		}
	}
	if len(unclaimed) == 0 {
		return listings, nil
	}

	approved, err := s.requests.FindApprovedByFoods(ctx, unclaimed)
	if err != nil {
		return nil, err
	}
	if len(approved) == 0 {
		return listings, nil
	}

	kept := listings[:0]
	for _, l := range listings {
		if req, ok := approved[l.ID]; ok && !l.IsClaimed() {
			l.MarkClaimedBy(req.ID, approvedAt(&req))
			s.scheduleRepair(ctx, l.ID)
			if !includeClaimed {
				continue
			}
		}
		kept = append(kept, l)
	}
	return kept, nil
}

func (s *listingQueryService) scheduleRepair(ctx context.Context, listingID utils.SixID) {
	if s.reconcile == nil {
		return
	}
	if err := s.reconcile.ScheduleReconcile(context.WithoutCancel(ctx), listingID); err != nil {
		slog.Warn("failed to schedule listing reconcile", "listing_id", listingID.String(), "error", err)
	}
}

func (s *listingQueryService) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	listingID, err := parseListingID(id)
	if err != nil {
		return nil, err
	}
	listing, err := s.listings.FindListingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.IsClaimed() {
		return listing, nil
	}

	req, err := s.requests.FindApprovedByFood(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if req != nil {
		listing.MarkClaimedBy(req.ID, approvedAt(req))
		s.scheduleRepair(ctx, listingID)
	}
	return listing, nil
}

func (s *listingQueryService) ListRequests(ctx context.Context, listingID string) ([]models.Request, error) {
	foodID, err := parseListingID(listingID)
	if err != nil {
		return nil, err
	}
	return s.requests.FindByFood(ctx, foodID)
}

func (s *listingQueryService) ListUserRequests(ctx context.Context, userID string) ([]models.Request, error) {
	return s.requests.FindByUser(ctx, userID)
}

func parseListingID(id string) (utils.SixID, error) {
	listingID, err := utils.ParseSixID(id)
	if err != nil {
		return utils.SixID{}, fmt.Errorf("listing id %q: %w", id, ErrInvalidIdentifier)
	}
	return listingID, nil
}

func approvedAt(req *models.Request) time.Time {
	if req.ApprovedAt != nil {
		return *req.ApprovedAt
	}
	return req.CreatedAt
}

// SortListings sorts listings in place. Ties keep their input order.
func SortListings(listings []models.Listing, order SortOrder) {
	var less func(a, b *models.Listing) bool
	switch order {
	case SortOldest:
		less = func(a, b *models.Listing) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortExpiryAsc:
		less = func(a, b *models.Listing) bool { return a.ExpiryDate.Before(b.ExpiryDate) }
	case SortExpiryDesc:
		less = func(a, b *models.Listing) bool { return a.ExpiryDate.After(b.ExpiryDate) }
	case SortName:
		less = func(a, b *models.Listing) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	default:
		less = func(a, b *models.Listing) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	sort.SliceStable(listings, func(i, j int) bool { return less(&listings[i], &listings[j]) })
}
