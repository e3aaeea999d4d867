package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Cedctf/foodbridge-sub000/internal/metrics"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// IReconcileService repairs listings left available after their claim was approved.
type IReconcileService interface {
	// ReconcileListing reports whether the listing needed a repair.
	ReconcileListing(ctx context.Context, listingID utils.SixID) (bool, error)
	// ReconcileAll sweeps every available listing and returns the number repaired.
	ReconcileAll(ctx context.Context) (int, error)
}

const reconcilePageSize = 200

type reconcileService struct {
	listings IListingService
	requests IRequestService
}

// NewReconcileService creates a new ReconcileService.
func NewReconcileService(listings IListingService, requests IRequestService) IReconcileService {
	return &reconcileService{listings: listings, requests: requests}
}

func (s *reconcileService) ReconcileListing(ctx context.Context, listingID utils.SixID) (bool, error) {
	listing, err := s.listings.FindListingByID(ctx, listingID)
	if err != nil {
		return false, err
	}
	if listing.IsClaimed() {
		return false, nil
	}

	req, err := s.requests.FindApprovedByFood(ctx, listingID)
	if err != nil || req == nil {
		return false, err
	}
	return s.repair(ctx, listing, req)
}

func (s *reconcileService) repair(ctx context.Context, listing *models.Listing, req *models.Request) (bool, error) {
	if err := s.listings.MarkClaimed(ctx, listing.ID, req.ID, approvedAt(req)); err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			// Claimed by a different request meanwhile; nothing left to repair here.
			slog.Warn("listing claimed by a different request than the approved one",
				"listing_id", listing.ID.String(), "request_id", req.ID.String())
			return false, nil
		}
		return false, err
	}
	metrics.ListingRepairs.Inc()
	slog.Info("repaired listing status from approved request",
		"listing_id", listing.ID.String(), "request_id", req.ID.String())
	return true, nil
}

func (s *reconcileService) ReconcileAll(ctx context.Context) (int, error) {
	repaired := 0
	filter := ListingFilter{Limit: reconcilePageSize}

	for {
		page, err := s.listings.FindListings(ctx, filter)
		if err != nil {
			return repaired, err
		}
		if len(page) == 0 {
			return repaired, nil
		}

		ids := make([]utils.SixID, len(page))
		for i := range page {
			ids[i] = page[i].ID
		}
		approved, err := s.requests.FindApprovedByFoods(ctx, ids)
		if err != nil {
			return repaired, err
		}

		for i := range page {
			req, ok := approved[page[i].ID]
			if !ok {
				continue
			}
			fixed, err := s.repair(ctx, &page[i], &req)
			if err != nil {
				return repaired, err
			}
			if fixed {
				repaired++
			}
		}

		if len(page) < reconcilePageSize {
			return repaired, nil
		}
		filter.Before = CursorAt(page[len(page)-1])
	}
}
