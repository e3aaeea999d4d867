package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Cedctf/foodbridge-sub000/internal/metrics"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// ClaimInput is a recipient's claim attempt.
type ClaimInput struct {
	FoodID         string `json:"food_id" validate:"required"`
	RequesterName  string `json:"requester_name" validate:"required,max=200"`
	RequesterEmail string `json:"requester_email" validate:"required,max=254"`
	RequesterPhone string `json:"requester_phone" validate:"omitempty,max=40"`
	Message        string `json:"message" validate:"omitempty,max=2000"`
	// RequesterID comes from the identity provider, never from the request body.
	RequesterID string `json:"-"`
}

func (in *ClaimInput) normalize() {
	in.FoodID = strings.TrimSpace(in.FoodID)
	in.RequesterName = strings.TrimSpace(in.RequesterName)
	in.RequesterEmail = NormalizeEmail(in.RequesterEmail)
	in.RequesterPhone = strings.TrimSpace(in.RequesterPhone)
	in.Message = strings.TrimSpace(in.Message)
}

// ClaimResult is returned for an approved claim.
type ClaimResult struct {
	Request      *models.Request
	Listing      *models.Listing
	AutoApproved bool
}

// IClaimService arbitrates claims: the first valid claim on a listing wins.
type IClaimService interface {
	SubmitClaim(ctx context.Context, in ClaimInput) (*ClaimResult, error)
}

const sideEffectTimeout = 5 * time.Second

type claimService struct {
	listings IListingService
	requests IRequestService
	effects  SideEffects
	now      func() time.Time
}

// NewClaimService creates a new ClaimService.
func NewClaimService(listings IListingService, requests IRequestService, effects SideEffects) IClaimService {
	return &claimService{
		listings: listings,
		requests: requests,
		effects:  effects,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *claimService) SubmitClaim(ctx context.Context, in ClaimInput) (*ClaimResult, error) {
	start := time.Now()
	result, err := s.arbitrate(ctx, in)
	metrics.ClaimDuration.Observe(time.Since(start).Seconds())
	metrics.ClaimsTotal.WithLabelValues(claimOutcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.afterClaim(ctx, result.Listing, result.Request)
	return result, nil
}

func (s *claimService) arbitrate(ctx context.Context, in ClaimInput) (*ClaimResult, error) {
	in.normalize()

	// 1. required fields
	if err := validate.Struct(in); err != nil {
		missing, invalid := fieldErrors(err)
		if len(missing) > 0 {
			return nil, &ValidationError{Fields: missing, Reason: "missing required field"}
		}
		return nil, &ValidationError{Fields: invalid, Reason: "invalid field"}
	}

	// 2. email format
	if !IsValidEmail(in.RequesterEmail) {
		return nil, &ValidationError{Fields: []string{"requester_email"}, Reason: "invalid email"}
	}

	foodID, err := utils.ParseSixID(in.FoodID)
	if err != nil {
		return nil, fmt.Errorf("food id %q: %w", in.FoodID, ErrInvalidIdentifier)
	}

	// 3. listing exists
	listing, err := s.listings.FindListingByID(ctx, foodID)
	if err != nil {
		return nil, err
	}

	// 4. no approved request yet
	if err := s.checkUnclaimed(ctx, listing, in); err != nil {
		return nil, err
	}

	// 5. no earlier request by this requester
	existing, err := s.requests.FindByFoodAndRequester(ctx, foodID, in.RequesterID, in.RequesterEmail)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateRequest
	}

	now := s.now()
	req := &models.Request{
		FoodID:         foodID,
		RequesterID:    in.RequesterID,
		RequesterName:  in.RequesterName,
		RequesterEmail: in.RequesterEmail,
		RequesterPhone: in.RequesterPhone,
		Message:        in.Message,
		Status:         models.RequestStatusApproved,
		CreatedAt:      now,
		ApprovedAt:     &now,
	}

	// The unique indexes behind CreateRequest are what actually serialise
	// concurrent claims; the checks above only make the common case cheap.
	if err := s.requests.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrDuplicateRequest) {
			return nil, s.explainConflict(ctx, foodID, in, err)
		}
		return nil, err
	}

	s.commitListing(ctx, listing, req, now)
	return &ClaimResult{Request: req, Listing: listing, AutoApproved: true}, nil
}

// checkUnclaimed rejects a claim on a listing that already has an approved
// request. A requester re-claiming their own approved listing is a duplicate.
func (s *claimService) checkUnclaimed(ctx context.Context, listing *models.Listing, in ClaimInput) error {
	approved, err := s.requests.FindApprovedByFood(ctx, listing.ID)
	if err != nil {
		return err
	}
	if approved != nil {
		if approved.SameRequester(in.RequesterID, in.RequesterEmail) {
			return ErrDuplicateRequest
		}
		return ErrAlreadyClaimed
	}
	if listing.IsClaimed() {
		return ErrAlreadyClaimed
	}
	return nil
}

// explainConflict turns an insert-time uniqueness violation into the
// conflict the requester should see, using the same rule as checkUnclaimed.
func (s *claimService) explainConflict(ctx context.Context, foodID utils.SixID, in ClaimInput, insertErr error) error {
	if errors.Is(insertErr, ErrDuplicateRequest) {
		return ErrDuplicateRequest
	}
	approved, err := s.requests.FindApprovedByFood(ctx, foodID)
	if err == nil && approved != nil && approved.SameRequester(in.RequesterID, in.RequesterEmail) {
		return ErrDuplicateRequest
	}
	return ErrAlreadyClaimed
}

// commitListing flips the listing to claimed. The approved request is
// authoritative, so a failure here leaves the claim approved and schedules
// a repair instead of failing the caller.
func (s *claimService) commitListing(ctx context.Context, listing *models.Listing, req *models.Request, at time.Time) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.listings.MarkClaimed(bg, listing.ID, req.ID, at); err != nil {
		slog.Error("failed to mark listing claimed; scheduling reconcile",
			"listing_id", listing.ID.String(), "request_id", req.ID.String(), "error", err)
		metrics.SideEffectFailures.WithLabelValues("listing_status").Inc()
		if s.effects.Reconcile != nil {
			if err := s.effects.Reconcile.ScheduleReconcile(bg, listing.ID); err != nil {
				slog.Error("failed to schedule listing reconcile", "listing_id", listing.ID.String(), "error", err)
				metrics.SideEffectFailures.WithLabelValues("reconcile_schedule").Inc()
			}
		}
	}
	listing.MarkClaimedBy(req.ID, at)
}

// afterClaim dispatches the best-effort side effects of an approved claim.
func (s *claimService) afterClaim(ctx context.Context, listing *models.Listing, req *models.Request) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if listing.OwnerID != "" && s.effects.Impact != nil {
		delta := models.ImpactDelta{RecipientsHelped: 1}
		if err := s.effects.Impact.DispatchImpact(bg, listing.OwnerID, delta, models.ClaimImpactKey(req.ID)); err != nil {
			slog.Error("failed to dispatch claim impact",
				"owner_id", listing.OwnerID, "request_id", req.ID.String(), "error", err)
			metrics.SideEffectFailures.WithLabelValues("impact").Inc()
		}
	}

	if s.effects.Notifier != nil {
		if err := s.effects.Notifier.NotifyClaimApproved(bg, listing, req); err != nil {
			slog.Warn("failed to queue claim notifications", "request_id", req.ID.String(), "error", err)
			metrics.SideEffectFailures.WithLabelValues("notification").Inc()
		}
	}

	if s.effects.Events != nil {
		event := models.NewListingEvent(models.EventListingClaimed, listing, s.now())
		if err := s.effects.Events.Publish(bg, event); err != nil {
			slog.Warn("failed to publish listing event", "listing_id", listing.ID.String(), "error", err)
			metrics.SideEffectFailures.WithLabelValues("event").Inc()
		}
	}
}

func claimOutcome(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return metrics.OutcomeApproved
	case errors.Is(err, ErrAlreadyClaimed):
		return metrics.OutcomeAlreadyClaimed
	case errors.Is(err, ErrDuplicateRequest):
		return metrics.OutcomeDuplicate
	case errors.As(err, &verr), errors.Is(err, ErrInvalidIdentifier):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
