package services

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Cedctf/foodbridge-sub000/internal/metrics"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
)

// DonationInput is a donor's new listing.
type DonationInput struct {
	Name            string `json:"name" validate:"required,max=200"`
	FoodType        string `json:"food_type" validate:"required,food_type"`
	Quantity        int    `json:"quantity" validate:"gt=0"`
	Description     string `json:"description" validate:"omitempty,max=2000"`
	ExpiryDate      string `json:"expiry_date" validate:"required"`
	LocationAddress string `json:"location_address" validate:"required,max=500"`
	ImageURL        string `json:"image_url" validate:"omitempty,url"`
	ContactEmail    string `json:"contact_email" validate:"omitempty,email"`
	OwnerID         string `json:"-"`
}

func (in *DonationInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.FoodType = strings.ToLower(strings.TrimSpace(in.FoodType))
	in.Description = strings.TrimSpace(in.Description)
	in.ExpiryDate = strings.TrimSpace(in.ExpiryDate)
	in.LocationAddress = strings.TrimSpace(in.LocationAddress)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.ContactEmail = NormalizeEmail(in.ContactEmail)
}

// IDonationService creates listings and credits the donor's impact.
type IDonationService interface {
	SubmitDonation(ctx context.Context, in DonationInput) (*models.Listing, error)
}

// Bounds of the per-donation food saved estimate, in pounds.
const (
	minFoodSavedLbs = 1
	maxFoodSavedLbs = 10
)

type donationService struct {
	listings    IListingService
	effects     SideEffects
	estimateLbs func() int
}

// NewDonationService creates a new DonationService.
func NewDonationService(listings IListingService, effects SideEffects) IDonationService {
	return &donationService{
		listings: listings,
		effects:  effects,
		estimateLbs: func() int {
			return minFoodSavedLbs + rand.IntN(maxFoodSavedLbs-minFoodSavedLbs+1)
		},
	}
}

// ParseExpiryDate accepts RFC 3339 timestamps or plain dates (midnight UTC).
func ParseExpiryDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func (s *donationService) SubmitDonation(ctx context.Context, in DonationInput) (*models.Listing, error) {
	in.normalize()

	var missing, invalid []string
	if err := validate.Struct(in); err != nil {
		missing, invalid = fieldErrors(err)
	}
	expiry, err := ParseExpiryDate(in.ExpiryDate)
	if err != nil && in.ExpiryDate != "" {
		invalid = append(invalid, "expiry_date")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: append(missing, invalid...), Reason: "missing required field"}
	}
	if len(invalid) > 0 {
		return nil, &ValidationError{Fields: invalid, Reason: "invalid field"}
	}

	listing := &models.Listing{
		Name:            in.Name,
		FoodType:        models.FoodType(in.FoodType),
		Quantity:        in.Quantity,
		Description:     in.Description,
		ExpiryDate:      expiry,
		LocationAddress: in.LocationAddress,
		ImageURL:        in.ImageURL,
		ContactEmail:    in.ContactEmail,
		OwnerID:         in.OwnerID,
		Status:          models.ListingStatusAvailable,
	}
	if err := s.listings.CreateListing(ctx, listing); err != nil {
		return nil, err
	}
	metrics.DonationsTotal.Inc()

	s.afterDonation(ctx, listing)
	return listing, nil
}

func (s *donationService) afterDonation(ctx context.Context, listing *models.Listing) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if listing.OwnerID != "" && s.effects.Impact != nil {
		delta := models.ImpactDelta{
			MealsProvided: listing.Quantity,
			FoodSavedLbs:  s.estimateLbs(),
		}
		if err := s.effects.Impact.DispatchImpact(bg, listing.OwnerID, delta, models.DonationImpactKey(listing.ID)); err != nil {
			slog.Error("failed to dispatch donation impact",
				"owner_id", listing.OwnerID, "listing_id", listing.ID.String(), "error", err)
			metrics.SideEffectFailures.WithLabelValues("impact").Inc()
		}
	}

	if s.effects.Events != nil {
		event := models.NewListingEvent(models.EventListingCreated, listing, listing.CreatedAt)
		if err := s.effects.Events.Publish(bg, event); err != nil {
			slog.Warn("failed to publish listing event", "listing_id", listing.ID.String(), "error", err)
			metrics.SideEffectFailures.WithLabelValues("event").Inc()
		}
	}
}
