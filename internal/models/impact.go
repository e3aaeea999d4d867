package models

import (
	"time"

	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// Impact holds a donor's running totals.
type Impact struct {
	ID               utils.SixID `bson:"_id" json:"-"`
	OwnerID          string      `bson:"owner_id" json:"owner_id"`
	MealsProvided    int         `bson:"meals_provided" json:"meals_provided"`
	FoodSavedLbs     int         `bson:"food_saved_lbs" json:"food_saved_lbs"`
	RecipientsHelped int         `bson:"recipients_helped" json:"recipients_helped"`
	AppliedKeys      []string    `bson:"applied_keys,omitempty" json:"-"` // recent idempotency keys
	CreatedAt        time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `bson:"updated_at" json:"updated_at"`
}

// ImpactDelta is an increment applied to an Impact record. Zero fields are no-ops.
type ImpactDelta struct {
	MealsProvided    int `json:"meals_provided,omitempty"`
	FoodSavedLbs     int `json:"food_saved_lbs,omitempty"`
	RecipientsHelped int `json:"recipients_helped,omitempty"`
}

// IsZero reports whether applying the delta would change nothing.
func (d ImpactDelta) IsZero() bool {
	return d == ImpactDelta{}
}

// Idempotency key prefixes for ledger increments.
const (
	ImpactKeyClaimPrefix    = "claim:"
	ImpactKeyDonationPrefix = "donation:"
)

// ClaimImpactKey is the idempotency key for the recipientsHelped increment of an approved request.
func ClaimImpactKey(requestID utils.SixID) string {
	return ImpactKeyClaimPrefix + requestID.String()
}

// DonationImpactKey is the idempotency key for the donation-time increment of a listing.
func DonationImpactKey(listingID utils.SixID) string {
	return ImpactKeyDonationPrefix + listingID.String()
}
