package models

import (
	"time"

	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// FoodType is the closed set of listing categories.
type FoodType string

const (
	FoodTypeProduce   FoodType = "produce"
	FoodTypeBakery    FoodType = "bakery"
	FoodTypeDairy     FoodType = "dairy"
	FoodTypePrepared  FoodType = "prepared"
	FoodTypeCanned    FoodType = "canned"
	FoodTypeFrozen    FoodType = "frozen"
	FoodTypeMeat      FoodType = "meat"
	FoodTypeBeverages FoodType = "beverages"
	FoodTypeOther     FoodType = "other"
)

// FoodTypes lists every valid FoodType in display order.
var FoodTypes = []FoodType{
	FoodTypeProduce, FoodTypeBakery, FoodTypeDairy, FoodTypePrepared, FoodTypeCanned,
	FoodTypeFrozen, FoodTypeMeat, FoodTypeBeverages, FoodTypeOther,
}

// Valid reports whether t is one of FoodTypes.
func (t FoodType) Valid() bool {
	for _, ft := range FoodTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// ListingStatus is the availability of a listing. The empty value is stored
// for listings that were never claimed and means available.
type ListingStatus string

const (
	ListingStatusAvailable ListingStatus = "available"
	ListingStatusClaimed   ListingStatus = "claimed"
)

// Listing is a donor's surplus-food post.
type Listing struct {
	ID              utils.SixID   `bson:"_id" json:"id"`
	Name            string        `bson:"name" json:"name"`
	FoodType        FoodType      `bson:"food_type" json:"food_type"`
	Quantity        int           `bson:"quantity" json:"quantity"`
	Description     string        `bson:"description,omitempty" json:"description,omitempty"`
	ExpiryDate      time.Time     `bson:"expiry_date" json:"expiry_date"`
	LocationAddress string        `bson:"location_address" json:"location_address"`
	ImageURL        string        `bson:"image_url,omitempty" json:"image_url,omitempty"`
	ContactEmail    string        `bson:"contact_email,omitempty" json:"-"` // donor notifications only
	OwnerID         string        `bson:"owner_id,omitempty" json:"owner_id,omitempty"`
	Status          ListingStatus `bson:"status,omitempty" json:"status"`
	ClaimedAt       *time.Time    `bson:"claimed_at,omitempty" json:"claimed_at,omitempty"`
	ClaimedBy       *utils.SixID  `bson:"claimed_by,omitempty" json:"claimed_by,omitempty"`
	CreatedAt       time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at" json:"updated_at"`
}

// IsClaimed reports whether the listing has been claimed.
func (l Listing) IsClaimed() bool {
	return l.Status == ListingStatusClaimed
}

// EffectiveStatus maps the unset status to available.
func (l Listing) EffectiveStatus() ListingStatus {
	if l.Status == "" {
		return ListingStatusAvailable
	}
	return l.Status
}

// MarkClaimedBy sets the claimed fields in memory. Used when an approved
// request is found for a listing whose stored status lags behind.
func (l *Listing) MarkClaimedBy(requestID utils.SixID, at time.Time) {
	l.Status = ListingStatusClaimed
	l.ClaimedAt = &at
	l.ClaimedBy = &requestID
}
