package handlers

import (
	"time"

	"github.com/Cedctf/foodbridge-sub000/internal/models"
)

// ListingView is a listing as returned by the API, with its derived expiry fields.
type ListingView struct {
	models.Listing
	Status          models.ListingStatus `json:"status"`
	DaysUntilExpiry int                  `json:"days_until_expiry"`
	Freshness       models.Freshness     `json:"freshness"`
}

func newListingView(l *models.Listing, now time.Time) ListingView {
	days := models.DaysUntilExpiry(l.ExpiryDate, now)
	return ListingView{
		Listing:         *l,
		Status:          l.EffectiveStatus(),
		DaysUntilExpiry: days,
		Freshness:       models.ClassifyDays(days),
	}
}

func newListingViews(listings []models.Listing, now time.Time) []ListingView {
	views := make([]ListingView, len(listings))
	for i := range listings {
		views[i] = newListingView(&listings[i], now)
	}
	return views
}
