package models

import (
	"time"

	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// EventType names a listing lifecycle event relayed to realtime clients.
type EventType string

const (
	EventListingCreated EventType = "listing.created"
	EventListingClaimed EventType = "listing.claimed"
)

// ListingEvent is published whenever a listing is created or claimed.
type ListingEvent struct {
	Type       EventType     `json:"type"`
	ListingID  utils.SixID   `json:"listing_id"`
	Name       string        `json:"name,omitempty"`
	FoodType   FoodType      `json:"food_type,omitempty"`
	Status     ListingStatus `json:"status"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewListingEvent builds an event snapshot of l.
func NewListingEvent(t EventType, l *Listing, at time.Time) ListingEvent {
	return ListingEvent{
		Type:       t,
		ListingID:  l.ID,
		Name:       l.Name,
		FoodType:   l.FoodType,
		Status:     l.EffectiveStatus(),
		OccurredAt: at,
	}
}
