package models

import (
	"math"
	"time"
)

// Freshness classifies a listing by days until expiry.
type Freshness string

const (
	FreshnessExpired      Freshness = "expired"
	FreshnessExpiresToday Freshness = "expires_today"
	FreshnessExpiringSoon Freshness = "expiring_soon"
	FreshnessFresh        Freshness = "fresh"
)

// ExpiringSoonDays is the last day count still classified as expiring soon.
const ExpiringSoonDays = 3

// DaysUntilExpiry is ceil((expiry - now) / 24h).
func DaysUntilExpiry(expiry, now time.Time) int {
	days := math.Ceil(expiry.Sub(now).Hours() / 24)
	if days == 0 {
		// math.Ceil can yield -0
		return 0
	}
	return int(days)
}

// ClassifyDays maps a day count to its Freshness.
func ClassifyDays(days int) Freshness {
	switch {
	case days < 0:
		return FreshnessExpired
	case days == 0:
		return FreshnessExpiresToday
	case days <= ExpiringSoonDays:
		return FreshnessExpiringSoon
	default:
		return FreshnessFresh
	}
}

// Classify returns the Freshness of an expiry date relative to now.
func Classify(expiry, now time.Time) Freshness {
	return ClassifyDays(DaysUntilExpiry(expiry, now))
}
