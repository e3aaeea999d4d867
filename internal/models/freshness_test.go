package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Boundaries(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	day := 24 * time.Hour

	cases := []struct {
		name   string
		expiry time.Time
		days   int
		want   Freshness
	}{
		{"now", now, 0, FreshnessExpiresToday},
		{"one day ago", now.Add(-day), -1, FreshnessExpired},
		{"two hours ago", now.Add(-2 * time.Hour), 0, FreshnessExpiresToday},
		{"in one hour", now.Add(time.Hour), 1, FreshnessExpiringSoon},
		{"in three days", now.Add(3 * day), 3, FreshnessExpiringSoon},
		{"in three days and a minute", now.Add(3*day + time.Minute), 4, FreshnessFresh},
		{"in four days", now.Add(4 * day), 4, FreshnessFresh},
		{"in ten days", now.Add(10 * day), 10, FreshnessFresh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.days, DaysUntilExpiry(tc.expiry, now))
			assert.Equal(t, tc.want, Classify(tc.expiry, now))
		})
	}
}

func TestFoodType_Valid(t *testing.T) {
	for _, ft := range FoodTypes {
		assert.True(t, ft.Valid(), ft)
	}
	assert.False(t, FoodType("gravel").Valid())
	assert.False(t, FoodType("").Valid())
}

func TestRequest_SameRequester(t *testing.T) {
	r := &Request{RequesterID: "u1", RequesterEmail: "a@example.com"}
	assert.True(t, r.SameRequester("u1", "other@example.com"))
	assert.True(t, r.SameRequester("", "a@example.com"))
	assert.False(t, r.SameRequester("u2", "b@example.com"))
	assert.False(t, r.SameRequester("", ""))
}
