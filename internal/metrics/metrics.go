package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "foodbridge"

// Claim outcomes.
const (
	OutcomeApproved       = "approved"
	OutcomeAlreadyClaimed = "already_claimed"
	OutcomeDuplicate      = "duplicate_request"
	OutcomeInvalid        = "invalid"
	OutcomeNotFound       = "not_found"
	OutcomeError          = "error"
)

var (
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claims_total",
		Help:      "Claim attempts by arbitration outcome.",
	}, []string{"outcome"})

	ClaimDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "claim_duration_seconds",
		Help:      "Time spent arbitrating a claim, side effects excluded.",
		Buckets:   prometheus.DefBuckets,
	})

	DonationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "donations_total",
		Help:      "Listings created.",
	})

	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "side_effect_failures_total",
		Help:      "Best-effort side effects that failed to dispatch or apply.",
	}, []string{"effect"})

	ListingRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listing_status_repairs_total",
		Help:      "Listings whose status was repaired from an approved request.",
	})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_processed_total",
		Help:      "Background tasks processed by type and result.",
	}, []string{"type", "result"})
)
