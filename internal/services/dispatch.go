package services

import (
	"context"

	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// Side effects run after the primary write has committed. Implementations
// hand the work to a queue or transport; errors are logged by callers and
// never fail the claim or donation that triggered them.

// ImpactDispatcher schedules an Impact Ledger increment.
type ImpactDispatcher interface {
	DispatchImpact(ctx context.Context, ownerID string, delta models.ImpactDelta, key string) error
}

// ReconcileScheduler schedules a listing status repair.
type ReconcileScheduler interface {
	ScheduleReconcile(ctx context.Context, listingID utils.SixID) error
}

// ClaimNotifier sends the notifications for an approved claim.
type ClaimNotifier interface {
	NotifyClaimApproved(ctx context.Context, listing *models.Listing, req *models.Request) error
}

// EventPublisher broadcasts listing lifecycle events to realtime clients.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ListingEvent) error
}

// SideEffects bundles the post-commit collaborators. Nil members are skipped.
type SideEffects struct {
	Impact    ImpactDispatcher
	Reconcile ReconcileScheduler
	Notifier  ClaimNotifier
	Events    EventPublisher
}
