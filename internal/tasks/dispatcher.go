package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Cedctf/foodbridge-sub000/internal/config"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/services"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// IEnqueuer is the part of *asynq.Client the dispatcher needs.
type IEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// reconcileDedupWindow collapses repeated repair requests for one listing.
const reconcileDedupWindow = time.Minute

// Dispatcher hands post-commit side effects to the task queue.
type Dispatcher struct {
	client IEnqueuer
	cfg    *config.Config
}

var (
	_ services.ImpactDispatcher   = (*Dispatcher)(nil)
	_ services.ReconcileScheduler = (*Dispatcher)(nil)
	_ services.ClaimNotifier      = (*Dispatcher)(nil)
)

func NewDispatcher(client IEnqueuer, cfg *config.Config) *Dispatcher {
	return &Dispatcher{client: client, cfg: cfg}
}

func (d *Dispatcher) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	if _, err := d.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), opts...); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return nil
}

// DispatchImpact enqueues an impact increment. The idempotency key doubles as
// the task id, so dispatching the same key twice enqueues one task.
func (d *Dispatcher) DispatchImpact(ctx context.Context, ownerID string, delta models.ImpactDelta, key string) error {
	opts := []asynq.Option{asynq.Queue(QueueCritical), asynq.MaxRetry(d.cfg.ImpactMaxRetry)}
	if key != "" {
		opts = append(opts, asynq.TaskID(key))
	}
	err := d.enqueue(ctx, TypeImpactApply, ImpactTaskPayload{OwnerID: ownerID, Delta: delta, Key: key}, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (d *Dispatcher) ScheduleReconcile(ctx context.Context, listingID utils.SixID) error {
	err := d.enqueue(ctx, TypeListingReconcile, ReconcileTaskPayload{ListingID: listingID.String()},
		asynq.Queue(QueueDefault), asynq.Unique(reconcileDedupWindow))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// NotifyClaimApproved emails the requester and, when a contact address is on
// the listing, the donor.
func (d *Dispatcher) NotifyClaimApproved(ctx context.Context, listing *models.Listing, req *models.Request) error {
	data := ClaimEmailData(listing, req)
	var errs []error
	errs = append(errs, d.enqueue(ctx, TypeEmailDelivery, EmailTaskPayload{
		To:         req.RequesterEmail,
		TemplateID: services.TemplateClaimApproved,
		Data:       data,
	}, asynq.Queue(QueueDefault)))

	if listing.ContactEmail != "" {
		errs = append(errs, d.enqueue(ctx, TypeEmailDelivery, EmailTaskPayload{
			To:         listing.ContactEmail,
			TemplateID: services.TemplateListingClaimed,
			Data:       data,
		}, asynq.Queue(QueueDefault)))
	}
	return errors.Join(errs...)
}

// ClaimEmailData is the template data shared by both claim notifications.
// Every key is always present; templates run with missingkey=error.
func ClaimEmailData(listing *models.Listing, req *models.Request) map[string]any {
	return map[string]any{
		"ListingID":       listing.ID.String(),
		"ListingName":     listing.Name,
		"Quantity":        listing.Quantity,
		"LocationAddress": listing.LocationAddress,
		"ExpiryDate":      listing.ExpiryDate.Format(time.DateOnly),
		"RequesterName":   req.RequesterName,
		"RequesterEmail":  req.RequesterEmail,
		"RequesterPhone":  req.RequesterPhone,
		"Message":         req.Message,
	}
}
