package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/Cedctf/foodbridge-sub000/internal/cache"
	"github.com/Cedctf/foodbridge-sub000/internal/config"
	"github.com/Cedctf/foodbridge-sub000/internal/email"
	"github.com/Cedctf/foodbridge-sub000/internal/metrics"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/services"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// Task types.
const (
	TypeImpactApply      = "impact:apply"
	TypeListingReconcile = "listing:reconcile"
	TypeReconcileSweep   = "listing:reconcile_sweep"
	TypeEmailDelivery    = "email:deliver"
)

// Queues.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(cache.AsynqOpt(rdb))
}

// --- Payloads ---

type ImpactTaskPayload struct {
	OwnerID string             `json:"owner_id"`
	Delta   models.ImpactDelta `json:"delta"`
	Key     string             `json:"key"`
}

type ReconcileTaskPayload struct {
	ListingID string `json:"listing_id"`
}

type EmailTaskPayload struct {
	To         string         `json:"to"`
	TemplateID string         `json:"template_id"`
	Locale     string         `json:"locale,omitempty"`
	Data       map[string]any `json:"data"`
}

// --- Task Server (Processing tasks) ---

// TaskProcessor holds the dependencies of the task handlers.
type TaskProcessor struct {
	cfg                  *config.Config
	emailSender          email.Sender
	emailTemplateService services.IEmailTemplateService
	impactService        services.IImpactService
	reconcileService     services.IReconcileService
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	emailTemplateService services.IEmailTemplateService,
	impactService services.IImpactService,
	reconcileService services.IReconcileService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:                  cfg,
		emailSender:          emailSender,
		emailTemplateService: emailTemplateService,
		impactService:        impactService,
		reconcileService:     reconcileService,
	}
}

// NewServeMux registers every handler of p.
func NewServeMux(p *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(countResults)
	mux.HandleFunc(TypeImpactApply, p.HandleImpactApplyTask)
	mux.HandleFunc(TypeListingReconcile, p.HandleListingReconcileTask)
	mux.HandleFunc(TypeReconcileSweep, p.HandleReconcileSweepTask)
	mux.HandleFunc(TypeEmailDelivery, p.HandleEmailDeliveryTask)
	return mux
}

// SetupServer configures the asynq server and its mux. The caller runs it.
func SetupServer(rdb *redis.Client, p *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		cache.AsynqOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				slog.Error("task failed", "type", task.Type(), "payload", string(task.Payload()),
					"retry", retried, "max_retry", maxRetry, "error", err)
			}),
		},
	)
	slog.Info("registered background task handlers")
	return srv, NewServeMux(p)
}

// NewScheduler registers the periodic reconciliation sweep.
func NewScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(cache.AsynqOpt(rdb), &asynq.SchedulerOpts{Location: time.UTC})
	schedule := fmt.Sprintf("@every %s", cfg.ReconcileInterval)
	entryID, err := scheduler.Register(schedule, asynq.NewTask(TypeReconcileSweep, nil),
		asynq.Queue(QueueLow), asynq.Unique(cfg.ReconcileInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to register reconcile sweep: %w", err)
	}
	slog.Info("scheduled reconcile sweep", "every", cfg.ReconcileInterval.String(), "entry_id", entryID)
	return scheduler, nil
}

func countResults(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		err := next.ProcessTask(ctx, t)
		result := "ok"
		switch {
		case errors.Is(err, asynq.SkipRetry):
			result = "dropped"
		case err != nil:
			result = "error"
		}
		metrics.TasksProcessed.WithLabelValues(t.Type(), result).Inc()
		return err
	})
}

// --- Task Handlers ---

// HandleImpactApplyTask applies an impact increment. Redelivery is safe: the
// ledger ignores keys it has already applied.
func (p *TaskProcessor) HandleImpactApplyTask(ctx context.Context, t *asynq.Task) error {
	var payload ImpactTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal impact task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.OwnerID == "" || payload.Delta.IsZero() {
		return fmt.Errorf("impact task without owner or delta: %w", asynq.SkipRetry)
	}

	record, applied, err := p.impactService.ApplyImpact(ctx, payload.OwnerID, payload.Delta, payload.Key)
	if err != nil {
		return err
	}
	if !applied {
		slog.Info("impact already applied", "owner_id", payload.OwnerID, "key", payload.Key)
		return nil
	}
	slog.Info("impact applied", "owner_id", payload.OwnerID, "key", payload.Key,
		"meals_provided", record.MealsProvided, "food_saved_lbs", record.FoodSavedLbs,
		"recipients_helped", record.RecipientsHelped)
	return nil
}

// HandleListingReconcileTask repairs one listing's status.
func (p *TaskProcessor) HandleListingReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload ReconcileTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal reconcile task payload: %v: %w", err, asynq.SkipRetry)
	}
	listingID, err := utils.ParseSixID(payload.ListingID)
	if err != nil {
		return fmt.Errorf("invalid listing ID %q in payload: %w", payload.ListingID, asynq.SkipRetry)
	}

	repaired, err := p.reconcileService.ReconcileListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	slog.Debug("listing reconciled", "listing_id", payload.ListingID, "repaired", repaired)
	return nil
}

// HandleReconcileSweepTask repairs every listing whose status lags its approved request.
func (p *TaskProcessor) HandleReconcileSweepTask(ctx context.Context, _ *asynq.Task) error {
	repaired, err := p.reconcileService.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("reconcile sweep stopped after %d repairs: %w", repaired, err)
	}
	if repaired > 0 {
		slog.Warn("reconcile sweep repaired listings", "count", repaired)
	}
	return nil
}

// HandleEmailDeliveryTask renders a template and sends it.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	locale := payload.Locale
	if locale == "" {
		locale = services.DefaultLocale
	}

	subject, body, err := p.emailTemplateService.Render(ctx, payload.TemplateID, locale, payload.Data)
	if err != nil {
		slog.Error("failed to render email template", "template", payload.TemplateID, "locale", locale, "error", err)
		return fmt.Errorf("email template %s unusable: %v: %w", payload.TemplateID, err, asynq.SkipRetry)
	}

	err = p.emailSender.Send(ctx, email.Message{
		To:         []string{payload.To},
		Subject:    subject,
		Body:       body,
		TemplateID: payload.TemplateID,
	})
	if err != nil {
		return err
	}
	slog.Info("email task processed", "to", payload.To, "template", payload.TemplateID)
	return nil
}
