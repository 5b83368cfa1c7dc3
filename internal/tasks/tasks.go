// Package tasks defines the asynq task types the worker process handles:
// scheduled revenue window finalization, kept separate from the synchronous
// HTTP path in internal/operator so a slow or retried run never blocks a
// caller of finalize_revenue_window.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"integrity-core/internal/domain"
	"integrity-core/internal/revenue"
	"integrity-core/pkg/errutil"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypeFinalizeRevenueWindow is the asynq task type a scheduler (cron,
// operator action) enqueues to run finalize_revenue_window asynchronously.
const TypeFinalizeRevenueWindow = "revenue:window:finalize"

// FinalizeRevenueWindowPayload is TypeFinalizeRevenueWindow's task payload.
type FinalizeRevenueWindowPayload struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	PaymentType string    `json:"payment_type"`

	GrossCents    int64 `json:"gross_cents"`
	TaxesCents    int64 `json:"taxes_cents"`
	FeesCents     int64 `json:"fees_cents"`
	RefundsCents  int64 `json:"refunds_cents"`
	CostsEstCents int64 `json:"costs_est_cents"`
}

// NewFinalizeRevenueWindowTask builds the asynq.Task an enqueuer submits.
func NewFinalizeRevenueWindowTask(payload FinalizeRevenueWindowPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeFinalizeRevenueWindow, data), nil
}

// Handler processes the worker's queue of revenue-domain tasks.
type Handler struct {
	finalizer *revenue.Finalizer
	params    domain.Parameters
}

func NewHandler(finalizer *revenue.Finalizer) *Handler {
	return &Handler{finalizer: finalizer, params: domain.DefaultParameters()}
}

// HandleFinalizeRevenueWindow retries on transient storage errors (asynq's
// default retry/backoff) and gives up on validation or margin-guardrail
// outcomes, which are not retryable by re-running the same inputs.
func (h *Handler) HandleFinalizeRevenueWindow(ctx context.Context, t *asynq.Task) error {
	var payload FinalizeRevenueWindowPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	summary, err := h.finalizer.Finalize(ctx, revenue.Input{
		Start:         payload.WindowStart,
		End:           payload.WindowEnd,
		PaymentType:   payload.PaymentType,
		GrossCents:    payload.GrossCents,
		TaxesCents:    payload.TaxesCents,
		FeesCents:     payload.FeesCents,
		RefundsCents:  payload.RefundsCents,
		CostsEstCents: payload.CostsEstCents,
	}, h.params)
	if err != nil {
		if errutil.IsTransientStorage(err) {
			return err
		}
		zap.L().Error("revenue window finalize task failed permanently",
			zap.String("payment_type", payload.PaymentType), zap.Error(err))
		return asynq.SkipRetry
	}

	zap.L().Info("revenue window finalized",
		zap.String("payment_type", payload.PaymentType),
		zap.Int64("distributed_cents", summary.DistributedCents),
		zap.Int("creators_paid", summary.CreatorsPaid))
	return nil
}
