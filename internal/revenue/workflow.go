package revenue

import (
	"context"
	"math"
	"time"

	"integrity-core/internal/allocator"
	"integrity-core/internal/domain"
	"integrity-core/internal/unitbuilder"
	"integrity-core/pkg/errutil"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Activity name constants. Temporal registers a struct's exported methods
// under their method names by default (worker.RegisterActivity(activities)),
// so these must match Activities' method names exactly.
const (
	ActivityComputeAllocation = "ComputeAllocationActivity"
	ActivityCommitWindow      = "CommitWindowActivity"
	ActivityInsertShares      = "InsertSharesActivity"
	ActivityCompensate        = "CompensateActivity"
)

// WorkflowFinalizeRevenueWindow is the name FinalizeRevenueWindowWorkflow is
// registered and started under.
const WorkflowFinalizeRevenueWindow = "FinalizeRevenueWindowWorkflow"

// WorkflowInput is the serializable form of Input + Parameters a
// FinalizeRevenueWindowWorkflow execution is started with.
type WorkflowInput struct {
	Input  Input
	Params domain.Parameters
}

// AllocationPlan is ComputeAllocationActivity's result, carried across the
// activity boundary to CommitWindowActivity and InsertSharesActivity.
type AllocationPlan struct {
	GuardrailExhausted bool
	Reserve            int64
	CreatorPool        int64
	UnitResult         *unitbuilder.Result
	AllocResult        *allocator.Result
}

// CommitResult is CommitWindowActivity's result. Written is nil when the
// window already existed (idempotent re-run), signaling the workflow to
// skip InsertSharesActivity entirely.
type CommitResult struct {
	Window  *domain.RevenueWindow
	Written []domain.Transaction
}

// Activities wraps a Finalizer so each stage of finalize_revenue_window can
// be scheduled, retried, and compensated independently by Temporal, instead
// of folded into one hand-rolled gorm.DB.Transaction. internal/operator and
// internal/tasks still call Finalizer.Finalize directly for callers that
// want one fast synchronous round trip; this path is for callers that want
// a durable, inspectable saga with automatic per-step retry.
type Activities struct {
	f *Finalizer
}

func NewActivities(f *Finalizer) *Activities {
	return &Activities{f: f}
}

// ComputeAllocationActivity runs validation, the margin guardrail, the Unit
// Builder, and the Allocator. Its only storage writes are the Unit Builder's
// VideoAggregate upserts, which replace the same row on a re-run, so Temporal
// may retry it freely without any compensation concern.
func (a *Activities) ComputeAllocationActivity(ctx context.Context, in WorkflowInput) (*AllocationPlan, error) {
	f := a.f
	if !in.Input.Start.Before(in.Input.End) {
		return nil, errutil.Validation("window start must precede end", nil)
	}
	if in.Input.GrossCents < 0 || in.Input.TaxesCents < 0 || in.Input.FeesCents < 0 || in.Input.RefundsCents < 0 {
		return nil, errutil.Validation("revenue figures must be non-negative", nil)
	}

	rNet := in.Input.GrossCents - in.Input.TaxesCents - in.Input.FeesCents - in.Input.RefundsCents
	capByMargin := int64(math.Floor(math.Max(0, float64(rNet)-float64(in.Input.CostsEstCents)-in.Params.MarginTarget*float64(in.Input.GrossCents))))
	creatorPool := minInt64(roundCents(in.Params.PoolPct*float64(rNet)), capByMargin)
	reserve := roundCents(in.Params.RiskReservePct * float64(rNet))

	if creatorPool <= 0 {
		return &AllocationPlan{GuardrailExhausted: true, Reserve: reserve}, nil
	}

	result, err := f.builder.Build(ctx, in.Input.Start, in.Input.End, in.Params)
	if err != nil {
		return nil, err
	}

	adjustedPool := applyQualityPoolAdjustment(creatorPool, capByMargin, result.Videos, in.Params)

	creatorInputs, err := f.creatorInputs(ctx, result)
	if err != nil {
		return nil, err
	}

	allocResult := allocator.Allocate(creatorInputs, adjustedPool, in.Params)
	allocator.ApplyMinPayoutThreshold(allocResult, in.Params.MinPayoutCents)

	return &AllocationPlan{Reserve: reserve, CreatorPool: adjustedPool, UnitResult: result, AllocResult: allocResult}, nil
}

// CommitWindowActivity durably writes the RevenueWindow and, unless the
// margin guardrail already zeroed the pool, the ledger Transaction rows.
func (a *Activities) CommitWindowActivity(ctx context.Context, in WorkflowInput, plan *AllocationPlan) (*CommitResult, error) {
	if plan.GuardrailExhausted {
		summary, err := a.f.commitGuardrailWindow(ctx, in.Input, plan.Reserve, "cap_by_margin_exhausted")
		if err != nil {
			return nil, err
		}
		return &CommitResult{Window: summary.Window}, nil
	}

	window := &domain.RevenueWindow{
		ID:                a.f.node.Generate().String(),
		WindowStart:       in.Input.Start,
		WindowEnd:         in.Input.End,
		PaymentType:       in.Input.PaymentType,
		Status:            domain.RevenueWindowStatusFinalized,
		GrossRevenueCents: in.Input.GrossCents,
		TaxesCents:        in.Input.TaxesCents,
		FeesCents:         in.Input.FeesCents,
		RefundsCents:      in.Input.RefundsCents,
		PoolPct:           in.Params.PoolPct,
		MarginTarget:      in.Params.MarginTarget,
		PlatformFeePct:    in.Params.PlatformFeePct,
		RiskReservePct:    in.Params.RiskReservePct,
		CostsEstCents:     in.Input.CostsEstCents,
		CreatorPoolCents:  plan.CreatorPool,
		UnallocatedCents:  plan.AllocResult.UnallocatedCents,
		ReserveCents:      plan.Reserve,
		CreatedAt:         time.Now().UTC(),
	}

	window, written, err := a.f.commitWindowAndLedger(ctx, in.Input, window, plan.AllocResult)
	if err != nil {
		return nil, err
	}
	return &CommitResult{Window: window, Written: written}, nil
}

// InsertSharesActivity fans the committed creator pool out to per-video
// VideoRevShare rows. If this activity fails after CommitWindowActivity
// already succeeded, the workflow runs CompensateActivity to undo the
// ledger writes — the saga's compensating step.
func (a *Activities) InsertSharesActivity(ctx context.Context, windowID string, plan *AllocationPlan) error {
	shares := a.f.buildShares(windowID, plan.UnitResult.Videos, plan.AllocResult)
	if len(shares) == 0 {
		return nil
	}
	return a.f.insertShares(ctx, shares)
}

// CompensateActivity reverses CommitWindowActivity's ledger writes after
// InsertSharesActivity fails irrecoverably.
func (a *Activities) CompensateActivity(ctx context.Context, written []domain.Transaction, window *domain.RevenueWindow, failureReason string) error {
	return a.f.compensate(ctx, written, window, failureReason)
}

// FinalizeRevenueWindowWorkflow is the saga SPEC_FULL.md §4.8 describes:
// plan the allocation, commit the window and ledger, fan shares out, and
// run an explicit compensating delete if the fan-out fails after the
// ledger write already landed. Each activity retries independently per the
// configured RetryPolicy; the workflow itself survives worker restarts.
func FinalizeRevenueWindowWorkflow(ctx workflow.Context, in WorkflowInput) (*Summary, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var plan AllocationPlan
	if err := workflow.ExecuteActivity(ctx, ActivityComputeAllocation, in).Get(ctx, &plan); err != nil {
		return nil, err
	}

	var commit CommitResult
	if err := workflow.ExecuteActivity(ctx, ActivityCommitWindow, in, &plan).Get(ctx, &commit); err != nil {
		return nil, err
	}

	if plan.GuardrailExhausted || commit.Written == nil {
		return &Summary{Window: commit.Window}, nil
	}

	if err := workflow.ExecuteActivity(ctx, ActivityInsertShares, commit.Window.ID, &plan).Get(ctx, nil); err != nil {
		compensateCtx, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		_ = workflow.ExecuteActivity(
			workflow.WithActivityOptions(compensateCtx, ao),
			ActivityCompensate, commit.Written, commit.Window, err.Error(),
		).Get(compensateCtx, nil)
		return nil, err
	}

	distributed, excluded := distributionSummary(plan.AllocResult)
	return &Summary{
		Window:           commit.Window,
		CreatorsPaid:     countPaid(plan.AllocResult),
		DistributedCents: distributed,
		UnallocatedCents: plan.AllocResult.UnallocatedCents,
		ExcludedCreators: excluded,
	}, nil
}
