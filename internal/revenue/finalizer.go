// Package revenue drives the end-to-end window run: computing the creator
// pool from gross revenue under the margin guardrail, invoking the Unit
// Builder and Allocator, and recording the RevenueWindow and per-video
// shares (§4.8 of SPEC_FULL.md).
package revenue

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"integrity-core/internal/allocator"
	"integrity-core/internal/domain"
	"integrity-core/internal/unitbuilder"
	"integrity-core/pkg/archive"
	"integrity-core/pkg/db/option"
	"integrity-core/pkg/errutil"
	"integrity-core/pkg/lock"
	"integrity-core/pkg/repository"
	"integrity-core/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Input carries the gross-revenue figures a finalize_revenue_window call
// is invoked with, all in cents (§4.8).
type Input struct {
	Start       time.Time
	End         time.Time
	PaymentType string
	DryRun      bool

	GrossCents    int64
	TaxesCents    int64
	FeesCents     int64
	RefundsCents  int64
	CostsEstCents int64
}

// Summary is the RevenueWindowSummary the finalize_revenue_window
// operation returns (§6).
type Summary struct {
	Window           *domain.RevenueWindow
	CreatorsPaid     int
	DistributedCents int64
	UnallocatedCents int64
	ExcludedCreators []string
	ReceiptObjectKey string
	AlreadyFinalized bool
}

// Finalizer orchestrates one finalize_revenue_window run.
type Finalizer struct {
	db       *gorm.DB
	node     *snowflake.Node
	builder  *unitbuilder.Builder
	ledger   *allocator.Ledger
	locker   *lock.Locker
	sequence sequence.Generator
	archiver *archive.Archiver // nil disables receipt archival

	windows repository.Repository[domain.RevenueWindow]
	shares  repository.Repository[domain.VideoRevShare]
	users   repository.Repository[domain.User]
}

func NewFinalizer(db *gorm.DB, node *snowflake.Node, builder *unitbuilder.Builder, ledger *allocator.Ledger, locker *lock.Locker, seq sequence.Generator, archiver *archive.Archiver) *Finalizer {
	return &Finalizer{
		db:       db,
		node:     node,
		builder:  builder,
		ledger:   ledger,
		locker:   locker,
		sequence: seq,
		archiver: archiver,

		windows: repository.ProvideStore[domain.RevenueWindow](db),
		shares:  repository.ProvideStore[domain.VideoRevShare](db),
		users:   repository.ProvideStore[domain.User](db),
	}
}

// Finalize runs the full §4.8 pipeline.
func (f *Finalizer) Finalize(ctx context.Context, in Input, params domain.Parameters) (*Summary, error) {
	if !in.Start.Before(in.End) {
		return nil, errutil.Validation("window start must precede end", nil)
	}
	if in.GrossCents < 0 || in.TaxesCents < 0 || in.FeesCents < 0 || in.RefundsCents < 0 {
		return nil, errutil.Validation("revenue figures must be non-negative", nil)
	}

	startKey := in.Start.UTC().Format(time.RFC3339)
	endKey := in.End.UTC().Format(time.RFC3339)

	if existing, err := f.windows.FindOne(ctx, &domain.RevenueWindow{
		WindowStart: in.Start, WindowEnd: in.End, PaymentType: in.PaymentType,
	}); err != nil {
		return nil, errutil.TransientStorage("failed to check window idempotency", err)
	} else if existing != nil {
		return f.summaryFromExisting(ctx, existing, true), nil
	}

	if !in.DryRun {
		w, err := f.locker.Acquire(ctx, startKey, endKey, in.PaymentType)
		if err != nil {
			if err == lock.ErrAlreadyHeld {
				return nil, errutil.Conflict("another run already holds this window", err)
			}
			return nil, errutil.TransientStorage("failed to acquire window lock", err)
		}
		defer func() {
			if rErr := w.Release(context.Background()); rErr != nil {
				zap.L().Warn("failed to release window lock", zap.Error(rErr))
			}
		}()
	}

	rNet := in.GrossCents - in.TaxesCents - in.FeesCents - in.RefundsCents
	capByMargin := int64(math.Floor(math.Max(0, float64(rNet)-float64(in.CostsEstCents)-params.MarginTarget*float64(in.GrossCents))))
	creatorPool := minInt64(roundCents(params.PoolPct*float64(rNet)), capByMargin)
	reserve := roundCents(params.RiskReservePct * float64(rNet))

	if creatorPool <= 0 {
		return f.commitGuardrailWindow(ctx, in, reserve, "cap_by_margin_exhausted")
	}

	result, err := f.builder.Build(ctx, in.Start, in.End, params)
	if err != nil {
		return nil, err
	}

	adjustedPool := applyQualityPoolAdjustment(creatorPool, capByMargin, result.Videos, params)

	creatorInputs, err := f.creatorInputs(ctx, result)
	if err != nil {
		return nil, err
	}

	allocResult := allocator.Allocate(creatorInputs, adjustedPool, params)
	allocator.ApplyMinPayoutThreshold(allocResult, params.MinPayoutCents)

	return f.commit(ctx, in, rNet, capByMargin, adjustedPool, reserve, result, allocResult, params)
}

func (f *Finalizer) creatorInputs(ctx context.Context, result *unitbuilder.Result) ([]allocator.CreatorInput, error) {
	inputs := make([]allocator.CreatorInput, 0, len(result.CreatorUnits))
	for creatorID, units := range result.CreatorUnits {
		user, err := f.users.FindOne(ctx, &domain.User{ID: creatorID})
		if err != nil {
			return nil, errutil.TransientStorage("failed to fetch creator", err)
		}

		in := allocator.CreatorInput{
			CreatorID: creatorID,
			Units:     units,
			Integrity: result.CreatorIntegrity[creatorID],
		}
		if user != nil {
			in.LikelyBot = user.LikelyBot
			in.CreatorTrustScore = user.CreatorTrustScore
			in.KYCLevel = user.KYCLevel
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func (f *Finalizer) commitGuardrailWindow(ctx context.Context, in Input, reserve int64, reason string) (*Summary, error) {
	meta, _ := json.Marshal(domain.RevenueWindowMeta{Reason: reason})

	window := &domain.RevenueWindow{
		ID:                f.node.Generate().String(),
		WindowStart:       in.Start,
		WindowEnd:         in.End,
		PaymentType:       in.PaymentType,
		Status:            domain.RevenueWindowStatusFinalized,
		GrossRevenueCents: in.GrossCents,
		TaxesCents:        in.TaxesCents,
		FeesCents:         in.FeesCents,
		RefundsCents:      in.RefundsCents,
		CostsEstCents:     in.CostsEstCents,
		CreatorPoolCents:  0,
		UnallocatedCents:  0,
		ReserveCents:      reserve,
		Meta:              meta,
		CreatedAt:         time.Now().UTC(),
	}

	if in.DryRun {
		return &Summary{Window: window}, nil
	}

	if err := f.windows.Create(ctx, window); err != nil {
		return nil, errutil.TransientStorage("failed to record guardrail window", err)
	}

	return &Summary{Window: window}, nil
}

func (f *Finalizer) commit(ctx context.Context, in Input, rNet, capByMargin, creatorPool, reserve int64, unitResult *unitbuilder.Result, allocResult *allocator.Result, params domain.Parameters) (*Summary, error) {
	distributed, excluded := distributionSummary(allocResult)

	window := &domain.RevenueWindow{
		ID:                f.node.Generate().String(),
		WindowStart:       in.Start,
		WindowEnd:         in.End,
		PaymentType:       in.PaymentType,
		Status:            domain.RevenueWindowStatusFinalized,
		GrossRevenueCents: in.GrossCents,
		TaxesCents:        in.TaxesCents,
		FeesCents:         in.FeesCents,
		RefundsCents:      in.RefundsCents,
		PoolPct:           params.PoolPct,
		MarginTarget:      params.MarginTarget,
		PlatformFeePct:    params.PlatformFeePct,
		RiskReservePct:    params.RiskReservePct,
		CostsEstCents:     in.CostsEstCents,
		CreatorPoolCents:  creatorPool,
		UnallocatedCents:  allocResult.UnallocatedCents,
		ReserveCents:      reserve,
		CreatedAt:         time.Now().UTC(),
	}

	if in.DryRun {
		return &Summary{
			Window:           window,
			CreatorsPaid:     countPaid(allocResult),
			DistributedCents: distributed,
			UnallocatedCents: allocResult.UnallocatedCents,
			ExcludedCreators: excluded,
		}, nil
	}

	window, written, err := f.commitWindowAndLedger(ctx, in, window, allocResult)
	if err != nil {
		return nil, err
	}

	// written is nil when commitWindowAndLedger hit an already-finalized
	// window (idempotent re-run): ledger entries and shares for it were
	// already inserted by the run that won the race, so skip both here.
	if written != nil {
		shares := f.buildShares(window.ID, unitResult.Videos, allocResult)
		if len(shares) > 0 {
			if err := f.insertShares(ctx, shares); err != nil {
				if errutil.IsTransientStorage(err) {
					if compErr := f.compensate(ctx, written, window, err.Error()); compErr != nil {
						return nil, errutil.PartialCommit("compensation failed, operator repair required", compErr)
					}
				}
				return nil, err
			}
		}
	}

	summary := &Summary{
		Window:           window,
		CreatorsPaid:     countPaid(allocResult),
		DistributedCents: distributed,
		UnallocatedCents: allocResult.UnallocatedCents,
		ExcludedCreators: excluded,
	}

	if f.archiver != nil {
		key, archErr := f.archiver.Put(ctx, archive.WindowReceipt{
			WindowStart:       in.Start,
			WindowEnd:         in.End,
			PaymentType:       in.PaymentType,
			GrossPoolCents:    in.GrossCents,
			DistributedCents:  distributed,
			RiskReserveCents:  reserve,
			ExcludedCreators:  excluded,
			OverflowRounds:    allocResult.OverflowRounds,
			GeneratedAt:       time.Now().UTC(),
		})
		if archErr != nil {
			zap.L().Warn("failed to archive signed window receipt", zap.Error(archErr))
		} else {
			summary.ReceiptObjectKey = key
		}
	}

	return summary, nil
}

// commitWindowAndLedger durably writes the RevenueWindow and ledger
// Transaction rows in a single DB transaction, re-checking idempotency
// inside it to close the race with the pre-lock check in Finalize. It
// returns the Transaction rows it wrote so a later failure in insertShares
// — which runs in its own, separate transaction — can be compensated for
// explicitly: once this method returns successfully its writes are durable,
// and a rollback of the *next* transaction cannot undo them.
func (f *Finalizer) commitWindowAndLedger(ctx context.Context, in Input, window *domain.RevenueWindow, allocResult *allocator.Result) (*domain.RevenueWindow, []domain.Transaction, error) {
	var written []domain.Transaction
	err := f.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)

		if existing, err := f.windows.WithTrx(tx).FindOne(ctx, &domain.RevenueWindow{
			WindowStart: in.Start, WindowEnd: in.End, PaymentType: in.PaymentType,
		}); err != nil {
			return errutil.TransientStorage("failed to re-check window idempotency", err)
		} else if existing != nil {
			window = existing
			return nil
		}

		meta, _ := json.Marshal(domain.RevenueWindowMeta{
			OverflowRounds: allocResult.OverflowRounds,
		})
		window.Meta = meta

		if err := f.windows.WithTrx(tx).Create(ctx, window); err != nil {
			return errutil.TransientStorage("failed to insert revenue window", err)
		}

		w, err := f.ledger.Commit(ctx, tx, allocResult, in.PaymentType)
		if err != nil {
			return err
		}
		written = w
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return window, written, nil
}

// insertShares writes the per-video VideoRevShare fan-out in its own
// transaction, deliberately not the same one commitWindowAndLedger used —
// see compensate, which exists precisely because these two writes are not
// atomic with each other.
func (f *Finalizer) insertShares(ctx context.Context, shares []*domain.VideoRevShare) error {
	if err := f.shares.BatchCreate(ctx, shares); err != nil {
		return errutil.TransientStorage("failed to insert video rev shares", err)
	}
	return nil
}

// compensate reverses commitWindowAndLedger's ledger writes after
// insertShares fails irrecoverably, and marks the window pending operator
// repair if even the compensating delete cannot complete.
func (f *Finalizer) compensate(ctx context.Context, written []domain.Transaction, window *domain.RevenueWindow, failureReason string) error {
	compErr := f.db.Transaction(func(tx *gorm.DB) error {
		return f.ledger.CompensatingDelete(ctx, tx, written)
	})
	if compErr != nil {
		markerMeta, _ := json.Marshal(domain.RevenueWindowMeta{Error: failureReason})
		window.Status = domain.RevenueWindowStatusPending
		window.Meta = markerMeta
		_ = f.windows.Update(ctx, window.ID, window)
		return compErr
	}
	return nil
}

func distributionSummary(allocResult *allocator.Result) (distributed int64, excluded []string) {
	for id, a := range allocResult.Allocations {
		distributed += a.AllocatedCents
		if a.Excluded || a.AllocatedCents == 0 {
			excluded = append(excluded, id)
		}
	}
	return distributed, excluded
}

func (f *Finalizer) buildShares(windowID string, videos []unitbuilder.VideoUnit, allocResult *allocator.Result) []*domain.VideoRevShare {
	creatorVU := map[string]float64{}
	for _, v := range videos {
		creatorVU[v.CreatorID] += v.VU
	}

	shares := make([]*domain.VideoRevShare, 0, len(videos))
	for _, v := range videos {
		alloc, ok := allocResult.Allocations[v.CreatorID]
		if !ok || alloc.AllocatedCents == 0 {
			continue
		}
		totalVU := creatorVU[v.CreatorID]
		if totalVU == 0 {
			continue
		}
		videoCents := int64(math.Round(v.VU / totalVU * float64(alloc.AllocatedCents)))
		sharePct := 0.0
		if alloc.AllocatedCents > 0 {
			sharePct = float64(videoCents) / float64(alloc.AllocatedCents)
		}

		shares = append(shares, &domain.VideoRevShare{
			ID:              f.node.Generate().String(),
			RevenueWindowID: windowID,
			VideoID:         v.VideoID,
			EngUnits:        v.EngUnits,
			EISAvg:          v.EIS,
			VU:              v.VU,
			SharePct:        sharePct,
			AllocatedCents:  videoCents,
		})
	}
	return shares
}

func (f *Finalizer) summaryFromExisting(ctx context.Context, window *domain.RevenueWindow, alreadyFinalized bool) *Summary {
	shares, _ := f.shares.Find(ctx, &domain.VideoRevShare{RevenueWindowID: window.ID})
	var distributed int64
	creators := map[string]struct{}{}
	for _, s := range shares {
		distributed += s.AllocatedCents
		var video domain.Video
		if err := f.db.WithContext(ctx).Select("creator_id").Where("id = ?", s.VideoID).First(&video).Error; err == nil {
			creators[video.CreatorID] = struct{}{}
		}
	}
	return &Summary{
		Window:           window,
		CreatorsPaid:     len(creators),
		DistributedCents: distributed,
		UnallocatedCents: window.UnallocatedCents,
		AlreadyFinalized: alreadyFinalized,
	}
}

func countPaid(result *allocator.Result) int {
	n := 0
	for _, a := range result.Allocations {
		if a.AllocatedCents > 0 {
			n++
		}
	}
	return n
}

func roundCents(x float64) int64 {
	return int64(math.Round(x))
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// applyQualityPoolAdjustment implements §9.3: the EngUnits-weighted average
// EIS across all videos active in the window scales creator_pool by up to
// ±quality_pool_adjust_max, clamped so the adjusted pool never exceeds
// capByMargin (the room already available under the margin guardrail).
func applyQualityPoolAdjustment(creatorPool, capByMargin int64, videos []unitbuilder.VideoUnit, params domain.Parameters) int64 {
	if params.QualityPoolAdjustMax <= 0 || len(videos) == 0 {
		return creatorPool
	}

	var weightedEIS, weight float64
	for _, v := range videos {
		w := float64(v.EngUnits)
		weightedEIS += v.EIS * w
		weight += w
	}
	if weight == 0 {
		return creatorPool
	}
	avgEIS := weightedEIS / weight

	// Linear in avgEIS with slope 1/60: at avgEIS=60 adjustment is 0; at
	// avgEIS=0 it reaches -quality_pool_adjust_max. EIS never exceeds 100, so
	// the upward side peaks at +2/3 of quality_pool_adjust_max (avgEIS=100).
	delta := clampF((avgEIS-60)/60, -1, 1) * params.QualityPoolAdjustMax

	adjusted := int64(math.Round(float64(creatorPool) * (1 + delta)))
	if adjusted > capByMargin {
		adjusted = capByMargin
	}
	if adjusted < 0 {
		adjusted = 0
	}
	return adjusted
}

func clampF(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
