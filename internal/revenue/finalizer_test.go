package revenue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"integrity-core/internal/allocator"
	"integrity-core/internal/domain"
	"integrity-core/internal/testutil"
	"integrity-core/internal/unitbuilder"
	"integrity-core/pkg/errutil"
	"integrity-core/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func newTestFinalizer(t *testing.T) (*Finalizer, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &domain.RevenueWindow{}, &domain.VideoRevShare{}, &domain.Video{})
	f := &Finalizer{
		db:      db,
		node:    testNode(t),
		windows: repository.ProvideStore[domain.RevenueWindow](db),
		shares:  repository.ProvideStore[domain.VideoRevShare](db),
		users:   repository.ProvideStore[domain.User](db),
	}
	return f, db
}

func TestFinalizeRejectsInvalidWindowOrdering(t *testing.T) {
	f, _ := newTestFinalizer(t)
	start := time.Now()
	_, err := f.Finalize(context.Background(), Input{Start: start, End: start}, domain.DefaultParameters())

	require.Error(t, err)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, errutil.StatusValidationFailed, be.Status())
}

func TestFinalizeRejectsNegativeRevenueFigures(t *testing.T) {
	f, _ := newTestFinalizer(t)
	start := time.Now()
	_, err := f.Finalize(context.Background(), Input{
		Start: start, End: start.Add(time.Hour), GrossCents: -1,
	}, domain.DefaultParameters())

	require.Error(t, err)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, errutil.StatusValidationFailed, be.Status())
}

func TestFinalizeReturnsAlreadyFinalizedSummaryForExistingWindow(t *testing.T) {
	f, db := newTestFinalizer(t)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	window := &domain.RevenueWindow{
		ID: "existing-window", WindowStart: start, WindowEnd: end,
		PaymentType: "creator_payout", Status: domain.RevenueWindowStatusFinalized,
		UnallocatedCents: 500,
	}
	require.NoError(t, db.Create(window).Error)
	require.NoError(t, db.Create(&domain.Video{ID: "v1", CreatorID: "creatorA"}).Error)
	require.NoError(t, db.Create(&domain.VideoRevShare{
		ID: "share-1", RevenueWindowID: window.ID, VideoID: "v1", AllocatedCents: 12_00,
	}).Error)

	summary, err := f.Finalize(context.Background(), Input{
		Start: start, End: end, PaymentType: "creator_payout", DryRun: true,
	}, domain.DefaultParameters())

	require.NoError(t, err)
	assert.True(t, summary.AlreadyFinalized)
	assert.Equal(t, int64(12_00), summary.DistributedCents)
	assert.Equal(t, 1, summary.CreatorsPaid)
	assert.Equal(t, int64(500), summary.UnallocatedCents)
}

func TestFinalizeGuardrailExhaustedSkipsAllocationEntirely(t *testing.T) {
	f, _ := newTestFinalizer(t)

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	params := domain.DefaultParameters()
	params.MarginTarget = 1.0 // 100% of gross must be preserved as margin, zeroing cap_by_margin.

	summary, err := f.Finalize(context.Background(), Input{
		Start: start, End: end, PaymentType: "creator_payout", DryRun: true,
		GrossCents: 10_000_00,
	}, params)

	require.NoError(t, err)
	require.NotNil(t, summary.Window)
	assert.Equal(t, int64(0), summary.Window.CreatorPoolCents)

	var meta domain.RevenueWindowMeta
	require.NoError(t, json.Unmarshal(summary.Window.Meta, &meta))
	assert.Equal(t, "cap_by_margin_exhausted", meta.Reason)
}

func TestRoundCentsRoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(3), roundCents(2.5))
	assert.Equal(t, int64(2), roundCents(2.4))
}

func TestMinInt64(t *testing.T) {
	assert.Equal(t, int64(1), minInt64(1, 2))
	assert.Equal(t, int64(1), minInt64(2, 1))
}

func TestCountPaidCountsOnlyPositiveAllocations(t *testing.T) {
	result := &allocator.Result{
		Allocations: map[string]*allocator.Allocation{
			"a": {AllocatedCents: 100},
			"b": {AllocatedCents: 0},
			"c": {AllocatedCents: 50},
		},
	}
	assert.Equal(t, 2, countPaid(result))
}

func TestApplyQualityPoolAdjustmentNoOpWhenDisabled(t *testing.T) {
	params := domain.DefaultParameters()
	params.QualityPoolAdjustMax = 0
	videos := []unitbuilder.VideoUnit{{EngUnits: 10, EIS: 90}}

	assert.Equal(t, int64(1000), applyQualityPoolAdjustment(1000, 2000, videos, params))
}

func TestApplyQualityPoolAdjustmentBoostsPoolForHighAverageEIS(t *testing.T) {
	params := domain.DefaultParameters()
	videos := []unitbuilder.VideoUnit{{EngUnits: 10, EIS: 100}}

	adjusted := applyQualityPoolAdjustment(1_000_00, 2_000_00, videos, params)
	assert.Greater(t, adjusted, int64(1_000_00))
}

func TestApplyQualityPoolAdjustmentReducesPoolForLowAverageEIS(t *testing.T) {
	params := domain.DefaultParameters()
	videos := []unitbuilder.VideoUnit{{EngUnits: 10, EIS: 0}}

	adjusted := applyQualityPoolAdjustment(1_000_00, 2_000_00, videos, params)
	assert.Less(t, adjusted, int64(1_000_00))
}

func TestApplyQualityPoolAdjustmentNeverExceedsMarginCap(t *testing.T) {
	params := domain.DefaultParameters()
	params.QualityPoolAdjustMax = 10.0 // exaggerated so the clamp, not the delta, binds
	videos := []unitbuilder.VideoUnit{{EngUnits: 10, EIS: 100}}

	adjusted := applyQualityPoolAdjustment(1_000_00, 1_050_00, videos, params)
	assert.LessOrEqual(t, adjusted, int64(1_050_00))
}

func TestBuildSharesSplitsCreatorAllocationByVideoValueUnits(t *testing.T) {
	f, _ := newTestFinalizer(t)

	videos := []unitbuilder.VideoUnit{
		{VideoID: "v1", CreatorID: "creatorA", VU: 75, EngUnits: 10, EIS: 80},
		{VideoID: "v2", CreatorID: "creatorA", VU: 25, EngUnits: 5, EIS: 60},
	}
	allocResult := &allocator.Result{
		Allocations: map[string]*allocator.Allocation{
			"creatorA": {CreatorID: "creatorA", AllocatedCents: 1000},
		},
	}

	shares := f.buildShares("window-1", videos, allocResult)

	require.Len(t, shares, 2)
	var v1, v2 *domain.VideoRevShare
	for _, s := range shares {
		switch s.VideoID {
		case "v1":
			v1 = s
		case "v2":
			v2 = s
		}
	}
	require.NotNil(t, v1)
	require.NotNil(t, v2)
	assert.Equal(t, int64(750), v1.AllocatedCents)
	assert.Equal(t, int64(250), v2.AllocatedCents)
}

func TestBuildSharesSkipsVideosForExcludedCreators(t *testing.T) {
	f, _ := newTestFinalizer(t)

	videos := []unitbuilder.VideoUnit{{VideoID: "v1", CreatorID: "bot", VU: 100}}
	allocResult := &allocator.Result{
		Allocations: map[string]*allocator.Allocation{
			"bot": {CreatorID: "bot", AllocatedCents: 0, Excluded: true},
		},
	}

	shares := f.buildShares("window-1", videos, allocResult)
	assert.Empty(t, shares)
}
