package allocator

import (
	"testing"

	"integrity-core/internal/domain"
	"integrity-core/internal/unitbuilder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() domain.Parameters {
	p := domain.DefaultParameters()
	p.MinPayoutCents = 0
	return p
}

func neutralIntegrity() unitbuilder.CreatorIntegrity {
	return unitbuilder.CreatorIntegrity{AvgLikeIntegrity: 50, AvgReportCredibility: 50}
}

func TestAllocateDistributesProportionallyToUnits(t *testing.T) {
	kycLevel3 := 3
	inputs := []CreatorInput{
		{CreatorID: "a", Units: 100, KYCLevel: &kycLevel3, Integrity: neutralIntegrity()},
		{CreatorID: "b", Units: 300, KYCLevel: &kycLevel3, Integrity: neutralIntegrity()},
	}
	result := Allocate(inputs, 4_000_00, testParams())

	assert.Equal(t, int64(1_000_00), result.Allocations["a"].AllocatedCents)
	assert.Equal(t, int64(3_000_00), result.Allocations["b"].AllocatedCents)
	assert.Equal(t, int64(0), result.UnallocatedCents)
}

func TestAllocateNeverExceedsPool(t *testing.T) {
	inputs := []CreatorInput{
		{CreatorID: "a", Units: 1, Integrity: neutralIntegrity()},
		{CreatorID: "b", Units: 1, Integrity: neutralIntegrity()},
		{CreatorID: "c", Units: 1, Integrity: neutralIntegrity()},
	}
	result := Allocate(inputs, 100, testParams())

	var total int64
	for _, a := range result.Allocations {
		total += a.AllocatedCents
	}
	assert.Equal(t, int64(100), total+result.UnallocatedCents)
	assert.LessOrEqual(t, total, int64(100))
}

func TestAllocateExcludesLikelyBotCreators(t *testing.T) {
	kycLevel3 := 3
	inputs := []CreatorInput{
		{CreatorID: "bot", Units: 1000, LikelyBot: true, Integrity: neutralIntegrity()},
		{CreatorID: "human", Units: 100, KYCLevel: &kycLevel3, Integrity: neutralIntegrity()},
	}
	result := Allocate(inputs, 1_000_00, testParams())

	assert.True(t, result.Allocations["bot"].Excluded)
	assert.Equal(t, int64(0), result.Allocations["bot"].AllocatedCents)
	assert.Equal(t, int64(1_000_00), result.Allocations["human"].AllocatedCents)
}

func TestAllocateKYCCapRedistributesOverflowToUncappedCreators(t *testing.T) {
	kycLevel1 := 1
	kycLevel3 := 3
	inputs := []CreatorInput{
		// level-1 capped at 5,000 cents; raw proportional share would exceed it.
		{CreatorID: "capped", Units: 900, KYCLevel: &kycLevel1, Integrity: neutralIntegrity()},
		{CreatorID: "uncapped", Units: 100, KYCLevel: &kycLevel3, Integrity: neutralIntegrity()},
	}
	result := Allocate(inputs, 10_000_00, testParams())

	assert.Equal(t, int64(5_000), result.Allocations["capped"].AllocatedCents)
	assert.True(t, result.Allocations["capped"].Capped)
	// All the overflow the cap didn't absorb lands on the one uncapped creator.
	assert.Equal(t, int64(10_000_00-5_000), result.Allocations["uncapped"].AllocatedCents)
}

func TestAllocateStrandsOverflowWhenAllCreatorsAreCapped(t *testing.T) {
	kycLevel1 := 1
	inputs := []CreatorInput{
		{CreatorID: "a", Units: 500, KYCLevel: &kycLevel1, Integrity: neutralIntegrity()},
		{CreatorID: "b", Units: 500, KYCLevel: &kycLevel1, Integrity: neutralIntegrity()},
	}
	result := Allocate(inputs, 1_000_000_00, testParams())

	assert.Equal(t, int64(5_000), result.Allocations["a"].AllocatedCents)
	assert.Equal(t, int64(5_000), result.Allocations["b"].AllocatedCents)
	assert.Equal(t, int64(1_000_000_00-10_000), result.UnallocatedCents)
}

func TestAllocateZeroUnitsTotalLeavesPoolFullyUnallocated(t *testing.T) {
	inputs := []CreatorInput{
		{CreatorID: "a", Units: 0, Integrity: neutralIntegrity()},
		{CreatorID: "b", Units: 0, LikelyBot: true, Integrity: neutralIntegrity()},
	}
	result := Allocate(inputs, 500_00, testParams())

	assert.Equal(t, int64(500_00), result.UnallocatedCents)
	for _, a := range result.Allocations {
		assert.Equal(t, int64(0), a.AllocatedCents)
	}
}

func TestTrustMultiplierScalesLinearlyAcrossRange(t *testing.T) {
	assert.InDelta(t, 1.0, trustMultiplier(nil, 0.90, 1.10), 1e-9)

	zero := 0.0
	assert.InDelta(t, 0.90, trustMultiplier(&zero, 0.90, 1.10), 1e-9)

	hundred := 100.0
	assert.InDelta(t, 1.10, trustMultiplier(&hundred, 0.90, 1.10), 1e-9)

	fifty := 50.0
	assert.InDelta(t, 1.00, trustMultiplier(&fifty, 0.90, 1.10), 1e-9)
}

func TestIntegrityMultiplierClampsToConfiguredRange(t *testing.T) {
	low := unitbuilder.CreatorIntegrity{AvgLikeIntegrity: 0, AvgReportCredibility: 0}
	assert.InDelta(t, 0.97, integrityMultiplier(low), 1e-9)

	// avg=100 -> 0.97+(100-50)/2000 = 0.995, within range so not clamped to 1.03.
	high := unitbuilder.CreatorIntegrity{AvgLikeIntegrity: 100, AvgReportCredibility: 100}
	assert.InDelta(t, 0.995, integrityMultiplier(high), 1e-9)

	mid := unitbuilder.CreatorIntegrity{AvgLikeIntegrity: 50, AvgReportCredibility: 50}
	assert.InDelta(t, 0.97, integrityMultiplier(mid), 1e-9)
}

func TestApplyMinPayoutThresholdRollsBackSmallAllocations(t *testing.T) {
	result := &Result{
		Allocations: map[string]*Allocation{
			"small": {CreatorID: "small", AllocatedCents: 50},
			"large": {CreatorID: "large", AllocatedCents: 5_000},
		},
		UnallocatedCents: 0,
	}

	ApplyMinPayoutThreshold(result, 100)

	assert.Equal(t, int64(0), result.Allocations["small"].AllocatedCents)
	assert.Equal(t, int64(5_000), result.Allocations["large"].AllocatedCents)
	assert.Equal(t, int64(50), result.UnallocatedCents)
}

func TestApplyMinPayoutThresholdDisabledWhenZero(t *testing.T) {
	result := &Result{
		Allocations: map[string]*Allocation{
			"small": {CreatorID: "small", AllocatedCents: 1},
		},
	}
	ApplyMinPayoutThreshold(result, 0)
	assert.Equal(t, int64(1), result.Allocations["small"].AllocatedCents)
}

func TestAllocateIsDeterministicAcrossRepeatedRuns(t *testing.T) {
	kycLevel1 := 1
	inputs := []CreatorInput{
		{CreatorID: "z", Units: 50, Integrity: neutralIntegrity()},
		{CreatorID: "a", Units: 900, KYCLevel: &kycLevel1, Integrity: neutralIntegrity()},
		{CreatorID: "m", Units: 50, Integrity: neutralIntegrity()},
	}

	first := Allocate(inputs, 10_000_00, testParams())
	second := Allocate(inputs, 10_000_00, testParams())

	require.Equal(t, len(first.Allocations), len(second.Allocations))
	for id, a := range first.Allocations {
		assert.Equal(t, a.AllocatedCents, second.Allocations[id].AllocatedCents, "creator %s", id)
	}
}
