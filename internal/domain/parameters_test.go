package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapForLevelUncappedAboveLevelTwo(t *testing.T) {
	caps := DefaultKYCCaps()
	level := 3

	cap, capped := caps.CapForLevel(&level)
	assert.False(t, capped)
	assert.Equal(t, int64(0), cap)
}

func TestCapForLevelAppliesPerLevelCeiling(t *testing.T) {
	caps := DefaultKYCCaps()

	zero := 0
	cap, capped := caps.CapForLevel(&zero)
	assert.True(t, capped)
	assert.Equal(t, int64(0), cap)

	one := 1
	cap, capped = caps.CapForLevel(&one)
	assert.True(t, capped)
	assert.Equal(t, caps.Level1Cents, cap)

	two := 2
	cap, capped = caps.CapForLevel(&two)
	assert.True(t, capped)
	assert.Equal(t, caps.Level2Cents, cap)
}

func TestCapForLevelNilTreatedAsUnverified(t *testing.T) {
	caps := DefaultKYCCaps()
	cap, capped := caps.CapForLevel(nil)
	assert.True(t, capped)
	assert.Equal(t, int64(0), cap)
}

func TestDefaultParametersMatchesConfiguredDefaults(t *testing.T) {
	p := DefaultParameters()

	assert.Equal(t, int64(5_000), p.KYCCaps.Level1Cents)
	assert.Equal(t, int64(50_000), p.KYCCaps.Level2Cents)
	assert.Equal(t, 0.45, p.PoolPct)
	assert.Equal(t, 0.60, p.MarginTarget)
	assert.Equal(t, 0.10, p.RiskReservePct)
	assert.Equal(t, int64(100), p.MinPayoutCents)
	assert.Equal(t, 0.03, p.StreakBonusMax)
	assert.Equal(t, 0.02, p.QualityPoolAdjustMax)
	assert.True(t, p.PenalizeLikelyBot)
}
