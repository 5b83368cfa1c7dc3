package domain

// EventWeights holds the integer weights EngUnits is computed from (§4.6
// step 3). Kept integer-weighted per the spec so EngUnits stays an exact
// whole number.
type EventWeights struct {
	View    int64
	Like    int64
	Comment int64
	Share   int64
}

// DefaultEventWeights matches the Parameters configuration bag's default
// event_weights.
func DefaultEventWeights() EventWeights {
	return EventWeights{View: 1, Like: 3, Comment: 5, Share: 8}
}

// KYCCaps maps a kyc_level to its per-run cents ceiling. Level 3 and above
// carry no cap (CapForLevel reports capped=false for them).
type KYCCaps struct {
	Level1Cents int64
	Level2Cents int64
}

// DefaultKYCCaps matches the Parameters configuration bag's default
// kyc_caps_cents.
func DefaultKYCCaps() KYCCaps {
	return KYCCaps{Level1Cents: 5_000, Level2Cents: 50_000}
}

// CapForLevel returns the per-run cents cap for a kyc_level, and whether a
// cap applies at all (false means uncapped, i.e. level ≥ 3).
func (k KYCCaps) CapForLevel(level *int) (cap int64, capped bool) {
	if level == nil {
		return 0, true
	}
	switch *level {
	case 0:
		return 0, true
	case 1:
		return k.Level1Cents, true
	case 2:
		return k.Level2Cents, true
	default:
		return 0, false
	}
}

// Parameters is the immutable configuration bag passed explicitly to every
// operator entrypoint. Nothing in this repository reads a process-global
// tunable for these values; a run's behavior is fully determined by the
// Parameters value it was invoked with plus the rows it reads. This
// replaces the dynamic, mutable configuration object pattern a
// class-based implementation would reach for.
type Parameters struct {
	EventWeights EventWeights
	Gamma        float64

	EarlyMinViews    int64
	EarlyDeviceFrac  float64
	EarlyIPFrac      float64
	EarlyKicker      float64

	TrustMultMin float64
	TrustMultMax float64

	KYCCaps           KYCCaps
	PenalizeLikelyBot bool

	PoolPct        float64
	MarginTarget   float64
	RiskReservePct float64
	PlatformFeePct float64

	// Supplemental parameters (§9 of SPEC_FULL.md), absent from the
	// original legacy configuration bag but carried forward from
	// original_source/revenue_split/revenue_split.py.
	MinPayoutCents       int64
	HoldDays             int
	StreakWindowDays     int
	StreakBonusMax       float64
	QualityPoolAdjustMax float64
}

// DefaultParameters matches §6's Parameters configuration bag defaults.
func DefaultParameters() Parameters {
	return Parameters{
		EventWeights: DefaultEventWeights(),
		Gamma:        2.0,

		EarlyMinViews:   50,
		EarlyDeviceFrac: 0.5,
		EarlyIPFrac:     0.4,
		EarlyKicker:     1.05,

		TrustMultMin: 0.90,
		TrustMultMax: 1.10,

		KYCCaps:           DefaultKYCCaps(),
		PenalizeLikelyBot: true,

		PoolPct:        0.45,
		MarginTarget:   0.60,
		RiskReservePct: 0.10,
		PlatformFeePct: 0.10,

		MinPayoutCents:       100,
		HoldDays:             0,
		StreakWindowDays:     7,
		StreakBonusMax:       0.03,
		QualityPoolAdjustMax: 0.02,
	}
}
