// Package allocator transforms per-creator value units and a money pool
// into margin-safe, KYC-capped payout allocations with iterative overflow
// redistribution (§4.7 of SPEC_FULL.md).
package allocator

import (
	"sort"

	"integrity-core/internal/domain"
	"integrity-core/internal/unitbuilder"
)

// CreatorInput is one creator's raw units and the external trust/KYC/bot
// fields the Allocator multiplies and caps by.
type CreatorInput struct {
	CreatorID         string
	Units             float64
	LikelyBot         bool
	CreatorTrustScore *float64
	KYCLevel          *int
	Integrity         unitbuilder.CreatorIntegrity
}

// Allocation is one creator's final result from a run.
type Allocation struct {
	CreatorID      string
	AllocatedCents int64
	Excluded       bool
	Capped         bool
}

// Result is the Allocator's pure computation output — no storage access.
type Result struct {
	Allocations      map[string]*Allocation
	UnallocatedCents int64
	OverflowRounds   int
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// trustMultiplier returns Step A's trust_mult ∈ [trustMultMin, trustMultMax].
func trustMultiplier(trustScore *float64, min, max float64) float64 {
	if trustScore == nil {
		return 1.0
	}
	t := clamp(*trustScore, 0, 100)
	return min + (max-min)*t/100
}

// integrityMultiplier returns §9.2's integrity_mod.
func integrityMultiplier(in unitbuilder.CreatorIntegrity) float64 {
	avg := (in.AvgLikeIntegrity + in.AvgReportCredibility) / 2
	return clamp(0.97+(avg-50)/2000, 0.97, 1.03)
}

// scaledCreator is a CreatorInput after Step A's multiplier has been
// applied, carrying its resolved KYC cap.
type scaledCreator struct {
	CreatorInput
	uPrime float64
	cap    int64
	capped bool
}

// Allocate runs Steps A–C over inputs and poolCents. It never writes to
// storage; callers (the Revenue Window Finalizer) persist the result.
func Allocate(inputs []CreatorInput, poolCents int64, params domain.Parameters) *Result {
	// Step A.
	scaledInputs := make([]scaledCreator, 0, len(inputs))
	for _, in := range inputs {
		var multiplier float64
		if params.PenalizeLikelyBot && in.LikelyBot {
			multiplier = 0
		} else {
			trustMult := trustMultiplier(in.CreatorTrustScore, params.TrustMultMin, params.TrustMultMax)
			integrityMult := integrityMultiplier(in.Integrity)
			multiplier = trustMult * integrityMult
		}

		cap, hasCap := params.KYCCaps.CapForLevel(in.KYCLevel)
		s := scaledCreator{CreatorInput: in, uPrime: in.Units * multiplier}
		if hasCap {
			s.cap = cap
		} else {
			s.cap = -1 // sentinel: uncapped
		}
		scaledInputs = append(scaledInputs, s)
	}

	// Deterministic creator-id order for reproducible replays (§5).
	sort.Slice(scaledInputs, func(i, j int) bool {
		return scaledInputs[i].CreatorID < scaledInputs[j].CreatorID
	})

	allocations := make(map[string]*Allocation, len(scaledInputs))

	// Step B.
	var uTotal float64
	for _, s := range scaledInputs {
		if s.uPrime > 0 {
			uTotal += s.uPrime
		}
	}

	if uTotal == 0 {
		for _, s := range scaledInputs {
			allocations[s.CreatorID] = &Allocation{CreatorID: s.CreatorID, Excluded: s.uPrime == 0}
		}
		return &Result{Allocations: allocations, UnallocatedCents: poolCents}
	}

	aC := make(map[string]int64, len(scaledInputs))
	for _, s := range scaledInputs {
		if s.uPrime <= 0 {
			aC[s.CreatorID] = 0
			continue
		}
		aC[s.CreatorID] = int64(round(s.uPrime / uTotal * float64(poolCents)))
	}

	// Step C — iterative redistribution.
	rounds := 0
	maxRounds := len(scaledInputs) + 1
	cappedSet := map[string]bool{}

	for rounds < maxRounds {
		rounds++
		var excess int64
		for _, s := range scaledInputs {
			if s.cap < 0 || cappedSet[s.CreatorID] {
				continue
			}
			if aC[s.CreatorID] > s.cap {
				excess += aC[s.CreatorID] - s.cap
				aC[s.CreatorID] = s.cap
				cappedSet[s.CreatorID] = true
			}
		}

		var uR float64
		for _, s := range scaledInputs {
			if cappedSet[s.CreatorID] || s.uPrime <= 0 {
				continue
			}
			uR += s.uPrime
		}

		if excess == 0 || uR == 0 {
			if excess > 0 {
				// No uncapped capacity left to absorb the excess.
				return finish(scaledInputs, aC, cappedSet, poolCents, excess, rounds)
			}
			break
		}

		for _, s := range scaledInputs {
			if cappedSet[s.CreatorID] || s.uPrime <= 0 {
				continue
			}
			aC[s.CreatorID] += int64(round(s.uPrime / uR * float64(excess)))
		}
	}

	return finish(scaledInputs, aC, cappedSet, poolCents, 0, rounds)
}

func finish(scaledInputs []scaledCreator, aC map[string]int64, cappedSet map[string]bool, poolCents, strandedExcess int64, rounds int) *Result {
	allocations := make(map[string]*Allocation, len(scaledInputs))
	var distributed int64
	for _, s := range scaledInputs {
		allocations[s.CreatorID] = &Allocation{
			CreatorID:      s.CreatorID,
			AllocatedCents: aC[s.CreatorID],
			Excluded:       s.uPrime <= 0,
			Capped:         cappedSet[s.CreatorID],
		}
		distributed += aC[s.CreatorID]
	}

	// Rounding remainder distributed to uncapped creators by descending
	// U'_c, one cent each, until zero or no capacity remains.
	remainder := poolCents - distributed - strandedExcess
	if remainder > 0 {
		candidates := make([]scaledCreator, 0, len(scaledInputs))
		for _, s := range scaledInputs {
			if !cappedSet[s.CreatorID] && s.uPrime > 0 {
				candidates = append(candidates, s)
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].uPrime > candidates[j].uPrime })

		for i := 0; remainder > 0 && len(candidates) > 0; i = (i + 1) % len(candidates) {
			c := candidates[i]
			allocations[c.CreatorID].AllocatedCents++
			distributed++
			remainder--
		}
	} else if remainder < 0 {
		// Shouldn't happen given round-half-up on proportional shares, but
		// guard against drift by trimming the largest allocation.
		for remainder < 0 {
			var largest *Allocation
			for _, s := range scaledInputs {
				if a := allocations[s.CreatorID]; a.AllocatedCents > 0 && (largest == nil || a.AllocatedCents > largest.AllocatedCents) {
					largest = a
				}
			}
			if largest == nil {
				break
			}
			largest.AllocatedCents--
			distributed--
			remainder++
		}
	}

	unallocated := poolCents - distributed
	if unallocated < 0 {
		unallocated = 0
	}

	return &Result{Allocations: allocations, UnallocatedCents: unallocated, OverflowRounds: rounds}
}

// ApplyMinPayoutThreshold implements Step C': any creator whose allocation
// is below minPayoutCents has it rolled back into unallocated.
func ApplyMinPayoutThreshold(result *Result, minPayoutCents int64) {
	if minPayoutCents <= 0 {
		return
	}
	for _, a := range result.Allocations {
		if a.AllocatedCents > 0 && a.AllocatedCents < minPayoutCents {
			result.UnallocatedCents += a.AllocatedCents
			a.AllocatedCents = 0
		}
	}
}

func round(x float64) float64 {
	if x >= 0 {
		return float64(int64(x + 0.5))
	}
	return -float64(int64(-x + 0.5))
}
