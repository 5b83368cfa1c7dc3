// Package trust materializes the per-user Viewer Trust Score (VTS) from
// stored signals and abuse flags (§4.3 of SPEC_FULL.md). It never derives
// trust itself — KYC validation and phone trust scoring are external
// collaborators this core only consumes the resulting fields from.
package trust

import "integrity-core/internal/domain"

// neutralVTS is used when viewer_trust_score is absent.
const neutralVTS = 50.0

// VTS computes the Viewer Trust Score for a user, deterministically
// applying the likely_bot and kyc_level adjustments so every scorer sees
// the same value.
func VTS(u domain.User) float64 {
	score := neutralVTS
	if u.ViewerTrustScore != nil {
		score = *u.ViewerTrustScore
	}

	if u.LikelyBot {
		score *= 0.2
	}

	switch {
	case u.KYCLevel == nil || *u.KYCLevel == 0:
		score *= 0.7
	case *u.KYCLevel == 1:
		score *= 0.9
	default: // kyc >= 2
		score *= 1.0
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// VTSOf resolves a user by id against a snapshot map, treating a missing
// user as a neutral-trust, non-bot, no-KYC default rather than an error —
// per the local-recovery rule in §7.
func VTSOf(users map[string]domain.User, userID string) float64 {
	u, ok := users[userID]
	if !ok {
		return neutralVTS * 0.7 // no KYC on record defaults to level-0 treatment
	}
	return VTS(u)
}
