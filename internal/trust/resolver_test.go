package trust

import (
	"testing"

	"integrity-core/internal/domain"

	"github.com/stretchr/testify/assert"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestVTSDefaultsToNeutralWithoutExplicitScore(t *testing.T) {
	kyc2 := 2
	u := domain.User{ID: "u1", KYCLevel: &kyc2}
	assert.InDelta(t, 50.0, VTS(u), 1e-9)
}

func TestVTSAppliesLikelyBotPenalty(t *testing.T) {
	kyc2 := 2
	u := domain.User{ID: "u1", KYCLevel: &kyc2, LikelyBot: true, ViewerTrustScore: floatPtr(80)}
	assert.InDelta(t, 16.0, VTS(u), 1e-9) // 80 * 0.2
}

func TestVTSAppliesKYCLevelMultipliers(t *testing.T) {
	score := floatPtr(100)

	none := domain.User{ID: "u1", ViewerTrustScore: score}
	assert.InDelta(t, 70.0, VTS(none), 1e-9)

	level1 := domain.User{ID: "u1", ViewerTrustScore: score, KYCLevel: intPtr(1)}
	assert.InDelta(t, 90.0, VTS(level1), 1e-9)

	level2 := domain.User{ID: "u1", ViewerTrustScore: score, KYCLevel: intPtr(2)}
	assert.InDelta(t, 100.0, VTS(level2), 1e-9)
}

func TestVTSClampsToZeroAndHundred(t *testing.T) {
	over := domain.User{ID: "u1", ViewerTrustScore: floatPtr(1000), KYCLevel: intPtr(2)}
	assert.InDelta(t, 100.0, VTS(over), 1e-9)

	neg := domain.User{ID: "u1", ViewerTrustScore: floatPtr(-50), KYCLevel: intPtr(2)}
	assert.InDelta(t, 0.0, VTS(neg), 1e-9)
}

func TestVTSOfFallsBackToLevelZeroTreatmentForMissingUser(t *testing.T) {
	users := map[string]domain.User{}
	assert.InDelta(t, 35.0, VTSOf(users, "ghost"), 1e-9) // 50 * 0.7
}

func TestVTSOfResolvesKnownUser(t *testing.T) {
	users := map[string]domain.User{
		"u1": {ID: "u1", ViewerTrustScore: floatPtr(100), KYCLevel: intPtr(2)},
	}
	assert.InDelta(t, 100.0, VTSOf(users, "u1"), 1e-9)
}
