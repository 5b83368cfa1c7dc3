package scoring

import (
	"testing"

	"integrity-core/internal/domain"

	"github.com/stretchr/testify/assert"
)

func floatPtr(f float64) *float64 { return &f }

func TestScoreIsBoundedToZeroHundred(t *testing.T) {
	features := domain.VideoAggregateFeatures{
		Views: 1000, Likes: 900, Comments: 200, ActiveViewers: 500,
		UniqueCommenters: 200, DurationS: 15, AgeS: 3600,
	}
	result := Score(nil, features, nil, nil)

	assert.GreaterOrEqual(t, result.EIS, 0.0)
	assert.LessOrEqual(t, result.EIS, 100.0)
}

func TestScoreAppliesCreatorTrustModifier(t *testing.T) {
	features := domain.VideoAggregateFeatures{
		Views: 100, Likes: 10, Comments: 5, ActiveViewers: 50,
		UniqueCommenters: 5, DurationS: 15, AgeS: 3600,
	}

	baseline := Score(nil, features, nil, nil)
	mid := Score(nil, features, nil, floatPtr(50))
	boosted := Score(nil, features, nil, floatPtr(100))
	penalized := Score(nil, features, nil, floatPtr(0))

	// The modifier is clamp(0.95+(trust-50)/1000, 0.95, 1.05): 0.95 at trust
	// 0 and 50, 1.00 at trust 100; no trust score applies no modifier.
	assert.Greater(t, boosted.EIS, mid.EIS)
	assert.Less(t, penalized.EIS, baseline.EIS)
}

func TestAuthenticEngagementRewardsViewerBreadthOverRawCounts(t *testing.T) {
	concentrated := domain.VideoAggregateFeatures{Views: 1000, Likes: 80, ActiveViewers: 1, DurationS: 15, AgeS: 3600}
	broad := domain.VideoAggregateFeatures{Views: 1000, Likes: 80, ActiveViewers: 500, DurationS: 15, AgeS: 3600}

	assert.Less(t, authenticEngagement(concentrated), authenticEngagement(broad))
}

func TestCommentQualityRewardsUniqueCommentersAndTrustedCommenters(t *testing.T) {
	f := domain.VideoAggregateFeatures{Comments: 10, UniqueCommenters: 10}
	users := map[string]domain.User{
		"u1": {ID: "u1", ViewerTrustScore: floatPtr(100), KYCLevel: func() *int { i := 2; return &i }()},
	}
	events := []domain.Event{
		{EventID: "1", UserID: "u1", EventType: domain.EventComment},
	}

	withTrustedCommenter := commentQuality(events, f, users)
	withUnknownCommenter := commentQuality(events, f, map[string]domain.User{})

	assert.Greater(t, withTrustedCommenter, withUnknownCommenter)
}

func TestLikeIntegrityPenalizesDeviceClustering(t *testing.T) {
	f := domain.VideoAggregateFeatures{DeviceConcentrationTop: 0.9, InterArrivalCV: 0.5}
	clean := domain.VideoAggregateFeatures{DeviceConcentrationTop: 0.1, InterArrivalCV: 0.5}

	assert.Less(t, likeIntegrity(nil, f, nil), likeIntegrity(nil, clean, nil))
}

func TestReportCredibilityDecreasesWithMoreTrustedReports(t *testing.T) {
	f := domain.VideoAggregateFeatures{Views: 1000}
	users := map[string]domain.User{
		"u1": {ID: "u1", ViewerTrustScore: floatPtr(100), KYCLevel: func() *int { i := 2; return &i }()},
	}
	events := []domain.Event{
		{EventID: "1", UserID: "u1", EventType: domain.EventReport},
		{EventID: "2", UserID: "u2", EventType: domain.EventReport},
	}

	withReports := reportCredibility(events, f, users)
	withoutReports := reportCredibility(nil, f, users)

	assert.Less(t, withReports, withoutReports)
}

func TestReportCredibilityNeverNegative(t *testing.T) {
	f := domain.VideoAggregateFeatures{Views: 1} // tiny denominator floor applies
	users := map[string]domain.User{}
	events := make([]domain.Event, 0, 50)
	for i := 0; i < 50; i++ {
		events = append(events, domain.Event{EventID: "r", UserID: "bot", EventType: domain.EventReport})
	}

	assert.GreaterOrEqual(t, reportCredibility(events, f, users), 0.0)
}
