package unitbuilder

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"integrity-core/internal/domain"
	"integrity-core/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeEngUnitsWeightsEventsByDefaultWeights(t *testing.T) {
	f := domain.VideoAggregateFeatures{Views: 10, Likes: 2, Comments: 1, Shares: 1}
	w := domain.DefaultEventWeights()

	// 10*1 + 2*3 + 1*5 + 1*8 = 29
	assert.Equal(t, int64(29), computeEngUnits(f, w))
}

func TestUniqueUserIDsDedupsPreservingFirstOccurrence(t *testing.T) {
	events := []domain.Event{
		{UserID: "a"},
		{UserID: "b"},
		{UserID: "a"},
		{UserID: "c"},
	}
	ids := uniqueUserIDs(events)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestApplyStreakBonusDisabledWhenParamsZero(t *testing.T) {
	b := &Builder{}
	raw := map[string]float64{"creatorA": 100, "creatorB": 200}
	params := domain.Parameters{StreakWindowDays: 0, StreakBonusMax: 0}

	bonused, fraction, err := b.applyStreakBonus(context.Background(), raw, nil, time.Now(), params)
	require.NoError(t, err)

	assert.Equal(t, raw, bonused)
	assert.Equal(t, 0.0, fraction["creatorA"])
	assert.Equal(t, 0.0, fraction["creatorB"])
}

func TestApplyStreakBonusRenormalizesTotalUnitsAcrossCreators(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.VideoAggregate{})
	b := &Builder{db: db}

	windowStart := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC).Truncate(24 * time.Hour)
	params := domain.DefaultParameters()
	params.StreakWindowDays = 3

	// creatorA has a 3-day streak of EIS=80 (>=70) on its one video; creatorB
	// has no aggregates at all, so its streak length is 0.
	for i := 0; i < 3; i++ {
		dayStart := windowStart.AddDate(0, 0, -i)
		features, _ := json.Marshal(domain.VideoAggregateFeatures{Views: 10})
		require.NoError(t, db.Create(&domain.VideoAggregate{
			ID:          "agg-a-" + dayStart.Format("20060102"),
			VideoID:     "video-a",
			WindowStart: dayStart,
			WindowEnd:   dayStart.Add(24 * time.Hour),
			Features:    features,
			EIS:         80,
		}).Error)
	}

	raw := map[string]float64{"creatorA": 1000, "creatorB": 1000}
	creatorVideoIDs := map[string][]string{
		"creatorA": {"video-a"},
		"creatorB": {"video-b"},
	}

	bonused, fraction, err := b.applyStreakBonus(context.Background(), raw, creatorVideoIDs, windowStart, params)
	require.NoError(t, err)

	assert.Greater(t, fraction["creatorA"], 0.0)
	assert.Equal(t, 0.0, fraction["creatorB"])
	assert.Greater(t, bonused["creatorA"], raw["creatorA"])
	assert.Less(t, bonused["creatorB"], raw["creatorB"])

	// Renormalization keeps the total units constant.
	assert.InDelta(t, raw["creatorA"]+raw["creatorB"], bonused["creatorA"]+bonused["creatorB"], 1e-6)
}

func TestStreakLengthStopsAtFirstMissingDay(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.VideoAggregate{})
	b := &Builder{db: db}

	windowStart := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC).Truncate(24 * time.Hour)

	// Only today has an aggregate; yesterday is missing, breaking the streak.
	features, _ := json.Marshal(domain.VideoAggregateFeatures{Views: 10})
	require.NoError(t, db.Create(&domain.VideoAggregate{
		ID:          "agg-today",
		VideoID:     "video-a",
		WindowStart: windowStart,
		WindowEnd:   windowStart.Add(24 * time.Hour),
		Features:    features,
		EIS:         90,
	}).Error)

	streak, err := b.streakLength(context.Background(), []string{"video-a"}, windowStart, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, streak)
}

func TestStreakLengthBreaksWhenAverageEISBelowThreshold(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.VideoAggregate{})
	b := &Builder{db: db}

	windowStart := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC).Truncate(24 * time.Hour)
	features, _ := json.Marshal(domain.VideoAggregateFeatures{Views: 10})
	require.NoError(t, db.Create(&domain.VideoAggregate{
		ID:          "agg-low",
		VideoID:     "video-a",
		WindowStart: windowStart,
		WindowEnd:   windowStart.Add(24 * time.Hour),
		Features:    features,
		EIS:         50,
	}).Error)

	streak, err := b.streakLength(context.Background(), []string{"video-a"}, windowStart, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, streak)
}
