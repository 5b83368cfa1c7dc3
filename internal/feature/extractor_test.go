package feature

import (
	"testing"
	"time"

	"integrity-core/internal/domain"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestExtractCountsEventsByType(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	video := domain.Video{ID: "v1", CreatedAt: start.Add(-time.Hour), DurationS: 20}
	windowEnd := start.Add(time.Hour)

	events := []domain.Event{
		{EventID: "1", UserID: "u1", EventType: domain.EventView, Ts: start},
		{EventID: "2", UserID: "u2", EventType: domain.EventView, Ts: start},
		{EventID: "3", UserID: "u1", EventType: domain.EventLike, Ts: start.Add(time.Minute)},
		{EventID: "4", UserID: "u2", EventType: domain.EventComment, Ts: start.Add(2 * time.Minute)},
		{EventID: "5", UserID: "u3", EventType: domain.EventShare, Ts: start.Add(3 * time.Minute)},
		{EventID: "6", UserID: "u4", EventType: domain.EventReport, Ts: start.Add(4 * time.Minute)},
	}

	f := Extract(events, video, windowEnd)

	assert.Equal(t, int64(2), f.Views)
	assert.Equal(t, int64(1), f.Likes)
	assert.Equal(t, int64(1), f.Comments)
	assert.Equal(t, int64(1), f.Shares)
	assert.Equal(t, int64(1), f.Reports)
	assert.Equal(t, int64(4), f.ActiveViewers)
	assert.Equal(t, int64(1), f.UniqueCommenters)
	assert.Equal(t, int64(1), f.UniqueLikers)
}

func TestExtractDeviceConcentrationIsTopShareOfLikes(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	video := domain.Video{ID: "v1", CreatedAt: start.Add(-time.Hour), DurationS: 20}

	devA := "deviceA"
	devB := "deviceB"
	events := []domain.Event{
		{EventID: "1", UserID: "u1", EventType: domain.EventLike, Ts: start, DeviceID: &devA},
		{EventID: "2", UserID: "u2", EventType: domain.EventLike, Ts: start, DeviceID: &devA},
		{EventID: "3", UserID: "u3", EventType: domain.EventLike, Ts: start, DeviceID: &devA},
		{EventID: "4", UserID: "u4", EventType: domain.EventLike, Ts: start, DeviceID: &devB},
	}

	f := Extract(events, video, start.Add(time.Hour))

	assert.InDelta(t, 0.75, f.DeviceConcentrationTop, 1e-9)
	assert.Equal(t, int64(3), f.UsersPerDevice)
}

func TestExtractInterArrivalCVMissingBelowThreeLikes(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	video := domain.Video{ID: "v1", CreatedAt: start.Add(-time.Hour), DurationS: 20}

	events := []domain.Event{
		{EventID: "1", UserID: "u1", EventType: domain.EventLike, Ts: start},
		{EventID: "2", UserID: "u2", EventType: domain.EventLike, Ts: start.Add(time.Minute)},
	}

	f := Extract(events, video, start.Add(time.Hour))
	assert.True(t, f.InterArrivalCVMissing)
}

func TestExtractInterArrivalCVComputedForThreeOrMoreLikes(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	video := domain.Video{ID: "v1", CreatedAt: start.Add(-time.Hour), DurationS: 20}

	// Evenly spaced likes -> zero variance -> CV of 0.
	events := []domain.Event{
		{EventID: "1", UserID: "u1", EventType: domain.EventLike, Ts: start},
		{EventID: "2", UserID: "u2", EventType: domain.EventLike, Ts: start.Add(10 * time.Second)},
		{EventID: "3", UserID: "u3", EventType: domain.EventLike, Ts: start.Add(20 * time.Second)},
	}

	f := Extract(events, video, start.Add(time.Hour))
	assert.False(t, f.InterArrivalCVMissing)
	assert.InDelta(t, 0.0, f.InterArrivalCV, 1e-9)
}

func TestExtractRecencyFallsBackToAgeWhenNoEvents(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	createdAt := start.Add(-2 * time.Hour)
	video := domain.Video{ID: "v1", CreatedAt: createdAt, DurationS: 20}
	windowEnd := start

	f := Extract(nil, video, windowEnd)

	assert.InDelta(t, windowEnd.Sub(createdAt).Seconds(), f.AgeS, 1e-9)
	assert.InDelta(t, f.AgeS, f.RecencyS, 1e-9)
}
