package eventwindow

import (
	"context"
	"testing"
	"time"

	"integrity-core/internal/domain"
	"integrity-core/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsForVideoFiltersByWindowAndOrdersByTimestamp(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.Event{})
	r := NewReader(db)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	require.NoError(t, db.Create(&domain.Event{EventID: "1", VideoID: "v1", UserID: "u1", EventType: domain.EventView, Ts: start.Add(30 * time.Minute)}).Error)
	require.NoError(t, db.Create(&domain.Event{EventID: "2", VideoID: "v1", UserID: "u2", EventType: domain.EventView, Ts: start.Add(10 * time.Minute)}).Error)
	require.NoError(t, db.Create(&domain.Event{EventID: "3", VideoID: "v1", UserID: "u3", EventType: domain.EventView, Ts: end.Add(time.Minute)}).Error) // outside window
	require.NoError(t, db.Create(&domain.Event{EventID: "4", VideoID: "v2", UserID: "u4", EventType: domain.EventView, Ts: start.Add(20 * time.Minute)}).Error) // different video

	events, err := r.EventsForVideo(context.Background(), "v1", start, end)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].EventID)
	assert.Equal(t, "1", events[1].EventID)
}

func TestVideoIDsWithActivityReturnsDistinctIDs(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.Event{})
	r := NewReader(db)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	require.NoError(t, db.Create(&domain.Event{EventID: "1", VideoID: "v1", UserID: "u1", EventType: domain.EventView, Ts: start.Add(time.Minute)}).Error)
	require.NoError(t, db.Create(&domain.Event{EventID: "2", VideoID: "v1", UserID: "u2", EventType: domain.EventLike, Ts: start.Add(2 * time.Minute)}).Error)
	require.NoError(t, db.Create(&domain.Event{EventID: "3", VideoID: "v2", UserID: "u3", EventType: domain.EventView, Ts: start.Add(3 * time.Minute)}).Error)

	ids, err := r.VideoIDsWithActivity(context.Background(), start, end)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, ids)
}

func TestVideoReturnsNilForMissingVideo(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.Video{})
	r := NewReader(db)

	v, err := r.Video(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestUsersByIDResolvesOnlyKnownUsers(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.User{})
	r := NewReader(db)

	require.NoError(t, db.Create(&domain.User{ID: "u1"}).Error)

	users, err := r.UsersByID(context.Background(), []string{"u1", "ghost"})
	require.NoError(t, err)

	assert.Len(t, users, 1)
	_, ok := users["u1"]
	assert.True(t, ok)
	_, ok = users["ghost"]
	assert.False(t, ok)
}

func TestUsersByIDEmptyInputReturnsEmptyMap(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.User{})
	r := NewReader(db)

	users, err := r.UsersByID(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestEarlyWindowEventsScopesToFirstTwoHours(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.Event{})
	r := NewReader(db)

	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&domain.Event{EventID: "1", VideoID: "v1", UserID: "u1", EventType: domain.EventView, Ts: createdAt.Add(time.Hour)}).Error)
	require.NoError(t, db.Create(&domain.Event{EventID: "2", VideoID: "v1", UserID: "u2", EventType: domain.EventView, Ts: createdAt.Add(3 * time.Hour)}).Error)

	events, err := r.EarlyWindowEvents(context.Background(), "v1", createdAt)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "1", events[0].EventID)
}
