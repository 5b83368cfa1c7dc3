package aggregate

import (
	"context"
	"testing"
	"time"

	"integrity-core/internal/domain"
	"integrity-core/internal/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExistingReturnsNilWhenNoAggregateRecorded(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.VideoAggregate{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	w := NewWriter(db, node)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg, err := w.Existing(context.Background(), "video-1", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, agg)
}

func TestExistingFindsPreviouslyWrittenAggregate(t *testing.T) {
	db := testutil.NewTestDB(t, &domain.VideoAggregate{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	w := NewWriter(db, node)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	require.NoError(t, db.Create(&domain.VideoAggregate{
		ID: "agg-1", VideoID: "video-1", WindowStart: start, WindowEnd: end, EIS: 72,
	}).Error)

	agg, err := w.Existing(context.Background(), "video-1", start, end)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.InDelta(t, 72.0, agg.EIS, 1e-9)
}
