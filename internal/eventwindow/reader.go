// Package eventwindow fetches events, users, and videos for a half-open
// window [start, end), paging events in fixed-size batches to bound memory
// on large windows (§4.1 of SPEC_FULL.md).
package eventwindow

import (
	"context"
	"time"

	"integrity-core/internal/domain"
	"integrity-core/pkg/errutil"

	"gorm.io/gorm"
)

// batchSize bounds the number of event rows materialized per storage round
// trip, per the ≈10000-row batch requirement.
const batchSize = 10_000

// Reader fetches the raw rows a window run needs: the event sequence plus
// resolved user and video snapshots, so scoring reads a consistent view for
// reproducibility.
type Reader struct {
	db *gorm.DB
}

func NewReader(db *gorm.DB) *Reader {
	return &Reader{db: db}
}

// EventsForVideo returns the event sequence for one video within
// [start, end), ordered by ts, paging internally in fixed-size batches.
func (r *Reader) EventsForVideo(ctx context.Context, videoID string, start, end time.Time) ([]domain.Event, error) {
	return r.page(ctx, func(db *gorm.DB, offset int) *gorm.DB {
		return db.Where("video_id = ? AND ts >= ? AND ts < ?", videoID, start, end).
			Order("ts ASC").
			Offset(offset)
	})
}

// EventsForWindow returns the full event sequence across all videos within
// [start, end), ordered by (video_id, ts), as required for a window-wide
// run such as compute_units. Paging is internal.
func (r *Reader) EventsForWindow(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	return r.page(ctx, func(db *gorm.DB, offset int) *gorm.DB {
		return db.Where("ts >= ? AND ts < ?", start, end).
			Order("video_id ASC, ts ASC").
			Offset(offset)
	})
}

// EarlyWindowEvents returns the event sequence for one video's first-two-
// hours window, used by the early-velocity kicker (§4.6 step 4). This
// window is anchored to the video's created_at and may fall entirely
// outside the run-day window being scored.
func (r *Reader) EarlyWindowEvents(ctx context.Context, videoID string, createdAt time.Time) ([]domain.Event, error) {
	end := createdAt.Add(2 * time.Hour)
	return r.EventsForVideo(ctx, videoID, createdAt, end)
}

func (r *Reader) page(ctx context.Context, scope func(db *gorm.DB, offset int) *gorm.DB) ([]domain.Event, error) {
	var all []domain.Event
	offset := 0
	for {
		var batch []domain.Event
		db := scope(r.db.WithContext(ctx), offset).Limit(batchSize)
		if err := db.Find(&batch).Error; err != nil {
			return nil, errutil.TransientStorage("failed to page events", err)
		}
		all = append(all, batch...)
		if len(batch) < batchSize {
			break
		}
		offset += batchSize
	}
	return all, nil
}

// VideoIDsWithActivity returns the distinct video_ids with at least one
// event in [start, end), used by the Unit Builder to enumerate candidate
// videos for a run day (§4.6 step 1).
func (r *Reader) VideoIDsWithActivity(ctx context.Context, start, end time.Time) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.Event{}).
		Where("ts >= ? AND ts < ?", start, end).
		Distinct("video_id").
		Pluck("video_id", &ids).Error; err != nil {
		return nil, errutil.TransientStorage("failed to list active video ids", err)
	}
	return ids, nil
}

// Video fetches a single video's metadata snapshot.
func (r *Reader) Video(ctx context.Context, videoID string) (*domain.Video, error) {
	var v domain.Video
	if err := r.db.WithContext(ctx).Where("id = ?", videoID).First(&v).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errutil.TransientStorage("failed to fetch video", err)
	}
	return &v, nil
}

// UsersByID resolves a snapshot of user trust fields for the given ids,
// keyed by id. Missing ids are simply absent from the result rather than
// erroring; callers treat that as neutral-default trust per §4.3.
func (r *Reader) UsersByID(ctx context.Context, ids []string) (map[string]domain.User, error) {
	if len(ids) == 0 {
		return map[string]domain.User{}, nil
	}
	var users []domain.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errutil.TransientStorage("failed to fetch users", err)
	}
	out := make(map[string]domain.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}
