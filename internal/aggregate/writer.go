// Package aggregate persists a computed VideoAggregate row and refreshes
// the owning video's latest EIS snapshot (§4.5 of SPEC_FULL.md).
package aggregate

import (
	"context"
	"encoding/json"
	"time"

	"integrity-core/internal/domain"
	"integrity-core/internal/scoring"
	"integrity-core/pkg/db/option"
	"integrity-core/pkg/errutil"
	"integrity-core/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Writer persists VideoAggregate rows and keeps videos.eis_current in sync.
type Writer struct {
	db         *gorm.DB
	node       *snowflake.Node
	aggregates repository.Repository[domain.VideoAggregate]
	videos     repository.Repository[domain.Video]
}

func NewWriter(db *gorm.DB, node *snowflake.Node) *Writer {
	return &Writer{
		db:         db,
		node:       node,
		aggregates: repository.ProvideStore[domain.VideoAggregate](db),
		videos:     repository.ProvideStore[domain.Video](db),
	}
}

// Write inserts the aggregate row for (videoID, windowStart, windowEnd) and
// updates the video's eis_current/eis_updated_at. If an aggregate already
// exists for that key, it is replaced — the last writer wins, per the
// idempotency rule in §4.5.
func (w *Writer) Write(ctx context.Context, videoID string, windowStart, windowEnd time.Time, features domain.VideoAggregateFeatures, result scoring.Result) (*domain.VideoAggregate, error) {
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return nil, errutil.SchemaErr("failed to encode aggregate features", err)
	}

	var written *domain.VideoAggregate
	err = w.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		aggregates := w.aggregates.WithTrx(tx)
		videos := w.videos.WithTrx(tx)

		existing, err := aggregates.FindOne(ctx, &domain.VideoAggregate{
			VideoID:     videoID,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
		})
		if err != nil {
			return errutil.TransientStorage("failed to check existing aggregate", err)
		}

		row := &domain.VideoAggregate{
			VideoID:             videoID,
			WindowStart:         windowStart,
			WindowEnd:           windowEnd,
			Features:            featuresJSON,
			CommentQuality:      result.CommentQuality,
			LikeIntegrity:       result.LikeIntegrity,
			ReportCredibility:   result.ReportCredibility,
			AuthenticEngagement: result.AuthenticEngagement,
			EIS:                 result.EIS,
			CreatedAt:           time.Now().UTC(),
		}

		if existing != nil {
			row.ID = existing.ID
			if err := tx.Model(&domain.VideoAggregate{}).Where("id = ?", existing.ID).Updates(row).Error; err != nil {
				return errutil.TransientStorage("failed to replace aggregate", err)
			}
		} else {
			row.ID = w.node.Generate().String()
			if err := aggregates.Create(ctx, row); err != nil {
				return errutil.TransientStorage("failed to insert aggregate", err)
			}
		}

		written = row

		if err := videos.Update(ctx, videoID, &domain.Video{
			EISCurrent:   result.EIS,
			EISUpdatedAt: time.Now().UTC(),
		}); err != nil {
			return errutil.TransientStorage("failed to update video eis snapshot", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return written, nil
}

// Existing looks up an already-computed aggregate for (videoID,
// windowStart, windowEnd), returning nil if none exists.
func (w *Writer) Existing(ctx context.Context, videoID string, windowStart, windowEnd time.Time) (*domain.VideoAggregate, error) {
	agg, err := w.aggregates.FindOne(ctx, &domain.VideoAggregate{
		VideoID:     videoID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
	if err != nil {
		return nil, errutil.TransientStorage("failed to fetch aggregate", err)
	}
	return agg, nil
}
