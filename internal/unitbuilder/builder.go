// Package unitbuilder computes per-video EngUnits and EIS-weighted value
// units for a run window, accumulating per-creator value-unit totals that
// the Allocator turns into cents (§4.6 of SPEC_FULL.md).
package unitbuilder

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"integrity-core/internal/aggregate"
	"integrity-core/internal/domain"
	"integrity-core/internal/eventwindow"
	"integrity-core/internal/feature"
	"integrity-core/internal/scoring"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// videoWorkers bounds how many videos' EIS/EngUnits are computed
// concurrently within one Build call (§5).
const videoWorkers = 8

// VideoUnit is one video's contribution to its creator's value units.
type VideoUnit struct {
	VideoID   string
	CreatorID string
	EngUnits  int64
	EIS       float64
	VU        float64
}

// CreatorIntegrity carries the engagement-weighted average like-integrity
// and report-credibility a creator's videos produced in the window, input
// to the Allocator's integrity multiplier (§9.2).
type CreatorIntegrity struct {
	AvgLikeIntegrity     float64
	AvgReportCredibility float64
}

// Result is the Unit Builder's output for a run window: per-creator raw
// value units (after the streak bonus, before Allocator multipliers),
// per-video detail for VideoRevShare breakdowns, and per-creator integrity
// averages for the Allocator's integrity multiplier.
type Result struct {
	CreatorUnits     map[string]float64
	Videos           []VideoUnit
	CreatorIntegrity map[string]CreatorIntegrity
	StreakBonusCents map[string]float64 // informational: bonus fraction applied per creator
}

// videoResult is one worker's output before per-creator accumulation.
type videoResult struct {
	unit              VideoUnit
	likeIntegrity     float64
	reportCredibility float64
}

// Builder computes value units for a run window.
type Builder struct {
	db     *gorm.DB
	reader *eventwindow.Reader
	writer *aggregate.Writer
}

func NewBuilder(db *gorm.DB, reader *eventwindow.Reader, writer *aggregate.Writer) *Builder {
	return &Builder{db: db, reader: reader, writer: writer}
}

// Build computes value units over [start, end). streakWindowDays/
// streakBonusMax of 0 disables the trailing-integrity bonus entirely
// (§9.1), collapsing to the base spec.md behavior.
func (b *Builder) Build(ctx context.Context, start, end time.Time, params domain.Parameters) (*Result, error) {
	videoIDs, err := b.reader.VideoIDsWithActivity(ctx, start, end)
	if err != nil {
		return nil, err
	}

	// Per-video EIS computation is independent across videos, so it fans out
	// across a bounded worker pool; the per-creator accumulation below stays
	// single-threaded to avoid locking the shared maps.
	results := make([]*videoResult, len(videoIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(videoWorkers)
	for i, videoID := range videoIDs {
		i, videoID := i, videoID
		g.Go(func() error {
			video, err := b.reader.Video(gctx, videoID)
			if err != nil {
				return err
			}
			if video == nil {
				return nil
			}

			features, score, err := b.scoreOrReuse(gctx, *video, start, end)
			if err != nil {
				return err
			}

			engUnits := computeEngUnits(features, params.EventWeights)

			kicker, err := b.earlyKicker(gctx, *video, params)
			if err != nil {
				return err
			}

			vu := float64(engUnits) * math.Pow(score.EIS/100, params.Gamma) * kicker

			results[i] = &videoResult{
				unit: VideoUnit{
					VideoID:   videoID,
					CreatorID: video.CreatorID,
					EngUnits:  engUnits,
					EIS:       score.EIS,
					VU:        vu,
				},
				likeIntegrity:     score.LikeIntegrity,
				reportCredibility: score.ReportCredibility,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	videos := make([]VideoUnit, 0, len(videoIDs))
	creatorVideoIDs := map[string][]string{}
	liWeighted := map[string]float64{}
	rcWeighted := map[string]float64{}
	weightSum := map[string]float64{}

	for _, r := range results {
		if r == nil {
			continue
		}

		videos = append(videos, r.unit)
		creatorVideoIDs[r.unit.CreatorID] = append(creatorVideoIDs[r.unit.CreatorID], r.unit.VideoID)

		w := float64(r.unit.EngUnits)
		liWeighted[r.unit.CreatorID] += r.likeIntegrity * w
		rcWeighted[r.unit.CreatorID] += r.reportCredibility * w
		weightSum[r.unit.CreatorID] += w
	}

	rawUnits := map[string]float64{}
	for _, v := range videos {
		rawUnits[v.CreatorID] += v.VU
	}

	creatorIntegrity := make(map[string]CreatorIntegrity, len(weightSum))
	for creatorID, w := range weightSum {
		if w == 0 {
			creatorIntegrity[creatorID] = CreatorIntegrity{AvgLikeIntegrity: 50, AvgReportCredibility: 50}
			continue
		}
		creatorIntegrity[creatorID] = CreatorIntegrity{
			AvgLikeIntegrity:     liWeighted[creatorID] / w,
			AvgReportCredibility: rcWeighted[creatorID] / w,
		}
	}

	bonusedUnits, bonusFraction, err := b.applyStreakBonus(ctx, rawUnits, creatorVideoIDs, start, params)
	if err != nil {
		return nil, err
	}

	return &Result{
		CreatorUnits:     bonusedUnits,
		Videos:           videos,
		CreatorIntegrity: creatorIntegrity,
		StreakBonusCents: bonusFraction,
	}, nil
}

// scoreOrReuse returns the aggregate's feature/score pair, computing it on
// demand (Feature Extractor + EIS Scorer + Aggregate Writer) when no
// aggregate exists yet for (video, window) — local recovery per §7, not an
// error.
func (b *Builder) scoreOrReuse(ctx context.Context, video domain.Video, start, end time.Time) (domain.VideoAggregateFeatures, scoring.Result, error) {
	existing, err := b.writer.Existing(ctx, video.ID, start, end)
	if err != nil {
		return domain.VideoAggregateFeatures{}, scoring.Result{}, err
	}
	if existing != nil {
		var f domain.VideoAggregateFeatures
		if err := json.Unmarshal(existing.Features, &f); err != nil {
			return domain.VideoAggregateFeatures{}, scoring.Result{}, err
		}
		return f, scoring.Result{
			AuthenticEngagement: existing.AuthenticEngagement,
			CommentQuality:      existing.CommentQuality,
			LikeIntegrity:       existing.LikeIntegrity,
			ReportCredibility:   existing.ReportCredibility,
			EIS:                 existing.EIS,
		}, nil
	}

	events, err := b.reader.EventsForVideo(ctx, video.ID, start, end)
	if err != nil {
		return domain.VideoAggregateFeatures{}, scoring.Result{}, err
	}

	users, err := b.reader.UsersByID(ctx, uniqueUserIDs(events))
	if err != nil {
		return domain.VideoAggregateFeatures{}, scoring.Result{}, err
	}

	creator, err := b.reader.UsersByID(ctx, []string{video.CreatorID})
	if err != nil {
		return domain.VideoAggregateFeatures{}, scoring.Result{}, err
	}
	var creatorTrust *float64
	if u, ok := creator[video.CreatorID]; ok {
		creatorTrust = u.CreatorTrustScore
	}

	features := feature.Extract(events, video, end)
	result := scoring.Score(events, features, users, creatorTrust)

	if _, err := b.writer.Write(ctx, video.ID, start, end, features, result); err != nil {
		return domain.VideoAggregateFeatures{}, scoring.Result{}, err
	}

	return features, result, nil
}

func computeEngUnits(f domain.VideoAggregateFeatures, w domain.EventWeights) int64 {
	return w.View*f.Views + w.Like*f.Likes + w.Comment*f.Comments + w.Share*f.Shares
}

// earlyKicker evaluates the first-two-hours diversity bonus (§4.6 step 4).
func (b *Builder) earlyKicker(ctx context.Context, video domain.Video, params domain.Parameters) (float64, error) {
	events, err := b.reader.EarlyWindowEvents(ctx, video.ID, video.CreatedAt)
	if err != nil {
		return 1.0, err
	}

	var earlyViews int64
	devices := map[string]struct{}{}
	ips := map[string]struct{}{}
	for _, e := range events {
		if e.EventType == domain.EventView {
			earlyViews++
		}
		if e.DeviceID != nil {
			devices[*e.DeviceID] = struct{}{}
		}
		if e.IPHash != nil {
			ips[*e.IPHash] = struct{}{}
		}
	}

	if earlyViews < params.EarlyMinViews {
		return 1.0, nil
	}
	if float64(len(devices)) < params.EarlyDeviceFrac*float64(earlyViews) {
		return 1.0, nil
	}
	if float64(len(ips)) < params.EarlyIPFrac*float64(earlyViews) {
		return 1.0, nil
	}

	return params.EarlyKicker, nil
}

func uniqueUserIDs(events []domain.Event) []string {
	seen := map[string]struct{}{}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.UserID]; ok {
			continue
		}
		seen[e.UserID] = struct{}{}
		ids = append(ids, e.UserID)
	}
	return ids
}
