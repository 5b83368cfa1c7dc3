package unitbuilder

import (
	"context"
	"encoding/json"
	"time"

	"integrity-core/internal/domain"
)

// applyStreakBonus implements §9.1: a creator whose per-video EIS has
// stayed at or above 70 for each of the trailing streak_window_days days
// receives a multiplicative bonus on U_c, linear in streak length up to
// streak_bonus_max at a full streak. The result is renormalized so
// Σ U_c (pre-multiplier) is unchanged — only the distribution shifts.
//
// streakWindowDays/streakBonusMax of 0 disables the bonus, returning
// rawUnits unchanged (a 0 fraction for every creator).
func (b *Builder) applyStreakBonus(ctx context.Context, rawUnits map[string]float64, creatorVideoIDs map[string][]string, windowStart time.Time, params domain.Parameters) (map[string]float64, map[string]float64, error) {
	fraction := make(map[string]float64, len(rawUnits))

	if params.StreakWindowDays <= 0 || params.StreakBonusMax <= 0 {
		for c := range rawUnits {
			fraction[c] = 0
		}
		return rawUnits, fraction, nil
	}

	bonused := make(map[string]float64, len(rawUnits))
	var totalRaw, totalBonused float64

	for creatorID, units := range rawUnits {
		totalRaw += units

		streakDays, err := b.streakLength(ctx, creatorVideoIDs[creatorID], windowStart, params.StreakWindowDays)
		if err != nil {
			return nil, nil, err
		}

		f := params.StreakBonusMax * float64(streakDays) / float64(params.StreakWindowDays)
		fraction[creatorID] = f

		bonused[creatorID] = units * (1 + f)
		totalBonused += bonused[creatorID]
	}

	if totalBonused > 0 && totalRaw > 0 {
		scale := totalRaw / totalBonused
		for c := range bonused {
			bonused[c] *= scale
		}
	}

	return bonused, fraction, nil
}

// streakLength counts consecutive days, most recent first starting at
// windowStart's day, for which the creator's videos' EngUnits-weighted
// average EIS was ≥70, capped at windowDays. A day with no recorded
// aggregate for any of the creator's videos breaks the streak (treated as
// missing data, not as a pass).
func (b *Builder) streakLength(ctx context.Context, videoIDs []string, windowStart time.Time, windowDays int) (int, error) {
	if len(videoIDs) == 0 {
		return 0, nil
	}

	day := windowStart.Truncate(24 * time.Hour)
	streak := 0

	for i := 0; i < windowDays; i++ {
		dayStart := day.AddDate(0, 0, -i)
		dayEnd := dayStart.Add(24 * time.Hour)

		var rows []domain.VideoAggregate
		if err := b.db.WithContext(ctx).
			Where("video_id IN ? AND window_start = ? AND window_end = ?", videoIDs, dayStart, dayEnd).
			Find(&rows).Error; err != nil {
			return streak, err
		}

		if len(rows) == 0 {
			break
		}

		var weightedEIS, weight float64
		for _, r := range rows {
			var f domain.VideoAggregateFeatures
			if err := json.Unmarshal(r.Features, &f); err != nil {
				continue
			}
			w := float64(f.Views + 3*f.Likes + 5*f.Comments + 8*f.Shares)
			if w == 0 {
				w = 1
			}
			weightedEIS += r.EIS * w
			weight += w
		}
		if weight == 0 {
			break
		}

		if weightedEIS/weight < 70 {
			break
		}

		streak++
	}

	return streak, nil
}
