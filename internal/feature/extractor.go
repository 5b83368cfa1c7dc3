// Package feature derives per-(video, window) signal features from a raw
// event sequence, purely as functions of schema fields (§4.2 of
// SPEC_FULL.md). No content semantics: text, image, or audio are never
// inspected.
package feature

import (
	"math"
	"sort"
	"time"

	"integrity-core/internal/domain"
)

// Extract computes the feature set for one video's events within
// [windowStart, windowEnd). events must already be restricted to that
// video and window; video and windowEnd anchor the duration-derived
// fields.
func Extract(events []domain.Event, video domain.Video, windowEnd time.Time) domain.VideoAggregateFeatures {
	f := domain.VideoAggregateFeatures{
		DurationS: video.DurationS,
		AgeS:      windowEnd.Sub(video.CreatedAt).Seconds(),
	}

	activeViewers := map[string]struct{}{}
	commenters := map[string]struct{}{}
	likers := map[string]struct{}{}
	deviceLikes := map[string]int64{}
	ipLikes := map[string]int64{}
	devicePerUser := map[string]map[string]struct{}{} // device -> set of users
	ipPerUser := map[string]map[string]struct{}{}

	var likeTimestamps []time.Time
	var maxTs time.Time

	for _, e := range events {
		activeViewers[e.UserID] = struct{}{}
		if e.Ts.After(maxTs) {
			maxTs = e.Ts
		}

		switch e.EventType {
		case domain.EventView:
			f.Views++
		case domain.EventLike:
			f.Likes++
			likers[e.UserID] = struct{}{}
			likeTimestamps = append(likeTimestamps, e.Ts)

			if e.DeviceID != nil {
				deviceLikes[*e.DeviceID]++
				if devicePerUser[*e.DeviceID] == nil {
					devicePerUser[*e.DeviceID] = map[string]struct{}{}
				}
				devicePerUser[*e.DeviceID][e.UserID] = struct{}{}
			}
			if e.IPHash != nil {
				ipLikes[*e.IPHash]++
				if ipPerUser[*e.IPHash] == nil {
					ipPerUser[*e.IPHash] = map[string]struct{}{}
				}
				ipPerUser[*e.IPHash][e.UserID] = struct{}{}
			}
		case domain.EventComment:
			f.Comments++
			commenters[e.UserID] = struct{}{}
		case domain.EventShare:
			f.Shares++
		case domain.EventReport:
			f.Reports++
		}
	}

	f.ActiveViewers = int64(len(activeViewers))
	f.UniqueCommenters = int64(len(commenters))
	f.UniqueLikers = int64(len(likers))

	f.DeviceConcentrationTop = topShare(deviceLikes, f.Likes)
	f.IPConcentrationTop = topShare(ipLikes, f.Likes)
	f.UsersPerDevice = maxUsersPerKey(devicePerUser)
	f.UsersPerIP = maxUsersPerKey(ipPerUser)

	if cv, ok := interArrivalCV(likeTimestamps); ok {
		f.InterArrivalCV = cv
	} else {
		f.InterArrivalCVMissing = true
	}

	if !maxTs.IsZero() {
		f.RecencyS = windowEnd.Sub(maxTs).Seconds()
	} else {
		f.RecencyS = f.AgeS
	}

	return f
}

// topShare returns the max fraction of a key-count map over total, the
// share concentration measure used for device/ip clustering detection.
// NULL keys (not present in the map) are counted in the denominator but
// never as the numerator, per §4.2.
func topShare(counts map[string]int64, total int64) float64 {
	if total == 0 {
		return 0
	}
	var max int64
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	return float64(max) / float64(total)
}

func maxUsersPerKey(perKey map[string]map[string]struct{}) int64 {
	var max int64
	for _, users := range perKey {
		if n := int64(len(users)); n > max {
			max = n
		}
	}
	return max
}

// interArrivalCV computes the coefficient of variation (σ/μ) of gaps
// between consecutive like timestamps. Fewer than 3 likes is treated as
// missing (neutral), per §4.2.
func interArrivalCV(timestamps []time.Time) (float64, bool) {
	if len(timestamps) < 3 {
		return 0, false
	}
	sorted := append([]time.Time(nil), timestamps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Sub(sorted[i-1]).Seconds())
	}

	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean == 0 {
		return 0, false
	}

	var variance float64
	for _, g := range gaps {
		d := g - mean
		variance += d * d
	}
	variance /= float64(len(gaps))
	stddev := math.Sqrt(variance)

	return stddev / mean, true
}
