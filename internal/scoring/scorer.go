// Package scoring computes the four Engagement Integrity Score components
// (Authentic Engagement, Comment Quality, Like Integrity, Report
// Credibility) and blends them into the final EIS (§4.4 of SPEC_FULL.md).
package scoring

import (
	"integrity-core/internal/domain"
	"integrity-core/internal/trust"
)

// clamp bounds x to [lo, hi].
func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Result is the four component scores plus the blended EIS, all in [0,100].
type Result struct {
	AuthenticEngagement float64
	CommentQuality      float64
	LikeIntegrity       float64
	ReportCredibility   float64
	EIS                 float64
}

// Score blends the four component scores for one video's window. events
// must be restricted to the video and window being scored; features is the
// already-extracted feature set for the same slice. users resolves VTS for
// any user id appearing in events; missing users fall back to the
// neutral-default trust treatment.
func Score(events []domain.Event, features domain.VideoAggregateFeatures, users map[string]domain.User, creatorTrustScore *float64) Result {
	ae := authenticEngagement(features)
	cq := commentQuality(events, features, users)
	li := likeIntegrity(events, features, users)
	rc := reportCredibility(events, features, users)

	eis := 0.40*ae + 0.25*cq + 0.20*li + 0.15*rc

	if creatorTrustScore != nil {
		mod := clamp(0.95+(*creatorTrustScore-50)/1000, 0.95, 1.05)
		eis *= mod
	}

	return Result{
		AuthenticEngagement: ae,
		CommentQuality:      cq,
		LikeIntegrity:       li,
		ReportCredibility:   rc,
		EIS:                 clamp(eis, 0, 100),
	}
}

func authenticEngagement(f domain.VideoAggregateFeatures) float64 {
	duration := f.DurationS
	if duration <= 0 {
		duration = 15
	}

	targetLPV := clamp(0.08*(15/duration), 0.02, 0.25)
	targetCPV := clamp(0.02*(15/duration), 0.005, 0.08)

	views := f.Views
	if views < 1 {
		views = 1
	}
	lpv := float64(f.Likes) / float64(views)
	cpv := float64(f.Comments) / float64(views)

	sL := clamp(lpv/targetLPV, 0, 1)
	sC := clamp(cpv/targetCPV, 0, 1)

	var rec float64
	if f.AgeS <= 86400 {
		rec = 1.0
	} else {
		rec = max64(0.6, 1-(f.AgeS-86400)/(7*86400))
	}

	aud := clamp(float64(f.ActiveViewers)/50, 0, 1)

	return 100 * rec * (0.4*sL + 0.4*sC + 0.2*aud)
}

func commentQuality(events []domain.Event, f domain.VideoAggregateFeatures, users map[string]domain.User) float64 {
	comments := f.Comments
	if comments < 1 {
		comments = 1
	}
	uniqueRate := float64(f.UniqueCommenters) / float64(comments)

	seen := map[string]struct{}{}
	var sum float64
	var n int
	for _, e := range events {
		if e.EventType != domain.EventComment {
			continue
		}
		if _, ok := seen[e.UserID]; ok {
			continue
		}
		seen[e.UserID] = struct{}{}
		sum += trust.VTSOf(users, e.UserID)
		n++
	}
	avgVTS := 0.0
	if n > 0 {
		avgVTS = sum / float64(n) / 100
	}

	return 100 * (0.5*uniqueRate + 0.5*avgVTS)
}

func likeIntegrity(events []domain.Event, f domain.VideoAggregateFeatures, users map[string]domain.User) float64 {
	seen := map[string]struct{}{}
	var sum float64
	var n int
	for _, e := range events {
		if e.EventType != domain.EventLike {
			continue
		}
		if _, ok := seen[e.UserID]; ok {
			continue
		}
		seen[e.UserID] = struct{}{}
		sum += trust.VTSOf(users, e.UserID)
		n++
	}
	base := 0.0
	if n > 0 {
		base = sum / float64(n) / 100
	}

	nat := 0.7
	if !f.InterArrivalCVMissing {
		nat = clamp(f.InterArrivalCV/0.6, 0, 1)
	}

	topShare := f.DeviceConcentrationTop
	if f.IPConcentrationTop > topShare {
		topShare = f.IPConcentrationTop
	}
	clus := clamp(topShare-0.2, 0, 0.6) / 0.6

	return 100 * max64(0, 0.5*base+0.3*nat-0.4*clus+0.1)
}

func reportCredibility(events []domain.Event, f domain.VideoAggregateFeatures, users map[string]domain.User) float64 {
	var w float64
	for _, e := range events {
		if e.EventType != domain.EventReport {
			continue
		}
		w += trust.VTSOf(users, e.UserID) / 100
	}

	denom := max64(5, 0.05*float64(f.Views))
	return 100 * max64(0, 1-w/denom)
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
