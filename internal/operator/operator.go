// Package operator exposes the three operator-surface entrypoints named in
// §6 of SPEC_FULL.md as gin HTTP handlers: finalize_revenue_window,
// compute_units, and analyze_window.
package operator

import (
	"net/http"
	"time"

	"integrity-core/internal/domain"
	"integrity-core/internal/eventwindow"
	"integrity-core/internal/feature"
	"integrity-core/internal/revenue"
	"integrity-core/internal/scoring"
	"integrity-core/internal/unitbuilder"
	"integrity-core/pkg/errutil"
	"integrity-core/pkg/middleware"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// Handler wires the gin routes for the three operator entrypoints.
type Handler struct {
	finalizer *revenue.Finalizer
	builder   *unitbuilder.Builder
	reader    *eventwindow.Reader
	params    domain.Parameters
}

type Params struct {
	fx.In
	Finalizer *revenue.Finalizer
	Builder   *unitbuilder.Builder
	Reader    *eventwindow.Reader
}

func NewHandler(p Params) *Handler {
	return &Handler{
		finalizer: p.Finalizer,
		builder:   p.Builder,
		reader:    p.Reader,
		params:    domain.DefaultParameters(),
	}
}

// RegisterParams carries the optional casbin enforcer gating the operator
// surface. Enforcer is optional so a local/dev run without an
// AccessControl.Model configured still serves requests, unauthenticated.
type RegisterParams struct {
	fx.In
	Router   *gin.Engine
	Handler  *Handler
	Enforcer *casbin.Enforcer `optional:"true"`
}

// Register mounts the three entrypoints under /v1 on router, behind the
// casbin authorization middleware when an enforcer is configured.
func Register(p RegisterParams) {
	v1 := p.Router.Group("/v1")
	if p.Enforcer != nil {
		v1.Use(middleware.Authz(p.Enforcer))
	}
	v1.POST("/revenue-windows/finalize", p.Handler.FinalizeRevenueWindow)
	v1.POST("/units/compute", p.Handler.ComputeUnits)
	v1.GET("/videos/:video_id/eis", p.Handler.AnalyzeWindow)
}

var Module = fx.Module("operator", fx.Provide(NewHandler), fx.Invoke(Register))

// finalizeRevenueWindowRequest is the finalize_revenue_window request body.
// Parameters are optional; when absent, DefaultParameters is used. A supplied
// parameters object replaces the defaults as a whole, so fields it omits are
// zero.
type finalizeRevenueWindowRequest struct {
	WindowStart time.Time `json:"window_start" binding:"required"`
	WindowEnd   time.Time `json:"window_end" binding:"required"`
	PaymentType string    `json:"payment_type" binding:"required"`
	DryRun      bool      `json:"dry_run"`

	GrossCents    int64 `json:"gross_cents"`
	TaxesCents    int64 `json:"taxes_cents"`
	FeesCents     int64 `json:"fees_cents"`
	RefundsCents  int64 `json:"refunds_cents"`
	CostsEstCents int64 `json:"costs_est_cents"`

	Parameters *domain.Parameters `json:"parameters"`
}

// FinalizeRevenueWindow implements finalize_revenue_window(start, end,
// params, dry_run) -> RevenueWindowSummary.
func (h *Handler) FinalizeRevenueWindow(c *gin.Context) {
	var req finalizeRevenueWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.Validation("invalid finalize_revenue_window request", err))
		return
	}

	params := h.params
	if req.Parameters != nil {
		params = *req.Parameters
	}

	summary, err := h.finalizer.Finalize(c.Request.Context(), revenue.Input{
		Start:         req.WindowStart,
		End:           req.WindowEnd,
		PaymentType:   req.PaymentType,
		DryRun:        req.DryRun,
		GrossCents:    req.GrossCents,
		TaxesCents:    req.TaxesCents,
		FeesCents:     req.FeesCents,
		RefundsCents:  req.RefundsCents,
		CostsEstCents: req.CostsEstCents,
	}, params)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// computeUnitsRequest is the compute_units request body.
type computeUnitsRequest struct {
	RunDay     time.Time          `json:"run_day" binding:"required"`
	Parameters *domain.Parameters `json:"parameters"`
}

// ComputeUnits implements compute_units(run_day) -> {creator_id -> units},
// scoped to the UTC calendar day named by run_day.
func (h *Handler) ComputeUnits(c *gin.Context) {
	var req computeUnitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.Validation("invalid compute_units request", err))
		return
	}

	params := h.params
	if req.Parameters != nil {
		params = *req.Parameters
	}

	start := req.RunDay.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	result, err := h.builder.Build(c.Request.Context(), start, end, params)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_day":       start.Format("2006-01-02"),
		"creator_units": result.CreatorUnits,
	})
}

// eisDetailsResponse is the analyze_window response: the four component
// scores, the blended EIS, and the raw feature bag that produced them.
type eisDetailsResponse struct {
	VideoID             string                        `json:"video_id"`
	WindowStart         time.Time                     `json:"window_start"`
	WindowEnd           time.Time                     `json:"window_end"`
	AuthenticEngagement float64                       `json:"authentic_engagement"`
	CommentQuality      float64                       `json:"comment_quality"`
	LikeIntegrity       float64                       `json:"like_integrity"`
	ReportCredibility   float64                       `json:"report_credibility"`
	EIS                 float64                       `json:"eis"`
	Features            domain.VideoAggregateFeatures `json:"features"`
}

// AnalyzeWindow implements analyze_window(video_id, start, end) ->
// EISDetails, recomputing the score live from events rather than reading a
// persisted VideoAggregate, so a caller always sees the current formula
// applied to the current data.
func (h *Handler) AnalyzeWindow(c *gin.Context) {
	videoID := c.Param("video_id")

	start, err := time.Parse(time.RFC3339, c.Query("window_start"))
	if err != nil {
		c.Error(errutil.Validation("window_start must be an RFC3339 timestamp", err))
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("window_end"))
	if err != nil {
		c.Error(errutil.Validation("window_end must be an RFC3339 timestamp", err))
		return
	}
	if !start.Before(end) {
		c.Error(errutil.Validation("window_start must precede window_end", nil))
		return
	}

	ctx := c.Request.Context()

	video, err := h.reader.Video(ctx, videoID)
	if err != nil {
		c.Error(err)
		return
	}
	if video == nil {
		c.Error(errutil.NotFound("video not found", nil))
		return
	}

	events, err := h.reader.EventsForVideo(ctx, videoID, start, end)
	if err != nil {
		c.Error(err)
		return
	}

	userIDs := make([]string, 0, len(events)+1)
	seen := map[string]struct{}{video.CreatorID: {}}
	userIDs = append(userIDs, video.CreatorID)
	for _, e := range events {
		if _, ok := seen[e.UserID]; ok {
			continue
		}
		seen[e.UserID] = struct{}{}
		userIDs = append(userIDs, e.UserID)
	}

	users, err := h.reader.UsersByID(ctx, userIDs)
	if err != nil {
		c.Error(err)
		return
	}

	var creatorTrust *float64
	if u, ok := users[video.CreatorID]; ok {
		creatorTrust = u.CreatorTrustScore
	}

	features := feature.Extract(events, *video, end)
	result := scoring.Score(events, features, users, creatorTrust)

	c.JSON(http.StatusOK, eisDetailsResponse{
		VideoID:             videoID,
		WindowStart:         start,
		WindowEnd:           end,
		AuthenticEngagement: result.AuthenticEngagement,
		CommentQuality:      result.CommentQuality,
		LikeIntegrity:       result.LikeIntegrity,
		ReportCredibility:   result.ReportCredibility,
		EIS:                 result.EIS,
		Features:            features,
	})
}
