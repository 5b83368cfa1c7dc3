// Package domain holds the storage-backed entities and the immutable
// parameters record every operator entrypoint is invoked with. There is no
// process-global tunable: a run's behavior is fully determined by the
// Parameters value passed to it plus the rows it reads.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// User mirrors the platform's viewer/creator row. Trust, bot, and KYC
// fields are owned by external collaborators (phone/KYC validation); the
// core only reads them. current_balance_cents is mutated exclusively by the
// Allocator.
type User struct {
	ID                  string   `gorm:"column:id;primaryKey"`
	IsCreator           bool     `gorm:"column:is_creator"`
	LikelyBot           bool     `gorm:"column:likely_bot"`
	KYCLevel            *int     `gorm:"column:kyc_level"`
	CreatorTrustScore   *float64 `gorm:"column:creator_trust_score"`
	ViewerTrustScore    *float64 `gorm:"column:viewer_trust_score"`
	CurrentBalanceCents int64    `gorm:"column:current_balance_cents"`
}

func (User) TableName() string { return "users" }

// Video is a published piece of content. eis_current/eis_updated_at are
// mutated only by the Aggregate Writer.
type Video struct {
	ID           string    `gorm:"column:id;primaryKey"`
	CreatorID    string    `gorm:"column:creator_id;index"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	DurationS    float64   `gorm:"column:duration_s"`
	EISCurrent   float64   `gorm:"column:eis_current"`
	EISUpdatedAt time.Time `gorm:"column:eis_updated_at"`
}

func (Video) TableName() string { return "videos" }

// EventType enumerates the append-only event log's event_type column. A
// plain string-backed type stands in for the tagged-variant hierarchy a
// class-based implementation would use for this — there is no behavior
// attached to individual event types beyond the weights in Parameters.
type EventType string

const (
	EventView    EventType = "view"
	EventLike    EventType = "like"
	EventComment EventType = "comment"
	EventShare   EventType = "share"
	EventReport  EventType = "report"
	EventFollow  EventType = "follow"
	EventPause   EventType = "pause"
)

// Event is one append-only viewer action. Never mutated after insert.
type Event struct {
	EventID   string    `gorm:"column:event_id;primaryKey"`
	VideoID   string    `gorm:"column:video_id;index:idx_events_video_ts,priority:1"`
	UserID    string    `gorm:"column:user_id;index"`
	EventType EventType `gorm:"column:event_type"`
	Ts        time.Time `gorm:"column:ts;index:idx_events_video_ts,priority:2"`
	DeviceID  *string   `gorm:"column:device_id"`
	IPHash    *string   `gorm:"column:ip_hash"`
}

func (Event) TableName() string { return "events" }

// VideoAggregateFeatures is the jsonb-backed feature bag a VideoAggregate
// row carries alongside its component scores, so a window's raw feature
// extraction is auditable without recomputing it from events.
type VideoAggregateFeatures struct {
	Views                    int64   `json:"views"`
	Likes                    int64   `json:"likes"`
	Comments                 int64   `json:"comments"`
	Shares                   int64   `json:"shares"`
	Reports                  int64   `json:"reports"`
	ActiveViewers            int64   `json:"active_viewers"`
	UniqueCommenters         int64   `json:"unique_commenters"`
	UniqueLikers             int64   `json:"unique_likers"`
	DeviceConcentrationTop   float64 `json:"device_concentration_top_share"`
	IPConcentrationTop       float64 `json:"ip_concentration_top_share"`
	UsersPerDevice           int64   `json:"users_per_device"`
	UsersPerIP               int64   `json:"users_per_ip"`
	InterArrivalCV           float64 `json:"inter_arrival_cv"`
	InterArrivalCVMissing    bool    `json:"inter_arrival_cv_missing"`
	DurationS                float64 `json:"duration_s"`
	AgeS                     float64 `json:"age_s"`
	RecencyS                 float64 `json:"recency_s"`
}

// VideoAggregate is the append-only per-(video, window) scoring row. One
// row per (video_id, window_start, window_end); the Aggregate Writer
// replaces rather than appends when re-run over the same window.
type VideoAggregate struct {
	ID                 string    `gorm:"column:id;primaryKey"`
	VideoID             string    `gorm:"column:video_id;index:idx_video_aggregates_video_end,priority:1"`
	WindowStart         time.Time `gorm:"column:window_start"`
	WindowEnd           time.Time `gorm:"column:window_end;index:idx_video_aggregates_video_end,priority:2"`
	Features            datatypes.JSON `gorm:"column:features"`
	CommentQuality      float64   `gorm:"column:comment_quality"`
	LikeIntegrity       float64   `gorm:"column:like_integrity"`
	ReportCredibility   float64   `gorm:"column:report_credibility"`
	AuthenticEngagement float64   `gorm:"column:authentic_engagement"`
	EIS                 float64   `gorm:"column:eis"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

func (VideoAggregate) TableName() string { return "video_aggregates" }

// RevenueWindowMeta captures the free-form, audit-facing extras a finalize
// run wants to record alongside the strict columns: guardrail reasons,
// quality-pool adjustment, partial-commit error detail.
type RevenueWindowMeta struct {
	Reason                string  `json:"reason,omitempty"`
	Error                 string  `json:"error,omitempty"`
	QualityPoolAdjustment float64 `json:"quality_pool_adjustment,omitempty"`
	StreakBonusTotalCents int64   `json:"streak_bonus_total_cents,omitempty"`
	OverflowRounds        int     `json:"overflow_rounds,omitempty"`
	ReceiptObjectKey      string  `json:"receipt_object_key,omitempty"`
}

// RevenueWindow is created exactly once per finalized window, keyed by
// (window_start, window_end, payment_type).
type RevenueWindow struct {
	ID               string         `gorm:"column:id;primaryKey"`
	WindowStart      time.Time      `gorm:"column:window_start;uniqueIndex:idx_revenue_window_key,priority:1"`
	WindowEnd        time.Time      `gorm:"column:window_end;uniqueIndex:idx_revenue_window_key,priority:2"`
	PaymentType      string         `gorm:"column:payment_type;uniqueIndex:idx_revenue_window_key,priority:3"`
	Status           string         `gorm:"column:status"`
	GrossRevenueCents int64         `gorm:"column:gross_revenue_cents"`
	TaxesCents       int64          `gorm:"column:taxes_cents"`
	FeesCents        int64          `gorm:"column:fees_cents"`
	RefundsCents     int64          `gorm:"column:refunds_cents"`
	PoolPct          float64        `gorm:"column:pool_pct"`
	MarginTarget     float64        `gorm:"column:margin_target"`
	PlatformFeePct   float64        `gorm:"column:platform_fee_pct"`
	RiskReservePct   float64        `gorm:"column:risk_reserve_pct"`
	CostsEstCents    int64          `gorm:"column:costs_est_cents"`
	CreatorPoolCents int64          `gorm:"column:creator_pool_cents"`
	UnallocatedCents int64          `gorm:"column:unallocated_cents"`
	ReserveCents     int64          `gorm:"column:reserve_cents"`
	Meta             datatypes.JSON `gorm:"column:meta"`
	CreatedAt        time.Time      `gorm:"column:created_at"`
}

func (RevenueWindow) TableName() string { return "revenue_windows" }

const (
	RevenueWindowStatusFinalized = "finalized"
	RevenueWindowStatusPending   = "pending"
)

// VideoRevShare is the per-video breakdown created in the same run as its
// RevenueWindow.
type VideoRevShare struct {
	ID              string  `gorm:"column:id;primaryKey"`
	RevenueWindowID string  `gorm:"column:revenue_window_id;index"`
	VideoID         string  `gorm:"column:video_id"`
	EngUnits        int64   `gorm:"column:eng_units"`
	EISAvg          float64 `gorm:"column:eis_avg"`
	VU              float64 `gorm:"column:vu"`
	SharePct        float64 `gorm:"column:share_pct"`
	AllocatedCents  int64   `gorm:"column:allocated_cents"`
	Meta            datatypes.JSON `gorm:"column:meta"`
}

func (VideoRevShare) TableName() string { return "video_rev_shares" }

// Transaction is an append-only ledger row. Inflow rows are emitted by the
// Allocator; never mutated after insert.
type Transaction struct {
	ID          string    `gorm:"column:id;primaryKey"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	Recipient   string    `gorm:"column:recipient;index"`
	AmountCents int64     `gorm:"column:amount_cents"`
	PaymentType string    `gorm:"column:payment_type"`
	Status      string    `gorm:"column:status"`
	Direction   string    `gorm:"column:direction"`
	ReferenceID string    `gorm:"column:reference_id;index"`
	Hash        string    `gorm:"column:hash"`
	PreviousHash string   `gorm:"column:previous_hash"`
}

func (Transaction) TableName() string { return "transactions" }

const (
	DirectionInflow  = "inflow"
	DirectionOutflow = "outflow"

	TransactionStatusPending = "pending"

	PaymentTypeCreatorPayout = "creator_payout"
	PaymentTypeReserve       = "reserve"
)
