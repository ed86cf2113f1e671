package models

import (
	"github.com/shopspring/decimal"
)

type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
)

// AnalyticsSnapshot is overwritten on every recompute for its (period_date, period_type) key.
// It deliberately has no auto timestamps so identical inputs give identical rows.
type AnalyticsSnapshot struct {
	ID               string           `gorm:"primaryKey;size:36" json:"id"`
	PeriodDate       string           `gorm:"size:10;not null;uniqueIndex:idx_snapshot_period,priority:1" json:"period_date"` // YYYY-MM-DD
	PeriodType       PeriodType       `gorm:"size:16;not null;uniqueIndex:idx_snapshot_period,priority:2" json:"period_type"`
	TotalSent        int64            `json:"total_sent"`
	TotalSignups     int64            `json:"total_signups"`
	TotalConversions int64            `json:"total_conversions"`
	ConversionRate   decimal.Decimal  `gorm:"type:numeric(7,2);not null;default:0" json:"conversion_rate"`
	TotalRewardsPaid decimal.Decimal  `gorm:"type:numeric(20,4);not null;default:0" json:"total_rewards_paid"`
	TotalShares      int64            `json:"total_shares"`
	TotalClicks      int64            `json:"total_clicks"`
	ChannelBreakdown map[string]int64 `gorm:"serializer:json;type:text" json:"channel_breakdown"`
}
