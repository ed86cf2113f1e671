package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RewardType string

const (
	RewardTypeCredit RewardType = "credit"
)

// ActiveSettingsIndex is the partial unique index allowing at most one active row
const ActiveSettingsIndex = "idx_reward_settings_single_active"

// MilestoneRule awards Bonus once when an account's credited referral count reaches Count
type MilestoneRule struct {
	Count int64           `json:"count"`
	Bonus decimal.Decimal `json:"bonus"`
}

// RewardRateSettings is the reward configuration. Exactly one row may be active.
type RewardRateSettings struct {
	ID                  string          `gorm:"primaryKey;size:36" json:"id"`
	ReferrerRewardValue decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"referrer_reward_value"`
	ReferredRewardValue decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"referred_reward_value"`
	RewardType          RewardType      `gorm:"size:16;not null;default:'credit'" json:"reward_type"`
	Milestones          []MilestoneRule `gorm:"serializer:json;type:text" json:"milestones"`
	IsActive            bool            `gorm:"not null;default:false;uniqueIndex:idx_reward_settings_single_active,where:is_active" json:"is_active"`
	CreatedBy           string          `json:"created_by,omitempty"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
