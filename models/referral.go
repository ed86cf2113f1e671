package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralStatus moves forward only: pending → signed_up → paid
type ReferralStatus string

const (
	ReferralStatusPending  ReferralStatus = "PENDING"
	ReferralStatusSignedUp ReferralStatus = "SIGNED_UP"
	ReferralStatusPaid     ReferralStatus = "PAID"
)

// RewardStatus is one-way: uncredited → credited
type RewardStatus string

const (
	RewardStatusUncredited RewardStatus = "UNCREDITED"
	RewardStatusCredited   RewardStatus = "CREDITED"
)

// Referral tracks a referral link use and whether its rewards were credited
type Referral struct {
	ID                string  `gorm:"primaryKey;size:36" json:"id"`
	ReferrerAccountID string  `gorm:"index;not null" json:"referrer_account_id"`
	ReferredAccountID *string `gorm:"index" json:"referred_account_id,omitempty"` // nil until the referred party signs up
	ReferralCode      string  `gorm:"index" json:"referral_code"`
	Channel           string  `gorm:"size:64;index" json:"channel"`

	Status       ReferralStatus `gorm:"size:16;not null;default:'PENDING';index" json:"status"`
	RewardStatus RewardStatus   `gorm:"size:16;not null;default:'UNCREDITED';index" json:"reward_status"`

	// Values actually applied at crediting time (copied from the active settings)
	RewardValue         decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"reward_value"`
	ReferredRewardValue decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"referred_reward_value"`

	SignedUpAt *time.Time `json:"signed_up_at,omitempty"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`

	Timestamps
}

// IsCredited reports whether rewards were already paid out for this referral.
func (r *Referral) IsCredited() bool {
	return r.RewardStatus == RewardStatusCredited
}
