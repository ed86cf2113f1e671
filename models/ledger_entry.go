// models/ledger_entry.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerSourceType identifies why credit moved
type LedgerSourceType string

const (
	SourceReferralReward  LedgerSourceType = "REFERRAL_REWARD"
	SourceReferralWelcome LedgerSourceType = "REFERRAL_WELCOME"
	SourceMilestoneBonus  LedgerSourceType = "MILESTONE_BONUS"
)

// Account is an opaque party that can hold a balance.
// The row only anchors per-account locking; the balance is always derived from ledger entries.
type Account struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Account) TableName() string {
	return "ledger_accounts"
}

// LedgerEntry is an immutable signed credit movement.
// Entries of one account form a running-balance chain ordered by Sequence.
type LedgerEntry struct {
	ID           string           `gorm:"primaryKey;size:36" json:"id"`
	AccountID    string           `gorm:"size:64;not null;uniqueIndex:idx_ledger_account_seq,priority:1;uniqueIndex:idx_ledger_source_ref,priority:1" json:"account_id"`
	Sequence     int64            `gorm:"not null;uniqueIndex:idx_ledger_account_seq,priority:2" json:"sequence"`
	Amount       decimal.Decimal  `gorm:"type:numeric(20,4);not null" json:"amount"`
	BalanceAfter decimal.Decimal  `gorm:"type:numeric(20,4);not null" json:"balance_after"`
	SourceType   LedgerSourceType `gorm:"size:32;not null;uniqueIndex:idx_ledger_source_ref,priority:2" json:"source_type"`
	ReferenceID  string           `gorm:"size:64;not null;uniqueIndex:idx_ledger_source_ref,priority:3" json:"reference_id"`
	Description  string           `gorm:"type:text" json:"description"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
}
