// services/reward_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referral-ledger/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IssueResult is what the conversion trigger gets back
type IssueResult struct {
	AlreadyCredited bool            `json:"already_credited"`
	ReferrerReward  decimal.Decimal `json:"referrer_reward"`
	ReferredReward  decimal.Decimal `json:"referred_reward"`
}

// RewardNotice is handed to the notification collaborator after a first-time credit
type RewardNotice struct {
	ReferralID        string          `json:"referral_id"`
	ReferrerAccountID string          `json:"referrer_account_id"`
	ReferredAccountID string          `json:"referred_account_id,omitempty"`
	ReferrerReward    decimal.Decimal `json:"referrer_reward"`
	ReferredReward    decimal.Decimal `json:"referred_reward"`
	MilestoneBonuses  []MilestoneHit  `json:"milestone_bonuses,omitempty"`
	IssuedAt          time.Time       `json:"issued_at"`
}

type MilestoneHit struct {
	Threshold string          `json:"threshold"`
	Bonus     decimal.Decimal `json:"bonus"`
}

// RewardNotifier receives notices fire-and-forget; it must not block
type RewardNotifier interface {
	Notify(notice RewardNotice)
}

type RewardService struct {
	DB         *gorm.DB
	Ledger     *LedgerService
	Milestones *MilestoneService
	Settings   *SettingsService
	Notifier   RewardNotifier
	Log        *zap.Logger
}

func NewRewardService(db *gorm.DB, ledger *LedgerService, milestones *MilestoneService, settings *SettingsService, notifier RewardNotifier, log *zap.Logger) *RewardService {
	return &RewardService{
		DB:         db,
		Ledger:     ledger,
		Milestones: milestones,
		Settings:   settings,
		Notifier:   notifier,
		Log:        log.Named("rewards"),
	}
}

// Issue credits a converted referral exactly once.
//
// The claim is a conditional UPDATE on reward_status; only the caller whose UPDATE
// hits a row goes on to write ledger entries. Claim, ledger entries and milestone
// bonuses share one transaction, so any failure leaves the referral UNCREDITED and
// the call can simply be retried.
func (s *RewardService) Issue(ctx context.Context, referralID string) (*IssueResult, error) {
	if referralID == "" {
		return nil, fmt.Errorf("%w: referral_id is required", ErrInvalidInput)
	}

	var (
		result IssueResult
		notice *RewardNotice
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		claim := tx.Model(&models.Referral{}).
			Where("id = ? AND reward_status = ?", referralID, models.RewardStatusUncredited).
			Updates(map[string]any{
				"reward_status": models.RewardStatusCredited,
				"status":        models.ReferralStatusPaid,
				"paid_at":       now,
			})
		if claim.Error != nil {
			return fmt.Errorf("claim referral: %w", claim.Error)
		}

		if claim.RowsAffected == 0 {
			var existing models.Referral
			if err := tx.Where("id = ?", referralID).First(&existing).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("load referral: %w", err)
			}
			result = IssueResult{
				AlreadyCredited: true,
				ReferrerReward:  existing.RewardValue,
				ReferredReward:  existing.ReferredRewardValue,
			}
			return nil
		}

		settings, err := s.Settings.LoadActive(ctx, tx)
		if err != nil {
			return err
		}

		var referral models.Referral
		if err := tx.Where("id = ?", referralID).First(&referral).Error; err != nil {
			return fmt.Errorf("load claimed referral: %w", err)
		}

		referredID := ""
		if referral.ReferredAccountID != nil {
			referredID = *referral.ReferredAccountID
		}

		if err := s.Ledger.LockAccounts(ctx, tx, referral.ReferrerAccountID, referredID); err != nil {
			return err
		}

		referrerReward := settings.ReferrerRewardValue
		referredReward := decimal.Zero
		if referredID != "" {
			referredReward = settings.ReferredRewardValue
		}

		if err := tx.Model(&referral).Updates(map[string]any{
			"reward_value":          referrerReward,
			"referred_reward_value": referredReward,
		}).Error; err != nil {
			return fmt.Errorf("record reward values: %w", err)
		}

		if _, err := s.Ledger.Append(ctx, tx, AppendParams{
			AccountID:   referral.ReferrerAccountID,
			Amount:      referrerReward,
			SourceType:  models.SourceReferralReward,
			ReferenceID: referral.ID,
			Description: "Referral reward",
		}); err != nil {
			return err
		}

		if referredID != "" {
			if _, err := s.Ledger.Append(ctx, tx, AppendParams{
				AccountID:   referredID,
				Amount:      referredReward,
				SourceType:  models.SourceReferralWelcome,
				ReferenceID: referral.ID,
				Description: "Welcome credit for joining through a referral",
			}); err != nil {
				return err
			}
		}

		bonuses, err := s.Milestones.CheckAndAward(ctx, tx, referral.ReferrerAccountID, settings.Milestones)
		if err != nil {
			return err
		}

		result = IssueResult{
			ReferrerReward: referrerReward,
			ReferredReward: referredReward,
		}

		notice = &RewardNotice{
			ReferralID:        referral.ID,
			ReferrerAccountID: referral.ReferrerAccountID,
			ReferredAccountID: referredID,
			ReferrerReward:    referrerReward,
			ReferredReward:    referredReward,
			IssuedAt:          now,
		}
		for _, b := range bonuses {
			notice.MilestoneBonuses = append(notice.MilestoneBonuses, MilestoneHit{Threshold: b.ReferenceID, Bonus: b.Amount})
		}
		return nil
	})
	if err != nil {
		s.Log.Warn("referral reward not issued",
			zap.String("referral_id", referralID),
			zap.String("code", ErrorCode(err)),
			zap.Error(err),
		)
		return nil, persistenceErr("issue referral reward", err)
	}

	if result.AlreadyCredited {
		s.Log.Info("referral already credited", zap.String("referral_id", referralID))
		return &result, nil
	}

	s.Log.Info("referral reward issued",
		zap.String("referral_id", referralID),
		zap.String("referrer_reward", result.ReferrerReward.String()),
		zap.String("referred_reward", result.ReferredReward.String()),
		zap.Int("milestone_bonuses", len(notice.MilestoneBonuses)),
	)
	if s.Notifier != nil {
		s.Notifier.Notify(*notice)
	}
	return &result, nil
}
