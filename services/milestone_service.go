package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"referral-ledger/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MilestoneService awards one-time bonuses when a referrer's credited referral count hits a threshold
type MilestoneService struct {
	Ledger *LedgerService
	Log    *zap.Logger
}

func NewMilestoneService(ledger *LedgerService, log *zap.Logger) *MilestoneService {
	return &MilestoneService{Ledger: ledger, Log: log.Named("milestones")}
}

// NormalizeMilestones drops non-positive counts, keeps the first rule for each distinct count
// and sorts ascending.
func NormalizeMilestones(rules []models.MilestoneRule) []models.MilestoneRule {
	seen := make(map[int64]struct{}, len(rules))
	out := make([]models.MilestoneRule, 0, len(rules))
	for _, r := range rules {
		if r.Count <= 0 {
			continue
		}
		if _, ok := seen[r.Count]; ok {
			continue
		}
		seen[r.Count] = struct{}{}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count < out[j].Count })
	return out
}

// CheckAndAward must run inside the issuing transaction, after the referral was claimed
// and with the referrer's account row locked, so the count below is not stale.
func (s *MilestoneService) CheckAndAward(ctx context.Context, tx *gorm.DB, referrerID string, rules []models.MilestoneRule) ([]models.LedgerEntry, error) {
	var credited int64
	if err := tx.WithContext(ctx).Model(&models.Referral{}).
		Where("referrer_account_id = ? AND reward_status = ?", referrerID, models.RewardStatusCredited).
		Count(&credited).Error; err != nil {
		return nil, fmt.Errorf("count credited referrals: %w", err)
	}

	var awarded []models.LedgerEntry
	for _, rule := range NormalizeMilestones(rules) {
		if rule.Count > credited {
			break
		}
		if rule.Count != credited {
			continue
		}

		ref := strconv.FormatInt(rule.Count, 10)
		exists, err := s.Ledger.HasEntry(ctx, tx, referrerID, models.SourceMilestoneBonus, ref)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		entry, err := s.Ledger.Append(ctx, tx, AppendParams{
			AccountID:   referrerID,
			Amount:      rule.Bonus,
			SourceType:  models.SourceMilestoneBonus,
			ReferenceID: ref,
			Description: fmt.Sprintf("Milestone bonus for %d successful referrals", rule.Count),
		})
		if err != nil {
			return nil, err
		}
		awarded = append(awarded, *entry)

		s.Log.Info("milestone bonus awarded",
			zap.String("account_id", referrerID),
			zap.Int64("threshold", rule.Count),
			zap.String("bonus", rule.Bonus.String()),
		)
	}
	return awarded, nil
}
