package services

import (
	"context"
	"fmt"

	"referral-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SettingsService struct {
	DB  *gorm.DB
	Log *zap.Logger
}

// settingsLockKey names the advisory lock that serializes Activate on Postgres
const settingsLockKey int64 = 7_311_904_226

func NewSettingsService(db *gorm.DB, log *zap.Logger) *SettingsService {
	return &SettingsService{DB: db, Log: log.Named("settings")}
}

// LoadActive returns the single active settings row.
// Several active rows are rejected instead of picking one: guessing could over- or under-pay.
func (s *SettingsService) LoadActive(ctx context.Context, tx *gorm.DB) (*models.RewardRateSettings, error) {
	if tx == nil {
		tx = s.DB
	}

	var rows []models.RewardRateSettings
	if err := tx.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Limit(2).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load active settings: %w", err)
	}

	switch len(rows) {
	case 0:
		return nil, ErrConfigMissing
	case 1:
		return &rows[0], nil
	default:
		s.Log.Error("multiple active reward rate settings rows",
			zap.String("first_id", rows[0].ID),
			zap.String("second_id", rows[1].ID),
		)
		return nil, ErrConfigConflict
	}
}

// SettingsInput is what an admin submits to replace the active reward rates
type SettingsInput struct {
	ReferrerRewardValue decimal.Decimal        `json:"referrer_reward_value"`
	ReferredRewardValue decimal.Decimal        `json:"referred_reward_value"`
	RewardType          models.RewardType      `json:"reward_type"`
	Milestones          []models.MilestoneRule `json:"milestones"`
}

func (in SettingsInput) validate() error {
	if in.ReferrerRewardValue.IsNegative() || in.ReferredRewardValue.IsNegative() {
		return fmt.Errorf("%w: reward values must not be negative", ErrInvalidInput)
	}
	for _, m := range in.Milestones {
		if m.Count <= 0 {
			return fmt.Errorf("%w: milestone count must be positive, got %d", ErrInvalidInput, m.Count)
		}
		if !m.Bonus.IsPositive() {
			return fmt.Errorf("%w: milestone %d bonus must be positive", ErrInvalidInput, m.Count)
		}
	}
	return nil
}

// Activate stores a new settings row and deactivates the previous one atomically.
// Concurrent calls are serialized; the last to commit stays active. The partial unique
// index on is_active rejects a second active row should anything bypass this path.
func (s *SettingsService) Activate(ctx context.Context, in SettingsInput, createdBy string) (*models.RewardRateSettings, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.RewardType == "" {
		in.RewardType = models.RewardTypeCredit
	}

	settings := &models.RewardRateSettings{
		ID:                  uuid.NewString(),
		ReferrerRewardValue: in.ReferrerRewardValue,
		ReferredRewardValue: in.ReferredRewardValue,
		RewardType:          in.RewardType,
		Milestones:          NormalizeMilestones(in.Milestones),
		IsActive:            true,
		CreatedBy:           createdBy,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SQLite already serializes writers on the UPDATE below
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", settingsLockKey).Error; err != nil {
				return fmt.Errorf("lock settings: %w", err)
			}
		}
		if err := tx.Model(&models.RewardRateSettings{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(settings).Error
	})
	if err != nil {
		return nil, persistenceErr("activate settings", err)
	}

	s.Log.Info("reward rate settings activated",
		zap.String("id", settings.ID),
		zap.String("referrer_reward", settings.ReferrerRewardValue.String()),
		zap.String("referred_reward", settings.ReferredRewardValue.String()),
		zap.Int("milestones", len(settings.Milestones)),
		zap.String("created_by", createdBy),
	)
	return settings, nil
}
