// services/referral_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"referral-ledger/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReferralService records referral link uses, sign-ups and share/click events.
// Crediting is not done here; see RewardService.Issue.
type ReferralService struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewReferralService(db *gorm.DB, log *zap.Logger) *ReferralService {
	return &ReferralService{DB: db, Log: log.Named("referrals")}
}

type CreateReferralInput struct {
	ReferrerAccountID string `json:"referrer_account_id"`
	ReferralCode      string `json:"referral_code"`
	Channel           string `json:"channel"`
}

func (s *ReferralService) Create(ctx context.Context, in CreateReferralInput) (*models.Referral, error) {
	referrer := strings.TrimSpace(in.ReferrerAccountID)
	if referrer == "" {
		return nil, fmt.Errorf("%w: referrer_account_id is required", ErrInvalidInput)
	}

	referral := &models.Referral{
		ID:                uuid.NewString(),
		ReferrerAccountID: referrer,
		ReferralCode:      NormalizeReferralCode(in.ReferralCode),
		Channel:           NormalizeChannel(in.Channel),
		Status:            models.ReferralStatusPending,
		RewardStatus:      models.RewardStatusUncredited,
	}
	if err := s.DB.WithContext(ctx).Create(referral).Error; err != nil {
		return nil, persistenceErr("create referral", err)
	}

	s.Log.Info("referral created",
		zap.String("referral_id", referral.ID),
		zap.String("referrer_account_id", referrer),
		zap.String("channel", referral.Channel),
	)
	return referral, nil
}

func (s *ReferralService) Get(ctx context.Context, id string) (*models.Referral, error) {
	var referral models.Referral
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceErr("get referral", err)
	}
	return &referral, nil
}

// MarkSignedUp attaches the referred account and moves PENDING to SIGNED_UP.
// Repeating the call with the same account is a no-op; any other repeat is rejected.
func (s *ReferralService) MarkSignedUp(ctx context.Context, id, referredAccountID string) (*models.Referral, error) {
	referred := strings.TrimSpace(referredAccountID)
	if referred == "" {
		return nil, fmt.Errorf("%w: referred_account_id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	res := s.DB.WithContext(ctx).Model(&models.Referral{}).
		Where("id = ? AND status = ?", id, models.ReferralStatusPending).
		Updates(map[string]any{
			"referred_account_id": referred,
			"status":              models.ReferralStatusSignedUp,
			"signed_up_at":        now,
		})
	if res.Error != nil {
		return nil, persistenceErr("mark referral signed up", res.Error)
	}

	referral, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		if referral.ReferredAccountID != nil && *referral.ReferredAccountID == referred {
			return referral, nil
		}
		return nil, fmt.Errorf("%w: referral %s is %s", ErrInvalidTransition, id, referral.Status)
	}

	s.Log.Info("referral signed up",
		zap.String("referral_id", id),
		zap.String("referred_account_id", referred),
	)
	return referral, nil
}

type ShareEventInput struct {
	ReferrerAccountID string                `json:"referrer_account_id"`
	Channel           string                `json:"channel"`
	EventType         models.ShareEventType `json:"event_type"`
}

func (s *ReferralService) RecordShareEvent(ctx context.Context, in ShareEventInput) (*models.ShareEvent, error) {
	if strings.TrimSpace(in.ReferrerAccountID) == "" {
		return nil, fmt.Errorf("%w: referrer_account_id is required", ErrInvalidInput)
	}
	switch in.EventType {
	case models.ShareEventShare, models.ShareEventClick:
	default:
		return nil, fmt.Errorf("%w: event_type must be share or click", ErrInvalidInput)
	}

	event := &models.ShareEvent{
		ID:                uuid.NewString(),
		ReferrerAccountID: strings.TrimSpace(in.ReferrerAccountID),
		Channel:           NormalizeChannel(in.Channel),
		EventType:         in.EventType,
	}
	if err := s.DB.WithContext(ctx).Create(event).Error; err != nil {
		return nil, persistenceErr("record share event", err)
	}
	return event, nil
}
