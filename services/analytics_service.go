// services/analytics_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"referral-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const PeriodDateLayout = "2006-01-02"

// SnapshotArchiver keeps an off-database copy of each computed snapshot
type SnapshotArchiver interface {
	PutSnapshot(ctx context.Context, key string, body []byte) error
}

type AnalyticsService struct {
	DB       *gorm.DB
	Archiver SnapshotArchiver // optional
	Log      *zap.Logger

	// FilterByPeriod limits the scan to the snapshot's own window instead of all history
	FilterByPeriod bool
	BatchSize      int
}

func NewAnalyticsService(db *gorm.DB, archiver SnapshotArchiver, filterByPeriod bool, log *zap.Logger) *AnalyticsService {
	return &AnalyticsService{
		DB:             db,
		Archiver:       archiver,
		Log:            log.Named("analytics"),
		FilterByPeriod: filterByPeriod,
		BatchSize:      500,
	}
}

// ParsePeriodType accepts daily, weekly or monthly; empty means daily
func ParsePeriodType(raw string) (models.PeriodType, error) {
	switch models.PeriodType(raw) {
	case "":
		return models.PeriodDaily, nil
	case models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly:
		return models.PeriodType(raw), nil
	}
	return "", fmt.Errorf("%w: unknown period_type %q", ErrInvalidInput, raw)
}

// PeriodWindow returns the [start, end) range a snapshot key covers.
// Weekly windows start on the Monday of the date's week.
func PeriodWindow(periodDate string, periodType models.PeriodType) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(PeriodDateLayout, periodDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: period_date must be YYYY-MM-DD", ErrInvalidInput)
	}

	switch periodType {
	case models.PeriodDaily:
		return day, day.AddDate(0, 0, 1), nil
	case models.PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case models.PeriodMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period_type %q", ErrInvalidInput, periodType)
}

// ConversionRate is conversions/sent as a percentage rounded to two places; 0 when nothing was sent
func ConversionRate(conversions, sent int64) decimal.Decimal {
	if sent == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(conversions).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(sent), 2)
}

type shareCount struct {
	EventType models.ShareEventType
	Total     int64
}

// Recompute rebuilds the snapshot for (periodDate, periodType) and upserts it.
// Running it twice over unchanged data yields an identical row.
func (s *AnalyticsService) Recompute(ctx context.Context, periodDate string, periodType models.PeriodType) (*models.AnalyticsSnapshot, error) {
	start, end, err := PeriodWindow(periodDate, periodType)
	if err != nil {
		return nil, err
	}

	snap := models.AnalyticsSnapshot{
		ID:               uuid.NewString(),
		PeriodDate:       periodDate,
		PeriodType:       periodType,
		TotalRewardsPaid: decimal.Zero,
		ChannelBreakdown: map[string]int64{},
	}

	referrals := s.DB.WithContext(ctx).Model(&models.Referral{}).
		Select("id", "channel", "status", "reward_status", "reward_value", "referred_reward_value")
	if s.FilterByPeriod {
		referrals = referrals.Where("created_at >= ? AND created_at < ?", start, end)
	}

	var batch []models.Referral
	res := referrals.FindInBatches(&batch, s.batchSize(), func(tx *gorm.DB, _ int) error {
		for _, r := range batch {
			snap.TotalSent++
			credited := r.RewardStatus == models.RewardStatusCredited
			if credited || r.Status == models.ReferralStatusSignedUp || r.Status == models.ReferralStatusPaid {
				snap.TotalSignups++
			}
			if credited {
				snap.TotalConversions++
				snap.TotalRewardsPaid = snap.TotalRewardsPaid.Add(r.RewardValue).Add(r.ReferredRewardValue)
			}
			channel := r.Channel
			if channel == "" {
				channel = DefaultChannel
			}
			snap.ChannelBreakdown[channel]++
		}
		return nil
	})
	if res.Error != nil {
		s.Log.Error("analytics scan failed", zap.String("period_date", periodDate), zap.Error(res.Error))
		return nil, persistenceErr("scan referrals", res.Error)
	}

	var counts []shareCount
	shares := s.DB.WithContext(ctx).Model(&models.ShareEvent{}).
		Select("event_type, COUNT(*) AS total").
		Group("event_type")
	if s.FilterByPeriod {
		shares = shares.Where("created_at >= ? AND created_at < ?", start, end)
	}
	if err := shares.Scan(&counts).Error; err != nil {
		s.Log.Error("share event scan failed", zap.String("period_date", periodDate), zap.Error(err))
		return nil, persistenceErr("count share events", err)
	}
	for _, c := range counts {
		switch c.EventType {
		case models.ShareEventShare:
			snap.TotalShares = c.Total
		case models.ShareEventClick:
			snap.TotalClicks = c.Total
		}
	}

	snap.ConversionRate = ConversionRate(snap.TotalConversions, snap.TotalSent)

	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "period_date"}, {Name: "period_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_sent", "total_signups", "total_conversions", "conversion_rate",
			"total_rewards_paid", "total_shares", "total_clicks", "channel_breakdown",
		}),
	}).Create(&snap).Error; err != nil {
		s.Log.Error("analytics snapshot upsert failed", zap.String("period_date", periodDate), zap.Error(err))
		return nil, persistenceErr("upsert analytics snapshot", err)
	}

	stored, err := s.Get(ctx, periodDate, periodType)
	if err != nil {
		return nil, err
	}

	s.Log.Info("analytics snapshot recomputed",
		zap.String("period_date", periodDate),
		zap.String("period_type", string(periodType)),
		zap.Int64("total_sent", stored.TotalSent),
		zap.Int64("total_conversions", stored.TotalConversions),
		zap.String("conversion_rate", stored.ConversionRate.String()),
	)

	s.archive(ctx, stored)
	return stored, nil
}

// archive failures never fail the recompute; the database row is authoritative
func (s *AnalyticsService) archive(ctx context.Context, snap *models.AnalyticsSnapshot) {
	if s.Archiver == nil {
		return
	}
	body, err := json.Marshal(snap)
	if err != nil {
		s.Log.Warn("snapshot encode failed", zap.Error(err))
		return
	}
	key := fmt.Sprintf("%s/%s.json", snap.PeriodType, snap.PeriodDate)
	if err := s.Archiver.PutSnapshot(ctx, key, body); err != nil {
		s.Log.Warn("snapshot archive failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *AnalyticsService) Get(ctx context.Context, periodDate string, periodType models.PeriodType) (*models.AnalyticsSnapshot, error) {
	var snap models.AnalyticsSnapshot
	err := s.DB.WithContext(ctx).
		Where("period_date = ? AND period_type = ?", periodDate, periodType).
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceErr("get analytics snapshot", err)
	}
	if snap.ChannelBreakdown == nil {
		snap.ChannelBreakdown = map[string]int64{}
	}
	return &snap, nil
}

// List returns the most recent snapshots of one period type
func (s *AnalyticsService) List(ctx context.Context, periodType models.PeriodType, limit int) ([]models.AnalyticsSnapshot, error) {
	if limit <= 0 || limit > 366 {
		limit = 30
	}
	var snaps []models.AnalyticsSnapshot
	if err := s.DB.WithContext(ctx).
		Where("period_type = ?", periodType).
		Order("period_date DESC").
		Limit(limit).
		Find(&snaps).Error; err != nil {
		return nil, persistenceErr("list analytics snapshots", err)
	}
	for i := range snaps {
		if snaps[i].ChannelBreakdown == nil {
			snaps[i].ChannelBreakdown = map[string]int64{}
		}
	}
	return snaps, nil
}

func (s *AnalyticsService) batchSize() int {
	if s.BatchSize <= 0 {
		return 500
	}
	return s.BatchSize
}
