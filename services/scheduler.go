// services/scheduler.go
package services

import (
	"context"
	"time"

	"referral-ledger/models"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartAnalyticsScheduler recomputes the snapshots for the previous UTC day on the given cron.
// The weekly and monthly keys are refreshed on the same run so they always include the last full day.
func (s *AnalyticsService) StartAnalyticsScheduler(cronExpr string) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			s.RecomputeDay(ctx, time.Now().UTC().AddDate(0, 0, -1))
		}),
		gocron.WithName("analytics-recompute"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	s.Log.Info("analytics scheduler started", zap.String("cron", cronExpr))
	return sched, nil
}

// RecomputeDay refreshes the daily, weekly and monthly snapshots containing day.
// Each period is independent; one failing does not stop the others.
func (s *AnalyticsService) RecomputeDay(ctx context.Context, day time.Time) {
	for _, pt := range []models.PeriodType{models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly} {
		start, _, err := PeriodWindow(day.Format(PeriodDateLayout), pt)
		if err != nil {
			continue
		}
		key := start.Format(PeriodDateLayout)
		if _, err := s.Recompute(ctx, key, pt); err != nil {
			s.Log.Error("scheduled recompute failed",
				zap.String("period_date", key),
				zap.String("period_type", string(pt)),
				zap.Error(err),
			)
		}
	}
}
