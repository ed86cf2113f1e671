package services

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"referral-ledger/models"
)

// setupTestDB opens a fresh file-backed database shared by several pooled connections,
// so concurrent transactions really overlap. Transactions stay deferred: a claim that
// reads before it writes fails with SQLITE_BUSY instead of being serialized.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL",
		filepath.Join(t.TempDir(), "ledger.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.LedgerEntry{},
		&models.Referral{},
		&models.RewardRateSettings{},
		&models.ShareEvent{},
		&models.AnalyticsSnapshot{},
	))
	return db
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock, mockDB
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []RewardNotice
}

func (n *recordingNotifier) Notify(notice RewardNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) All() []RewardNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]RewardNotice(nil), n.notices...)
}

type testEnv struct {
	DB        *gorm.DB
	Log       *zap.Logger
	Ledger    *LedgerService
	Settings  *SettingsService
	Milestone *MilestoneService
	Rewards   *RewardService
	Referrals *ReferralService
	Notifier  *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	log := zaptest.NewLogger(t)

	env := &testEnv{DB: db, Log: log, Notifier: &recordingNotifier{}}
	env.Ledger = NewLedgerService(db, log)
	env.Settings = NewSettingsService(db, log)
	env.Milestone = NewMilestoneService(env.Ledger, log)
	env.Rewards = NewRewardService(db, env.Ledger, env.Milestone, env.Settings, env.Notifier, log)
	env.Referrals = NewReferralService(db, log)
	return env
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) activate(t *testing.T, referrer, referred string, milestones ...models.MilestoneRule) *models.RewardRateSettings {
	t.Helper()
	settings, err := e.Settings.Activate(context.Background(), SettingsInput{
		ReferrerRewardValue: dec(referrer),
		ReferredRewardValue: dec(referred),
		Milestones:          milestones,
	}, "test-admin")
	require.NoError(t, err)
	return settings
}

// signedUpReferral creates a referral for referrer and, when referred is not empty, signs it up
func (e *testEnv) signedUpReferral(t *testing.T, referrer, referred string) *models.Referral {
	t.Helper()
	ctx := context.Background()
	ref, err := e.Referrals.Create(ctx, CreateReferralInput{ReferrerAccountID: referrer, Channel: "Instagram"})
	require.NoError(t, err)
	if referred == "" {
		return ref
	}
	ref, err = e.Referrals.MarkSignedUp(ctx, ref.ID, referred)
	require.NoError(t, err)
	return ref
}

// allowSeveralActiveSettings drops the single-active index so a test can build the conflicting state
func allowSeveralActiveSettings(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Migrator().DropIndex(&models.RewardRateSettings{}, models.ActiveSettingsIndex))
}

// runTogether starts fn n times behind a shared gate so the calls overlap
func runTogether(n int, fn func(i int)) {
	var (
		wg   sync.WaitGroup
		gate = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-gate
			fn(i)
		}(i)
	}
	close(gate)
	wg.Wait()
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
