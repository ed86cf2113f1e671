package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"referral-ledger/middleware"
	"referral-ledger/models"
	"referral-ledger/services"
)

const testToken = "gateway-secret"

type testApp struct {
	app       *fiber.App
	settings  *services.SettingsService
	referrals *services.ReferralService
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL",
		filepath.Join(t.TempDir(), "handlers.db"))
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

	log := zap.NewNop()
	ledger := services.NewLedgerService(db, log)
	settings := services.NewSettingsService(db, log)
	milestones := services.NewMilestoneService(ledger, log)
	rewards := services.NewRewardService(db, ledger, milestones, settings, nil, log)
	referrals := services.NewReferralService(db, log)
	analytics := services.NewAnalyticsService(db, nil, false, log)

	app := fiber.New()
	app.Use(middleware.GatewayAuthMiddleware(testToken, log))
	SetupRewardRoutes(app, rewards)
	SetupReferralRoutes(app, referrals)
	SetupAccountRoutes(app, ledger)
	SetupAnalyticsRoutes(app, analytics)
	SetupSettingsRoutes(app, settings, log)

	return &testApp{app: app, settings: settings, referrals: referrals}
}

func (a *testApp) do(t *testing.T, method, path, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (a *testApp) activate(t *testing.T) {
	t.Helper()
	_, err := a.settings.Activate(context.Background(), services.SettingsInput{
		ReferrerRewardValue: decimal.NewFromInt(20),
		ReferredRewardValue: decimal.NewFromInt(10),
	}, "test")
	require.NoError(t, err)
}

func TestGatewayAuth(t *testing.T) {
	a := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/referrals/x", nil)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/referrals/x", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestIssueReward(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/referrals", `{"referrer_account_id":"alice","channel":"Email"}`)
	require.Equal(t, fiber.StatusCreated, status)
	referralID := body["id"].(string)
	assert.Equal(t, "email", body["channel"])

	status, _ = a.do(t, http.MethodPost, "/referrals/"+referralID+"/signup", `{"referred_account_id":"bob"}`)
	require.Equal(t, fiber.StatusOK, status)

	t.Run("no active settings", func(t *testing.T) {
		status, body := a.do(t, http.MethodPost, "/rewards/issue", `{"referral_id":"`+referralID+`"}`)
		assert.Equal(t, fiber.StatusServiceUnavailable, status)
		assert.Equal(t, "CONFIG_MISSING", body["code"])
	})

	a.activate(t)

	t.Run("first call credits", func(t *testing.T) {
		status, body := a.do(t, http.MethodPost, "/rewards/issue", `{"referral_id":"`+referralID+`"}`)
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, false, body["already_credited"])
		assert.Equal(t, float64(20), body["referrer_reward"])
		assert.Equal(t, float64(10), body["referred_reward"])
	})

	t.Run("repeat reports already credited", func(t *testing.T) {
		status, body := a.do(t, http.MethodPost, "/rewards/issue", `{"referral_id":"`+referralID+`"}`)
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, true, body["already_credited"])
		assert.Equal(t, float64(20), body["referrer_reward"])
	})

	t.Run("unknown referral", func(t *testing.T) {
		status, body := a.do(t, http.MethodPost, "/rewards/issue", `{"referral_id":"nope"}`)
		assert.Equal(t, fiber.StatusNotFound, status)
		assert.Equal(t, "NOT_FOUND", body["code"])
	})

	t.Run("missing referral id", func(t *testing.T) {
		status, _ := a.do(t, http.MethodPost, "/rewards/issue", `{}`)
		assert.Equal(t, fiber.StatusBadRequest, status)
	})

	t.Run("balances and history", func(t *testing.T) {
		status, body := a.do(t, http.MethodGet, "/accounts/alice/balance", "")
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, float64(20), body["balance"])

		status, body = a.do(t, http.MethodGet, "/accounts/bob/ledger", "")
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, float64(1), body["total"])

		status, body = a.do(t, http.MethodGet, "/accounts/alice/audit", "")
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, true, body["consistent"])

		status, _ = a.do(t, http.MethodGet, "/accounts/carol/balance", "")
		assert.Equal(t, fiber.StatusNotFound, status)
	})

	t.Run("signup after payout is rejected", func(t *testing.T) {
		status, body := a.do(t, http.MethodPost, "/referrals/"+referralID+"/signup", `{"referred_account_id":"dave"}`)
		assert.Equal(t, fiber.StatusConflict, status)
		assert.Equal(t, "INVALID_STATE", body["code"])
	})
}

func TestIssueReward_ConcurrentRequests(t *testing.T) {
	a := setupTestApp(t)
	a.activate(t)

	status, body := a.do(t, http.MethodPost, "/referrals", `{"referrer_account_id":"carol"}`)
	require.Equal(t, fiber.StatusCreated, status)
	referralID := body["id"].(string)
	status, _ = a.do(t, http.MethodPost, "/referrals/"+referralID+"/signup", `{"referred_account_id":"dave"}`)
	require.Equal(t, fiber.StatusOK, status)

	const callers = 8
	type outcome struct {
		status  int
		already bool
	}
	var (
		wg       sync.WaitGroup
		gate     = make(chan struct{})
		outcomes = make([]outcome, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-gate
			req := httptest.NewRequest(http.MethodPost, "/rewards/issue", strings.NewReader(`{"referral_id":"`+referralID+`"}`))
			req.Header.Set("Authorization", "Bearer "+testToken)
			req.Header.Set("Content-Type", "application/json")
			resp, err := a.app.Test(req, -1)
			if err != nil {
				t.Errorf("request: %v", err)
				return
			}
			defer resp.Body.Close()
			var res services.IssueResult
			if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			outcomes[i] = outcome{status: resp.StatusCode, already: res.AlreadyCredited}
		}(i)
	}
	close(gate)
	wg.Wait()

	first := 0
	for _, o := range outcomes {
		assert.Equal(t, fiber.StatusOK, o.status)
		if !o.already {
			first++
		}
	}
	assert.Equal(t, 1, first)

	status, body = a.do(t, http.MethodGet, "/accounts/carol/balance", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(20), body["balance"])
}

func TestAnalyticsRoutes(t *testing.T) {
	a := setupTestApp(t)

	status, _ := a.do(t, http.MethodPost, "/share-events", `{"referrer_account_id":"alice","channel":"sms","event_type":"click"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := a.do(t, http.MethodPost, "/analytics/recompute", `{"period_date":"2024-06-10","period_type":"daily"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["total_clicks"])
	assert.Equal(t, float64(0), body["conversion_rate"])

	status, body = a.do(t, http.MethodGet, "/analytics/snapshots/2024-06-10?period_type=daily", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "2024-06-10", body["period_date"])

	status, body = a.do(t, http.MethodGet, "/analytics/snapshots", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["snapshots"], 1)

	status, _ = a.do(t, http.MethodGet, "/analytics/snapshots/2024-01-01", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = a.do(t, http.MethodPost, "/analytics/recompute", `{"period_type":"yearly"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestSettingsRoutes(t *testing.T) {
	a := setupTestApp(t)
	payload := `{"referrer_reward_value":20,"referred_reward_value":"10.50","milestones":[{"count":5,"bonus":50}]}`

	status, _ := a.do(t, http.MethodPut, "/admin/settings/reward-rates", payload)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = a.do(t, http.MethodPut, "/admin/settings/reward-rates", payload, "X-User-ID", "u1", "X-User-Roles", "viewer")
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := a.do(t, http.MethodPut, "/admin/settings/reward-rates", payload, "X-User-ID", "u1", "X-User-Roles", "viewer, admin")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "u1", body["created_by"])
	assert.Equal(t, 10.5, body["referred_reward_value"])

	status, body = a.do(t, http.MethodGet, "/admin/settings/reward-rates", "", "X-User-ID", "u1", "X-User-Roles", "admin")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["is_active"])
	assert.Len(t, body["milestones"], 1)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusNotFound, StatusFor(services.ErrNotFound))
	assert.Equal(t, fiber.StatusServiceUnavailable, StatusFor(services.ErrConfigMissing))
	assert.Equal(t, fiber.StatusServiceUnavailable, StatusFor(services.ErrConfigConflict))
	assert.Equal(t, fiber.StatusInternalServerError, StatusFor(services.ErrPersistence))
	assert.Equal(t, fiber.StatusInternalServerError, StatusFor(io.EOF))
}
