package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"referral-ledger/config"
	"referral-ledger/handlers"
	"referral-ledger/logger"
	"referral-ledger/middleware"
	"referral-ledger/models"
	"referral-ledger/services"
	"referral-ledger/utils"
	"referral-ledger/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zlog := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer func() { _ = zlog.Sync() }()
	zlog = zlog.With(zap.String("service", cfg.App.Name), zap.String("env", cfg.App.Env))

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.NewGormLogger(zlog, logger.MapGormLogLevel(cfg.Database.LogLevel), cfg.Database.SlowThreshold),
	})
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		zlog.Fatal("failed to get sql.DB", zap.Error(err))
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.AutoMigrate(
		&models.Account{},
		&models.LedgerEntry{},
		&models.Referral{},
		&models.RewardRateSettings{},
		&models.ShareEvent{},
		&models.AnalyticsSnapshot{},
	); err != nil {
		zlog.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Outbound reward notices
	printer := workers.NewPrinter(cfg.Notify.Locale)
	var sender workers.NoticeSender = &workers.LogSender{Log: zlog.Named("notices"), Printer: printer}
	if cfg.Notify.WebhookURL != "" {
		sender = workers.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.Token, cfg.Notify.Timeout, cfg.Notify.Locale)
	}
	dispatcher := workers.NewNotificationDispatcher(sender, cfg.Notify.BufferSize, zlog)
	dispatcher.Start()

	var archiver services.SnapshotArchiver
	if cfg.Archive.Enabled {
		archive, err := utils.NewR2SnapshotArchive(ctx, utils.R2Options{
			AccountID:       cfg.Archive.AccountID,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			AccessKeySecret: cfg.Archive.AccessKeySecret,
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
		})
		if err != nil {
			zlog.Fatal("failed to initialize snapshot archive", zap.Error(err))
		}
		archiver = archive
	}

	ledgerService := services.NewLedgerService(db, zlog)
	settingsService := services.NewSettingsService(db, zlog)
	milestoneService := services.NewMilestoneService(ledgerService, zlog)
	rewardService := services.NewRewardService(db, ledgerService, milestoneService, settingsService, dispatcher, zlog)
	referralService := services.NewReferralService(db, zlog)
	analyticsService := services.NewAnalyticsService(db, archiver, cfg.Analytics.FilterByPeriod, zlog)

	if cfg.Scheduler.Enabled {
		sched, err := analyticsService.StartAnalyticsScheduler(cfg.Scheduler.AnalyticsCron)
		if err != nil {
			zlog.Fatal("failed to start analytics scheduler", zap.Error(err))
		}
		defer func() { _ = sched.Shutdown() }()
	}

	if cfg.ConversionFeed.URL != "" {
		client := workers.NewConversionFeedClient(cfg.ConversionFeed.URL, cfg.ConversionFeed.Token, 30*time.Second)
		poller := workers.NewConversionFeedPoller(client, rewardService, zlog)
		go poller.Run(ctx, cfg.ConversionFeed.PollInterval)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Only gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.Gateway.ServiceToken, zlog))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.App.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupRewardRoutes(app, rewardService)
	handlers.SetupReferralRoutes(app, referralService)
	handlers.SetupAccountRoutes(app, ledgerService)
	handlers.SetupAnalyticsRoutes(app, analyticsService)
	handlers.SetupSettingsRoutes(app, settingsService, zlog)

	go func() {
		if err := app.Listen(":" + cfg.App.Port); err != nil {
			zlog.Error("server error", zap.Error(err))
			stop()
		}
	}()

	zlog.Info("server running",
		zap.String("port", cfg.App.Port),
		zap.Strings("allowed_origins", cfg.App.AllowedOrigins),
		zap.Bool("scheduler", cfg.Scheduler.Enabled),
		zap.Bool("archive", cfg.Archive.Enabled),
		zap.Bool("conversion_feed", cfg.ConversionFeed.URL != ""),
	)

	<-ctx.Done()
	zlog.Info("shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	dispatcher.Shutdown()
}
