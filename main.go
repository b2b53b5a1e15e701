package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"justicetracker/config"
	"justicetracker/db"
	"justicetracker/handlers"
	"justicetracker/models"
	"justicetracker/scrapers"
	"justicetracker/services"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer conn.Close()

	if err := db.Migrate(conn, "schema.sql"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("database schema verified")

	// Notification channels are best effort and optional.
	notifiers := services.MultiNotifier{}
	if cfg.Alerts.EmailEnabled && cfg.Alerts.SendGridAPIKey != "" && cfg.Alerts.AlertEmail != "" {
		notifiers = append(notifiers, services.NewEmailNotifier(cfg.Alerts.SendGridAPIKey, cfg.Alerts.AlertEmail, logger))
	}
	if cfg.Alerts.SlackWebhookURL != "" {
		notifiers = append(notifiers, services.NewSlackNotifier(cfg.Alerts.SlackWebhookURL, logger))
	}

	tracker := services.NewRunTracker(conn, logger)
	if _, err := tracker.FailInterrupted(); err != nil {
		logger.Fatal("interrupted-run sweep failed", zap.Error(err))
	}
	health := services.NewHealthAggregator(conn, tracker, logger)
	alertEngine := services.NewAlertEngine(conn, notifiers, cfg.Scheduler.SlowRunSeconds, logger)
	anomalies := services.NewAnomalyDetector(conn, alertEngine, logger)

	fetcher := scrapers.NewFetcher(logger)
	budget := scrapers.NewBudgetScraper(conn, fetcher, cfg.Sources.BudgetURL, cfg.Sources.FiscalYear, logger)
	treasury := scrapers.NewTreasuryScraper(conn, fetcher, cfg.Sources.TreasuryURL, cfg.Sources.FiscalYear, logger)
	parliament := scrapers.NewParliamentScraper(conn, fetcher, cfg.Sources.ParliamentURL, logger)
	qon := scrapers.NewQoNScraper(conn, fetcher, cfg.Sources.QoNURL, logger)
	reporter := scrapers.NewReporter(conn, logger)

	// The missed-run checker needs the registry, which needs the callable;
	// bind it through a pointer filled in right after construction.
	var missed *services.MissedRunChecker

	callables := map[string]services.JobFunc{
		"budget_scraper":     budget.Run,
		"treasury_scraper":   treasury.Run,
		"parliament_scraper": parliament.Run,
		"qon_scraper":        qon.Run,
		"weekly_report":      reporter.WeeklyReport,
		"health_check":       reporter.HealthCheck,
		"missing_data_check": func(ctx context.Context) (*models.JobResult, error) {
			return missed.Check(ctx)
		},
	}

	registry, err := services.NewRegistry(cfg.Timezone, cfg.Jobs, callables)
	if err != nil {
		logger.Fatal("invalid job configuration", zap.Error(err))
	}
	missed = services.NewMissedRunChecker(conn, registry, alertEngine, logger)

	scheduler := services.NewScheduler(registry, tracker, health, alertEngine,
		cfg.Scheduler.TickInterval, cfg.Scheduler.JobTimeout, logger)
	scheduler.Start(ctx)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	handlers.New(conn, registry, scheduler, tracker, health, alertEngine, anomalies, logger).Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	scheduler.Stop()
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		lvl = parsed
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	if os.Getenv("APP_ENV") == "development" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := zcfg.Build()
	if err != nil {
		logger = zap.NewExample()
	}
	return logger
}
