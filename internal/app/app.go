package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/NasaVasa/alertwatch/internal/config"
	"github.com/NasaVasa/alertwatch/internal/delivery/telegram"
	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/NasaVasa/alertwatch/internal/infra/binance"
	"github.com/NasaVasa/alertwatch/internal/infra/db"
	"github.com/NasaVasa/alertwatch/internal/infra/log"
	"github.com/NasaVasa/alertwatch/internal/infra/metrics"
	messaging "github.com/NasaVasa/alertwatch/internal/infra/telegram"
	"github.com/NasaVasa/alertwatch/internal/infra/virtual"
	"github.com/NasaVasa/alertwatch/internal/txn"
	"github.com/NasaVasa/alertwatch/internal/usecase"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	bot           *telegram.Bot
	scheduler     *Scheduler
	notifications *usecase.NotificationsService
	metricsServer *http.Server
	logger        *zap.Logger
	cleanupFn     func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	cleanup := func() error {
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	userRepo := db.NewUserRepository(dbConn)
	alertRepo := db.NewAlertRepository(dbConn)
	notificationRepo := db.NewNotificationRepository(dbConn)
	candleRepo := db.NewLastCandlestickRepository(dbConn)
	tx := txn.NewManager(db.NewTxBeginner(dbConn), sql.LevelReadCommitted)
	m := metrics.New()

	api, err := telegram.NewAPI(cfg.TelegramBotToken)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	messenger := messaging.NewMessenger(api, cfg.TelegramSendRate, logger)

	notifications := usecase.NewNotificationsService(
		usecase.NotificationsConfig{
			BatchSize:     cfg.NotificationsBatchSize,
			ResendDelay:   cfg.NotificationsResendDelay,
			DefaultLocale: cfg.DefaultLocale,
		},
		tx, notificationRepo, alertRepo, userRepo, messenger, m, logger.Named("notifications"),
	)

	exchanges := []domain.Exchange{
		binance.NewExchange(cfg.BinanceBaseURL, cfg.BinanceTimeout, logger),
		virtual.NewExchange(),
	}
	names := make([]string, 0, len(exchanges))
	for _, e := range exchanges {
		names = append(names, e.Name())
	}
	watcher := usecase.NewAlertsWatcher(
		usecase.AlertsWatcherConfig{
			CheckPeriodMinutes:            cfg.AlertsCheckPeriodMinutes,
			MaxBatchSize:                  cfg.AlertsMaxBatchSize,
			ExpiredAlertRetention:         cfg.ExpiredAlertRetention,
			ExpiredDateRetention:          cfg.ExpiredDateRetention,
			NotificationsExpirationMonths: cfg.NotificationsExpirationMonths,
			UsersExpirationMonths:         cfg.UsersExpirationMonths,
			DefaultLocale:                 cfg.DefaultLocale,
		},
		tx, userRepo, alertRepo, notificationRepo, candleRepo, exchanges, notifications, m, logger.Named("watcher"),
	)
	scheduler, err := NewScheduler(ctx, watcher, cfg.AlertsCheckPeriodMinutes, logger)
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	users := usecase.NewUserService(tx, userRepo, notifications, cfg.DefaultLocale, logger)
	alerts := usecase.NewAlertService(tx, alertRepo, names, logger)
	handlers := telegram.NewHandlers(users, alerts, logger)
	bot := telegram.NewBot(api, handlers, cfg.TelegramPollTimeout, logger.Named("bot"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &App{
		bot:           bot,
		scheduler:     scheduler,
		notifications: notifications,
		metricsServer: metricsServer,
		logger:        logger,
		cleanupFn:     cleanup,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("alertwatch service starting")

	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	if err := a.notifications.Start(ctx); err != nil {
		return err
	}
	a.scheduler.Start()

	a.logger.Info("alertwatch service started", zap.String("metrics_addr", a.metricsServer.Addr))
	return a.bot.Start(ctx)
}

func (a *App) Shutdown() {
	a.logger.Info("alertwatch service shutting down")
	a.scheduler.Stop(shutdownTimeout)
	a.notifications.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to stop metrics server", zap.Error(err))
	}
	if a.cleanupFn != nil {
		if err := a.cleanupFn(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
