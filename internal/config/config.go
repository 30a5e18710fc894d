package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	TelegramBotToken    string  `env:"TELEGRAM_BOT_TOKEN,required"`
	TelegramPollTimeout int     `env:"TELEGRAM_POLL_TIMEOUT,default=60"`
	TelegramSendRate    float64 `env:"TELEGRAM_SEND_RATE,default=25"`

	DBDriver          string        `env:"DB_DRIVER,default=postgres"`
	DBHost            string        `env:"DB_HOST"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
	SQLitePath        string        `env:"SQLITE_PATH,default=alertwatch.db"`

	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	LogFile        string        `env:"LOG_FILE"`
	MetricsAddr    string        `env:"METRICS_ADDR,default=:2112"`
	BinanceBaseURL string        `env:"BINANCE_BASE_URL"`
	BinanceTimeout time.Duration `env:"BINANCE_TIMEOUT,default=10s"`

	AlertsCheckPeriodMinutes int           `env:"ALERTS_CHECK_PERIOD_MINUTES,default=15"`
	AlertsMaxBatchSize       int           `env:"ALERTS_MAX_BATCH_SIZE,default=500"`
	ExpiredAlertRetention    time.Duration `env:"EXPIRED_ALERT_RETENTION,default=720h"`
	ExpiredDateRetention     time.Duration `env:"EXPIRED_DATE_RETENTION,default=168h"`

	NotificationsExpirationMonths int           `env:"NOTIFICATIONS_EXPIRATION_MONTHS,default=1"`
	UsersExpirationMonths         int           `env:"USERS_EXPIRATION_MONTHS,default=12"`
	NotificationsBatchSize        int           `env:"NOTIFICATIONS_BATCH_SIZE,default=200"`
	NotificationsResendDelay      time.Duration `env:"NOTIFICATIONS_RESEND_DELAY,default=30s"`

	DefaultLocale string `env:"DEFAULT_LOCALE,default=en"`
}

func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks constraints spanning several fields.
func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverPostgres:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			errs = append(errs, errors.New("DB_HOST, DB_USER and DB_NAME are required for postgres"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if c.AlertsCheckPeriodMinutes <= 0 {
		errs = append(errs, errors.New("ALERTS_CHECK_PERIOD_MINUTES must be positive"))
	}
	if c.AlertsMaxBatchSize <= 0 {
		errs = append(errs, errors.New("ALERTS_MAX_BATCH_SIZE must be positive"))
	}
	if c.NotificationsBatchSize <= 0 {
		errs = append(errs, errors.New("NOTIFICATIONS_BATCH_SIZE must be positive"))
	}
	if c.NotificationsResendDelay <= 0 {
		errs = append(errs, errors.New("NOTIFICATIONS_RESEND_DELAY must be positive"))
	}
	if c.NotificationsExpirationMonths <= 0 || c.UsersExpirationMonths <= 0 {
		errs = append(errs, errors.New("expiration months must be positive"))
	}
	if c.ExpiredAlertRetention < 0 || c.ExpiredDateRetention < 0 {
		errs = append(errs, errors.New("retention windows must not be negative"))
	}
	if c.TelegramSendRate <= 0 {
		errs = append(errs, errors.New("TELEGRAM_SEND_RATE must be positive"))
	}
	return errors.Join(errs...)
}
