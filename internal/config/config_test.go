package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadDefaults(t *testing.T) {
	lookuper := envconfig.MapLookuper(map[string]string{
		"TELEGRAM_BOT_TOKEN": "token",
		"DB_DRIVER":          "sqlite",
	})
	var cfg Config
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.AlertsCheckPeriodMinutes != 15 {
		t.Fatalf("check period = %d, want 15", cfg.AlertsCheckPeriodMinutes)
	}
	if cfg.NotificationsResendDelay != 30*time.Second {
		t.Fatalf("resend delay = %s, want 30s", cfg.NotificationsResendDelay)
	}
	if cfg.SQLitePath != "alertwatch.db" || cfg.MetricsAddr != ":2112" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		DBDriver:                      DriverPostgres,
		DBHost:                        "localhost",
		DBUser:                        "alertwatch",
		DBName:                        "alertwatch",
		AlertsCheckPeriodMinutes:      15,
		AlertsMaxBatchSize:            100,
		NotificationsBatchSize:        100,
		NotificationsResendDelay:      time.Second,
		NotificationsExpirationMonths: 1,
		UsersExpirationMonths:         1,
		TelegramSendRate:              25,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without host", func(c *Config) { c.DBHost = "" }, "DB_HOST"},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "unsupported DB_DRIVER"},
		{"zero period", func(c *Config) { c.AlertsCheckPeriodMinutes = 0 }, "ALERTS_CHECK_PERIOD_MINUTES"},
		{"zero batch", func(c *Config) { c.NotificationsBatchSize = 0 }, "NOTIFICATIONS_BATCH_SIZE"},
		{"negative retention", func(c *Config) { c.ExpiredDateRetention = -time.Hour }, "retention"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
