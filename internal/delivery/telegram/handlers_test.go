package telegram

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NasaVasa/alertwatch/internal/config"
	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/NasaVasa/alertwatch/internal/infra/db"
	"github.com/NasaVasa/alertwatch/internal/txn"
	"github.com/NasaVasa/alertwatch/internal/usecase"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap/zaptest"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

type noopUnblocker struct{ calls int }

func (u *noopUnblocker) Unblock(context.Context, domain.Recipient) error {
	u.calls++
	return nil
}

type fixture struct {
	handlers  *Handlers
	sender    *fakeSender
	unblocker *noopUnblocker
	users     *db.UserRepository
	alerts    *db.AlertRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	gdb, err := db.Open(config.Config{
		DBDriver:       config.DriverSQLite,
		SQLitePath:     filepath.Join(t.TempDir(), "bot.db"),
		DBMaxIdleConns: 1,
		DBMaxOpenConns: 1,
	}, logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	tx := txn.NewManager(db.NewTxBeginner(gdb), sql.LevelSerializable)
	f := &fixture{
		sender:    &fakeSender{},
		unblocker: &noopUnblocker{},
		users:     db.NewUserRepository(gdb),
		alerts:    db.NewAlertRepository(gdb),
	}
	f.handlers = NewHandlers(
		usecase.NewUserService(tx, f.users, f.unblocker, "en", logger),
		usecase.NewAlertService(tx, f.alerts, []string{"binance", domain.VirtualExchange}, logger),
		logger,
	)
	return f
}

func command(chat *tgbotapi.Chat, text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 42, UserName: "carol", LanguageCode: "de"},
		Chat:     chat,
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func (f *fixture) lastReply(t *testing.T) string {
	t.Helper()
	if len(f.sender.sent) == 0 {
		t.Fatal("no reply sent")
	}
	return f.sender.sent[len(f.sender.sent)-1].Text
}

func TestStartRegistersUser(t *testing.T) {
	f := newFixture(t)
	private := &tgbotapi.Chat{ID: 42, Type: "private"}

	f.handlers.HandleUpdate(context.Background(), f.sender, command(private, "/start"))

	user, err := f.users.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if user.Username != "carol" || user.Locale != "de" {
		t.Fatalf("user = %+v", user)
	}
	if !strings.Contains(f.lastReply(t), "/range") {
		t.Fatalf("reply = %q", f.lastReply(t))
	}
	if f.unblocker.calls != 1 {
		t.Fatalf("unblock calls = %d", f.unblocker.calls)
	}
}

func TestRangeCommandInGroupTargetsGroup(t *testing.T) {
	f := newFixture(t)
	group := &tgbotapi.Chat{ID: -1001, Type: "supergroup"}

	f.handlers.HandleUpdate(context.Background(), f.sender, command(group, "/range binance btc/usdt 65000 64000 dip"))

	reply := f.lastReply(t)
	if !strings.Contains(reply, "created") {
		t.Fatalf("reply = %q", reply)
	}
	a, err := f.alerts.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.ServerID != -1001 || a.UserID != 42 || a.Pair != "BTC/USDT" || a.FromPrice.String() != "64000" {
		t.Fatalf("alert = %+v", a)
	}
}

func TestCommandErrorsAreReported(t *testing.T) {
	f := newFixture(t)
	private := &tgbotapi.Chat{ID: 42, Type: "private"}
	tests := []struct {
		text string
		want string
	}{
		{"/range binance BTC/USDT", "Usage: /range"},
		{"/range kraken BTC/USD 1 2", "Unknown exchange"},
		{"/remind 2001-01-01T00:00 too late", "Invalid alert"},
		{"/teleport", "Unknown command"},
	}
	for _, tt := range tests {
		f.handlers.HandleUpdate(context.Background(), f.sender, command(private, tt.text))
		if got := f.lastReply(t); !strings.Contains(got, tt.want) {
			t.Fatalf("%s: reply = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestPlainMessagesOnlyTouchTheUser(t *testing.T) {
	f := newFixture(t)
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42, UserName: "carol"},
		Chat: &tgbotapi.Chat{ID: 42, Type: "private"},
		Text: "hello again",
	}}

	f.handlers.HandleUpdate(context.Background(), f.sender, update)

	if len(f.sender.sent) != 0 {
		t.Fatalf("unexpected replies: %+v", f.sender.sent)
	}
	if f.unblocker.calls != 1 {
		t.Fatalf("unblock calls = %d, want 1", f.unblocker.calls)
	}
}
