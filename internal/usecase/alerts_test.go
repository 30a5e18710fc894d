package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"go.uber.org/zap/zaptest"
)

func TestAlertServiceCreatesAlerts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	svc := NewAlertService(s.tx, s.alerts, []string{"binance", domain.VirtualExchange}, zaptest.NewLogger(t))
	svc.now = func() time.Time { return t0 }

	a, err := svc.CreateRange(ctx, 1, -100, "binance", "BTC/USDT", "breakout", domain.PriceFromInt(70000), domain.PriceFromInt(65000))
	if err != nil {
		t.Fatalf("CreateRange: %v", err)
	}
	got := s.alert(t, a.ID)
	if got.FromPrice.String() != "65000" || got.ToPrice.String() != "70000" || got.ServerID != -100 {
		t.Fatalf("stored = %+v", got)
	}
	if got.ListeningDate == nil || !got.ListeningDate.Equal(t0) {
		t.Fatalf("listening date = %v", got.ListeningDate)
	}

	if _, err := svc.CreateRange(ctx, 1, 0, "kraken", "BTC/USD", "", domain.PriceFromInt(1), domain.PriceFromInt(2)); !errors.Is(err, domain.ErrUnknownExchange) {
		t.Fatalf("unknown exchange err = %v", err)
	}
	if _, err := svc.CreateRange(ctx, 1, 0, domain.VirtualExchange, "x", "", domain.PriceFromInt(1), domain.PriceFromInt(2)); !errors.Is(err, domain.ErrUnknownExchange) {
		t.Fatalf("virtual exchange err = %v", err)
	}

	r, err := svc.CreateRemainder(ctx, 2, 0, t0.Add(2*time.Hour), "stretch")
	if err != nil {
		t.Fatalf("CreateRemainder: %v", err)
	}
	if got := s.alert(t, r.ID); got.Type != domain.AlertRemainder || !got.ListeningDate.Equal(t0.Add(2*time.Hour)) {
		t.Fatalf("remainder = %+v", got)
	}
	if _, err := svc.CreateRemainder(ctx, 2, 0, t0.Add(-time.Minute), "late"); !errors.Is(err, domain.ErrInvalidAlert) {
		t.Fatalf("past remainder err = %v", err)
	}
}
