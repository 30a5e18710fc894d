package telegram

import (
	"errors"
	"testing"
	"time"
)

func TestParseRangeArgs(t *testing.T) {
	got, err := ParseRangeArgs("Binance btc/usdt 64000.5 65000 buy the dip")
	if err != nil {
		t.Fatalf("ParseRangeArgs: %v", err)
	}
	if got.Exchange != "binance" || got.Pair != "BTC/USDT" || got.Message != "buy the dip" {
		t.Fatalf("parsed = %+v", got)
	}
	if got.Low.String() != "64000.5" || got.High.String() != "65000" {
		t.Fatalf("prices = %s, %s", got.Low, got.High)
	}

	for _, args := range []string{"", "binance BTC/USDT 1", "binance BTC/USDT one 2", "binance BTC/USDT 1 two"} {
		if _, err := ParseRangeArgs(args); !errors.Is(err, ErrInvalidArguments) {
			t.Fatalf("ParseRangeArgs(%q) err = %v", args, err)
		}
	}
}

func TestParseRemindArgs(t *testing.T) {
	at, text, err := ParseRemindArgs("2026-11-01T09:00 rebalance the book")
	if err != nil {
		t.Fatalf("ParseRemindArgs: %v", err)
	}
	if !at.Equal(time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)) || text != "rebalance the book" {
		t.Fatalf("parsed = %s, %q", at, text)
	}

	for _, args := range []string{"", "2026-11-01T09:00", "tomorrow rebalance"} {
		if _, _, err := ParseRemindArgs(args); !errors.Is(err, ErrInvalidArguments) {
			t.Fatalf("ParseRemindArgs(%q) err = %v", args, err)
		}
	}
}
