package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestMatchedNotificationRecipientAndRender(t *testing.T) {
	a, _ := NewRangeAlert(5, 900, "binance", "BTC/USDT", "buy the dip", PriceFromInt(10), PriceFromInt(20), nil, nil, t0)
	a.ID = 12
	c, _ := NewCandlestick(t0, t0.Add(59e9), PriceFromInt(16), PriceFromInt(17), PriceFromInt(25), PriceFromInt(15))

	n := NewMatchedNotification(t0, "", Matched(a, &c))
	if n.Kind != KindMatched || n.Status != NotificationNew {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.Recipient != ServerRecipient(900) {
		t.Fatalf("recipient = %v, want server 900", n.Recipient)
	}
	if n.Locale != DefaultLocale {
		t.Fatalf("locale = %q", n.Locale)
	}
	if owner, ok := n.OwnerUserID(); !ok || owner != 5 {
		t.Fatalf("owner = %d %v", owner, ok)
	}

	text, err := n.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"Alert #12", "BTC/USDT", "buy the dip", "triggered", "alert disabled"} {
		if !strings.Contains(text, want) {
			t.Errorf("text %q misses %q", text, want)
		}
	}
}

func TestMarginNotificationKind(t *testing.T) {
	a, _ := NewRangeAlert(5, PrivateServerID, "binance", "BTC/USDT", "", PriceFromInt(10), PriceFromInt(20), nil, nil, t0)
	n := NewMatchedNotification(t0, "fr", MarginMatched(a, nil))
	if n.Kind != KindMargin || !n.Kind.IsMatch() {
		t.Fatalf("kind = %s", n.Kind)
	}
	if n.Recipient != UserRecipient(5) {
		t.Fatalf("recipient = %v", n.Recipient)
	}
	text, err := n.Render()
	if err != nil || !strings.Contains(text, "margin zone") {
		t.Fatalf("Render = %q, %v", text, err)
	}
}

func TestRenderMalformed(t *testing.T) {
	n := Notification{ID: 3, Kind: KindMatched, Fields: Fields{{Key: FieldPair, Value: "BTC/USDT"}}}
	if _, err := n.Render(); !errors.Is(err, ErrMalformedNotification) {
		t.Fatalf("err = %v, want ErrMalformedNotification", err)
	}
	n = Notification{Kind: "BOGUS"}
	if _, err := n.Render(); !errors.Is(err, ErrMalformedNotification) {
		t.Fatalf("err = %v, want ErrMalformedNotification", err)
	}
}

func TestMigratedAndDeletedRender(t *testing.T) {
	m := NewMigratedNotification(t0, "en", 5, 900, 3, "you left the group")
	text, err := m.Render()
	if err != nil || !strings.Contains(text, "3 of your alerts from group 900") {
		t.Fatalf("Render = %q, %v", text, err)
	}
	if m.Kind.IsMatch() {
		t.Fatal("migrated notifications are not match kinds")
	}

	a, _ := NewRangeAlert(5, PrivateServerID, "binance", "ETH/USDT", "", PriceFromInt(1), PriceFromInt(2), nil, nil, t0)
	d := NewDeletedNotification(t0, "en", a, "repeats exhausted")
	text, err = d.Render()
	if err != nil || !strings.Contains(text, "was deleted: repeats exhausted") {
		t.Fatalf("Render = %q, %v", text, err)
	}
}
