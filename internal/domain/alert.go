package domain

import (
	"fmt"
	"time"
)

type AlertType string

const (
	AlertRange     AlertType = "range"
	AlertTrend     AlertType = "trend"
	AlertRemainder AlertType = "remainder"
)

const (
	// PrivateServerID marks an alert delivered to the owner's private chat.
	PrivateServerID int64 = 0

	// VirtualExchange hosts alerts that need no market data.
	VirtualExchange = "virtual"

	RemainderRepeat    = 1
	DefaultSnoozeHours = 8
	DefaultRepeat      = 0
)

// Alert is an immutable condition owned by a user. The With* methods return
// modified copies.
type Alert struct {
	ID            int64
	Type          AlertType
	UserID        int64
	ServerID      int64
	CreationDate  time.Time
	ListeningDate *time.Time
	LastTrigger   *time.Time
	Exchange      string
	Pair          string
	Message       string
	FromPrice     Price
	ToPrice       Price
	FromDate      *time.Time
	ToDate        *time.Time
	Margin        Price
	Repeat        int
	SnoozeHours   int
}

func NewRangeAlert(userID, serverID int64, exchange, pair, message string, fromPrice, toPrice Price, fromDate, toDate *time.Time, now time.Time) (Alert, error) {
	if fromPrice.GreaterThan(toPrice) {
		fromPrice, toPrice = toPrice, fromPrice
	}
	a := newAlert(AlertRange, userID, serverID, exchange, pair, message, now)
	a.FromPrice, a.ToPrice = fromPrice, toPrice
	a.FromDate, a.ToDate = cloneTime(fromDate), cloneTime(toDate)
	if err := a.Validate(); err != nil {
		return Alert{}, err
	}
	return a, nil
}

func NewTrendAlert(userID, serverID int64, exchange, pair, message string, fromPrice Price, fromDate time.Time, toPrice Price, toDate time.Time, now time.Time) (Alert, error) {
	if toDate.Before(fromDate) {
		fromPrice, toPrice = toPrice, fromPrice
		fromDate, toDate = toDate, fromDate
	}
	a := newAlert(AlertTrend, userID, serverID, exchange, pair, message, now)
	a.FromPrice, a.ToPrice = fromPrice, toPrice
	a.FromDate, a.ToDate = &fromDate, &toDate
	if err := a.Validate(); err != nil {
		return Alert{}, err
	}
	return a, nil
}

func NewRemainderAlert(userID, serverID int64, pair, message string, fromDate time.Time, now time.Time) (Alert, error) {
	a := newAlert(AlertRemainder, userID, serverID, VirtualExchange, pair, message, now)
	a.FromDate = &fromDate
	if fromDate.After(now) {
		a.ListeningDate = cloneTime(&fromDate)
	}
	a.Repeat = RemainderRepeat
	if err := a.Validate(); err != nil {
		return Alert{}, err
	}
	return a, nil
}

func newAlert(t AlertType, userID, serverID int64, exchange, pair, message string, now time.Time) Alert {
	listening := now
	return Alert{
		Type:          t,
		UserID:        userID,
		ServerID:      serverID,
		CreationDate:  now,
		ListeningDate: &listening,
		Exchange:      exchange,
		Pair:          pair,
		Message:       message,
		Repeat:        DefaultRepeat,
		SnoozeHours:   DefaultSnoozeHours,
	}
}

func (a Alert) Validate() error {
	if a.Pair == "" || a.Exchange == "" {
		return fmt.Errorf("%w: missing exchange or pair", ErrInvalidAlert)
	}
	if a.ListeningDate != nil && a.ListeningDate.Before(a.CreationDate) {
		return fmt.Errorf("%w: listening date before creation date", ErrInvalidAlert)
	}
	if a.LastTrigger != nil && a.LastTrigger.Before(a.CreationDate) {
		return fmt.Errorf("%w: last trigger before creation date", ErrInvalidAlert)
	}
	if a.Margin.Sign() < 0 {
		return fmt.Errorf("%w: negative margin", ErrInvalidAlert)
	}
	if a.SnoozeHours <= 0 {
		return fmt.Errorf("%w: snooze must be positive", ErrInvalidAlert)
	}
	switch a.Type {
	case AlertRange:
		if a.FromPrice.GreaterThan(a.ToPrice) {
			return fmt.Errorf("%w: from price above to price", ErrInvalidAlert)
		}
		if a.FromDate != nil && a.ToDate != nil && !a.FromDate.Before(*a.ToDate) {
			return fmt.Errorf("%w: from date not before to date", ErrInvalidAlert)
		}
	case AlertTrend:
		if a.FromDate == nil || a.ToDate == nil || !a.FromDate.Before(*a.ToDate) {
			return fmt.Errorf("%w: trend needs from date before to date", ErrInvalidAlert)
		}
	case AlertRemainder:
		if a.FromDate == nil {
			return fmt.Errorf("%w: remainder needs a date", ErrInvalidAlert)
		}
		if !a.FromPrice.IsZero() || !a.ToPrice.IsZero() {
			return fmt.Errorf("%w: remainder has no price", ErrInvalidAlert)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAlert, a.Type)
	}
	return nil
}

func (a Alert) IsPrivate() bool { return a.ServerID == PrivateServerID }

func (a Alert) IsEnabled() bool { return a.ListeningDate != nil }

// HasBoundedDates reports whether the alert expires once its to date passes.
func (a Alert) HasBoundedDates() bool {
	return a.Type == AlertRange && a.ToDate != nil
}

// Recipient is where notifications about the alert are delivered.
func (a Alert) Recipient() Recipient {
	if a.IsPrivate() {
		return UserRecipient(a.UserID)
	}
	return ServerRecipient(a.ServerID)
}

func (a Alert) WithListeningDate(t *time.Time) Alert {
	a.ListeningDate = cloneTime(t)
	return a
}

func (a Alert) WithLastTrigger(t *time.Time) Alert {
	a.LastTrigger = cloneTime(t)
	return a
}

func (a Alert) WithMargin(margin Price) Alert {
	a.Margin = margin
	return a
}

func (a Alert) WithRepeat(repeat int) Alert {
	a.Repeat = repeat
	return a
}

func (a Alert) WithSnoozeHours(hours int) Alert {
	a.SnoozeHours = hours
	return a
}

func (a Alert) WithServerID(serverID int64) Alert {
	a.ServerID = serverID
	return a
}

func (a Alert) WithMessage(message string) Alert {
	a.Message = message
	return a
}

// AfterMatch applies a full trigger: one repeat is consumed, the alert
// sleeps for its snooze or is disabled once repeats are exhausted.
func (a Alert) AfterMatch(now time.Time) Alert {
	a.Repeat--
	if a.Repeat >= 0 {
		next := now.Add(time.Duration(a.SnoozeHours) * time.Hour)
		a.ListeningDate = &next
	} else {
		a.ListeningDate = nil
	}
	triggered := now
	a.LastTrigger = &triggered
	a.Margin = Price{}
	return a
}

// AfterMargin records a margin hit. The alert keeps listening.
func (a Alert) AfterMargin(now time.Time) Alert {
	triggered := now
	a.LastTrigger = &triggered
	a.Margin = Price{}
	return a
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
