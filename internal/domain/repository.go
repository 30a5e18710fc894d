package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidAlert          = errors.New("invalid alert")
	ErrInvalidCandlestick    = errors.New("invalid candlestick")
	ErrUnknownExchange       = errors.New("unknown exchange")
	ErrMalformedNotification = errors.New("malformed notification")
)

type UserRepository interface {
	GetByID(ctx context.Context, userID int64) (*User, error)
	Upsert(ctx context.Context, user *User) error
	Locales(ctx context.Context, userIDs []int64) (map[int64]string, error)
	// DeleteIdle removes users last seen before the given time that own no alert.
	DeleteIdle(ctx context.Context, lastAccessBefore time.Time) (int64, error)
}

// AlertSelection narrows the alerts considered due at a given instant.
type AlertSelection struct {
	Now       time.Time
	Tolerance time.Duration
	Exchange  string
	Pair      string
}

type AlertRepository interface {
	Create(ctx context.Context, alert *Alert) error
	GetByID(ctx context.Context, alertID int64) (*Alert, error)
	// DuePairs returns, per exchange, the pairs having at least one alert
	// whose listening date has passed and whose active range has not ended.
	DuePairs(ctx context.Context, now time.Time, tolerance time.Duration) (map[string][]string, error)
	// StreamDue feeds due alerts of one exchange pair to consume in pages of at
	// most pageSize. Message text is not loaded.
	StreamDue(ctx context.Context, sel AlertSelection, pageSize int, consume func([]Alert) error) error
	// StreamExpired feeds alerts exhausted (repeat < 0) since before
	// exhaustedBefore, or bounded alerts whose to date is before expiredBefore.
	StreamExpired(ctx context.Context, exhaustedBefore, expiredBefore time.Time, pageSize int, consume func([]Alert) error) error
	Messages(ctx context.Context, alertIDs []int64) (map[int64]string, error)
	// UpdateMatched persists listening date, last trigger, margin and repeat.
	UpdateMatched(ctx context.Context, alerts []Alert) error
	// UpdateMargin persists last trigger and margin.
	UpdateMargin(ctx context.Context, alerts []Alert) error
	DeleteByIDs(ctx context.Context, alertIDs []int64) error
	// MigrateToPrivate moves the alerts of a server (optionally only those of
	// one user) to private delivery and returns the moved count per user.
	MigrateToPrivate(ctx context.Context, serverID int64, userID *int64) (map[int64]int64, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, notifications []Notification) error
	// NextBatch returns up to limit NEW notifications, oldest first, skipping
	// the excluded ids.
	NextBatch(ctx context.Context, limit int, exclude []int64) ([]Notification, error)
	FindByRecipient(ctx context.Context, recipient Recipient) ([]Notification, error)
	UpdateStatus(ctx context.Context, notificationIDs []int64, status NotificationStatus) error
	// ResetStatus moves every notification in status from to status to,
	// optionally only for one recipient.
	ResetStatus(ctx context.Context, from, to NotificationStatus, recipient *Recipient) (int64, error)
	UpdateRecipients(ctx context.Context, recipients map[int64]Recipient) error
	DeleteByIDs(ctx context.Context, notificationIDs []int64) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// PairKey identifies one market on one exchange.
type PairKey struct {
	Exchange string
	Pair     string
}

type LastCandlestickRepository interface {
	Get(ctx context.Context, key PairKey) (*Candlestick, error)
	Set(ctx context.Context, key PairKey, candlestick Candlestick) error
	Keys(ctx context.Context) ([]PairKey, error)
	Delete(ctx context.Context, keys []PairKey) error
}
