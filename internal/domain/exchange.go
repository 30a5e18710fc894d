package domain

import (
	"context"
	"errors"
)

// Exchange supplies market history. Virtual exchanges host alerts that
// need no candlesticks and are never asked for any.
type Exchange interface {
	Name() string
	IsVirtual() bool
	// GetCandlesticks returns the most recent limit bars, oldest first. The
	// result is non-empty unless an error is returned.
	GetCandlesticks(ctx context.Context, pair string, tf TimeFrame, limit int) ([]Candlestick, error)
}

var (
	// ErrRecipientGone means the user account or private chat no longer exists.
	ErrRecipientGone = errors.New("recipient gone")
	// ErrRecipientBlocked means the user exists but refuses messages for now.
	ErrRecipientBlocked = errors.New("recipient blocked")
	// ErrGroupGone means the group or its channel no longer exists.
	ErrGroupGone = errors.New("group gone")
)

// Messenger delivers rendered text. Errors other than the sentinels above
// are treated as transient.
type Messenger interface {
	SendToUser(ctx context.Context, userID int64, text string) error
	SendToGroup(ctx context.Context, groupID int64, text string) error
	// GroupExists resolves the group's channel. It returns false, nil when
	// the group is gone.
	GroupExists(ctx context.Context, groupID int64) (bool, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
}
