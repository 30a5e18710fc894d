package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/NasaVasa/alertwatch/internal/txn"
	"go.uber.org/zap"
)

// Unblocker makes held notifications deliverable again.
type Unblocker interface {
	Unblock(ctx context.Context, recipient domain.Recipient) error
}

type UserService struct {
	tx            *txn.Manager
	users         domain.UserRepository
	unblocker     Unblocker
	defaultLocale string
	logger        *zap.Logger
	now           func() time.Time
}

func NewUserService(tx *txn.Manager, users domain.UserRepository, unblocker Unblocker, defaultLocale string, logger *zap.Logger) *UserService {
	return &UserService{
		tx:            tx,
		users:         users,
		unblocker:     unblocker,
		defaultLocale: defaultLocale,
		logger:        logger,
		now:           time.Now,
	}
}

// Touch records that a user interacted with the bot, creating the user on
// first contact. A user writing to the bot has unblocked it, so any held
// notification is released.
func (u *UserService) Touch(ctx context.Context, userID int64, username, languageCode string) (*domain.User, error) {
	now := u.now().UTC()
	var user *domain.User
	err := u.tx.Run(ctx, func(ctx context.Context) error {
		existing, err := u.users.GetByID(ctx, userID)
		switch {
		case err == nil:
			user = existing
		case err == domain.ErrNotFound:
			user = &domain.User{ID: userID, CreatedAt: now}
		default:
			return err
		}
		user.Username = username
		user.Locale = u.locale(languageCode, user.Locale)
		user.LastAccess = now
		return u.users.Upsert(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	if err := u.unblocker.Unblock(ctx, domain.UserRecipient(userID)); err != nil {
		u.logger.Warn("unblock user notifications", zap.Int64("user_id", userID), zap.Error(err))
	}
	return user, nil
}

func (u *UserService) locale(languageCode, current string) string {
	code := strings.ToLower(strings.TrimSpace(languageCode))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	if len(code) == 2 {
		return code
	}
	if current != "" {
		return current
	}
	if u.defaultLocale != "" {
		return u.defaultLocale
	}
	return domain.DefaultLocale
}
