package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BotAPI is the part of *tgbotapi.BotAPI the messenger relies on.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Messenger delivers notifications through the Telegram Bot API. Calls are
// spaced by a shared limiter to stay under the bot flood limits.
type Messenger struct {
	api     BotAPI
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewMessenger(api BotAPI, perSecond float64, logger *zap.Logger) *Messenger {
	return &Messenger{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger.Named("telegram"),
	}
}

func (m *Messenger) SendToUser(ctx context.Context, userID int64, text string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := m.api.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		err = classify(err, false)
		m.logger.Debug("send to user failed", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

func (m *Messenger) SendToGroup(ctx context.Context, groupID int64, text string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := m.api.Send(tgbotapi.NewMessage(groupID, text)); err != nil {
		err = classify(err, true)
		m.logger.Debug("send to group failed", zap.Int64("group_id", groupID), zap.Error(err))
		return err
	}
	return nil
}

func (m *Messenger) GroupExists(ctx context.Context, groupID int64) (bool, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return false, err
	}
	_, err := m.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: groupID}})
	if err == nil {
		return true, nil
	}
	if err = classify(err, true); errors.Is(err, domain.ErrGroupGone) {
		return false, nil
	}
	return false, err
}

func (m *Messenger) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return false, err
	}
	member, err := m.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: groupID, UserID: userID},
	})
	if err != nil {
		if apiErr := asAPIError(err); apiErr != nil && apiErr.Code == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(apiErr.Message), "user not found") {
			return false, nil
		}
		return false, classify(err, true)
	}
	return !member.HasLeft() && !member.WasKicked(), nil
}

// classify maps Bot API failures onto the domain delivery errors. Anything
// unrecognised stays transient.
func classify(err error, group bool) error {
	apiErr := asAPIError(err)
	if apiErr == nil {
		return fmt.Errorf("telegram: %w", err)
	}
	msg := strings.ToLower(apiErr.Message)
	gone := domain.ErrRecipientGone
	if group {
		gone = domain.ErrGroupGone
	}
	switch {
	case apiErr.Code == http.StatusForbidden && !group && strings.Contains(msg, "blocked"):
		return fmt.Errorf("%w: %s", domain.ErrRecipientBlocked, apiErr.Message)
	case apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", gone, apiErr.Message)
	case apiErr.Code == http.StatusBadRequest && strings.Contains(msg, "chat not found"):
		return fmt.Errorf("%w: %s", gone, apiErr.Message)
	case apiErr.Code == http.StatusBadRequest && group && apiErr.MigrateToChatID != 0:
		return fmt.Errorf("%w: upgraded to %d", gone, apiErr.MigrateToChatID)
	}
	return fmt.Errorf("telegram %d: %w", apiErr.Code, err)
}

func asAPIError(err error) *tgbotapi.Error {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) {
		return ptr
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return &val
	}
	return nil
}
