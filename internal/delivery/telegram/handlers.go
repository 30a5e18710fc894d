package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/NasaVasa/alertwatch/internal/usecase"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of the Bot API used to answer commands.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Handlers struct {
	users  *usecase.UserService
	alerts *usecase.AlertService
	logger *zap.Logger
}

func NewHandlers(users *usecase.UserService, alerts *usecase.AlertService, logger *zap.Logger) *Handlers {
	return &Handlers{users: users, alerts: alerts, logger: logger}
}

func (h *Handlers) HandleUpdate(ctx context.Context, api Sender, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	if _, err := h.users.Touch(ctx, msg.From.ID, msg.From.UserName, msg.From.LanguageCode); err != nil {
		h.logger.Warn("touch user failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
	}
	if msg.IsCommand() {
		h.handleCommand(ctx, api, msg)
	}
}

func (h *Handlers) handleCommand(ctx context.Context, api Sender, msg *tgbotapi.Message) {
	command := msg.Command()
	args := msg.CommandArguments()
	chatID := msg.Chat.ID
	userID := msg.From.ID

	h.logger.Info(
		"telegram command received",
		zap.Int64("chat_id", chatID),
		zap.Int64("user_id", userID),
		zap.String("username", msg.From.UserName),
		zap.String("command", command),
		zap.String("args", args),
	)

	switch command {
	case "start":
		h.reply(api, chatID, "Welcome to AlertWatch.\n\n"+HelpText)
	case "help":
		h.reply(api, chatID, HelpText)
	case "range":
		parsed, err := ParseRangeArgs(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /range <exchange> <pair> <low> <high> [message]")
			return
		}
		alert, err := h.alerts.CreateRange(ctx, userID, serverID(msg.Chat), parsed.Exchange, parsed.Pair, parsed.Message, parsed.Low, parsed.High)
		if err != nil {
			h.reply(api, chatID, h.alertErrorMessage(err))
			return
		}
		h.reply(api, chatID, fmt.Sprintf("Alert #%d created: %s %s between %s and %s", alert.ID, alert.Exchange, alert.Pair, alert.FromPrice, alert.ToPrice))
	case "remind":
		at, text, err := ParseRemindArgs(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /remind <YYYY-MM-DDTHH:MM> <message>")
			return
		}
		alert, err := h.alerts.CreateRemainder(ctx, userID, serverID(msg.Chat), at, text)
		if err != nil {
			h.reply(api, chatID, h.alertErrorMessage(err))
			return
		}
		h.reply(api, chatID, fmt.Sprintf("Reminder #%d set for %s UTC", alert.ID, at.Format(remindLayout)))
	default:
		h.logger.Warn("unknown command", zap.Int64("user_id", userID), zap.String("command", command))
		h.reply(api, chatID, "Unknown command.\n\n"+HelpText)
	}
}

// serverID maps the chat a command came from to the alert's delivery
// target: the group itself, or the private channel.
func serverID(chat *tgbotapi.Chat) int64 {
	if chat != nil && (chat.IsGroup() || chat.IsSuperGroup()) {
		return chat.ID
	}
	return domain.PrivateServerID
}

func (h *Handlers) alertErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownExchange):
		return "Unknown exchange."
	case errors.Is(err, domain.ErrInvalidAlert):
		return "Invalid alert: " + err.Error()
	}

	h.logger.Warn("unhandled error", zap.Error(err))
	return "Something went wrong. Please try again."
}

func (h *Handlers) reply(api Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}
