package db

import (
	"encoding/json"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type userModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false"`
	Username   string
	Locale     string    `gorm:"size:16;not null"`
	LastAccess time.Time `gorm:"index;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (userModel) TableName() string { return "users" }

type alertModel struct {
	ID            int64           `gorm:"primaryKey"`
	Type          string          `gorm:"size:16;not null"`
	UserID        int64           `gorm:"index;not null"`
	ServerID      int64           `gorm:"index;not null"`
	CreationDate  time.Time       `gorm:"not null"`
	ListeningDate *time.Time      `gorm:"index"`
	LastTrigger   *time.Time
	Exchange      string          `gorm:"index:idx_alerts_exchange_pair,priority:1;not null"`
	Pair          string          `gorm:"index:idx_alerts_exchange_pair,priority:2;not null"`
	Message       string          `gorm:"type:text"`
	FromPrice     decimal.Decimal `gorm:"type:varchar(64);not null"`
	ToPrice       decimal.Decimal `gorm:"type:varchar(64);not null"`
	FromDate      *time.Time
	ToDate        *time.Time
	Margin        decimal.Decimal `gorm:"type:varchar(64);not null"`
	Repeat        int             `gorm:"column:repeat_count;not null"`
	SnoozeHours   int             `gorm:"not null"`
}

func (alertModel) TableName() string { return "alerts" }

type notificationModel struct {
	ID            int64          `gorm:"primaryKey"`
	CreationDate  time.Time      `gorm:"index;not null"`
	Status        string         `gorm:"size:16;index;not null"`
	Kind          string         `gorm:"size:16;not null"`
	RecipientType string         `gorm:"size:16;index:idx_notifications_recipient,priority:1;not null"`
	RecipientID   int64          `gorm:"index:idx_notifications_recipient,priority:2;not null"`
	Locale        string         `gorm:"size:16;not null"`
	Fields        datatypes.JSON
}

func (notificationModel) TableName() string { return "notifications" }

type lastCandlestickModel struct {
	Exchange  string          `gorm:"primaryKey"`
	Pair      string          `gorm:"primaryKey"`
	OpenTime  time.Time       `gorm:"not null"`
	CloseTime time.Time       `gorm:"not null"`
	Open      decimal.Decimal `gorm:"type:varchar(64);not null"`
	Close     decimal.Decimal `gorm:"type:varchar(64);not null"`
	High      decimal.Decimal `gorm:"type:varchar(64);not null"`
	Low       decimal.Decimal `gorm:"type:varchar(64);not null"`
}

func (lastCandlestickModel) TableName() string { return "last_candlesticks" }

func mapUserToDomain(model userModel) *domain.User {
	return &domain.User{
		ID:         model.ID,
		Username:   model.Username,
		Locale:     model.Locale,
		LastAccess: model.LastAccess,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

func mapUserToModel(user domain.User) userModel {
	locale := user.Locale
	if locale == "" {
		locale = domain.DefaultLocale
	}
	return userModel{
		ID:         user.ID,
		Username:   user.Username,
		Locale:     locale,
		LastAccess: user.LastAccess.UTC(),
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

func mapAlertToDomain(model alertModel) domain.Alert {
	return domain.Alert{
		ID:            model.ID,
		Type:          domain.AlertType(model.Type),
		UserID:        model.UserID,
		ServerID:      model.ServerID,
		CreationDate:  model.CreationDate,
		ListeningDate: model.ListeningDate,
		LastTrigger:   model.LastTrigger,
		Exchange:      model.Exchange,
		Pair:          model.Pair,
		Message:       model.Message,
		FromPrice:     domain.PriceFromDecimal(model.FromPrice),
		ToPrice:       domain.PriceFromDecimal(model.ToPrice),
		FromDate:      model.FromDate,
		ToDate:        model.ToDate,
		Margin:        domain.PriceFromDecimal(model.Margin),
		Repeat:        model.Repeat,
		SnoozeHours:   model.SnoozeHours,
	}
}

func mapAlertsToDomain(models []alertModel) []domain.Alert {
	alerts := make([]domain.Alert, 0, len(models))
	for _, model := range models {
		alerts = append(alerts, mapAlertToDomain(model))
	}
	return alerts
}

func mapAlertToModel(alert domain.Alert) alertModel {
	return alertModel{
		ID:            alert.ID,
		Type:          string(alert.Type),
		UserID:        alert.UserID,
		ServerID:      alert.ServerID,
		CreationDate:  alert.CreationDate.UTC(),
		ListeningDate: utcPtr(alert.ListeningDate),
		LastTrigger:   utcPtr(alert.LastTrigger),
		Exchange:      alert.Exchange,
		Pair:          alert.Pair,
		Message:       alert.Message,
		FromPrice:     alert.FromPrice.Decimal(),
		ToPrice:       alert.ToPrice.Decimal(),
		FromDate:      utcPtr(alert.FromDate),
		ToDate:        utcPtr(alert.ToDate),
		Margin:        alert.Margin.Decimal(),
		Repeat:        alert.Repeat,
		SnoozeHours:   alert.SnoozeHours,
	}
}

// A payload that fails to decode maps to empty fields, which the renderer
// reports as malformed.
func mapNotificationToDomain(model notificationModel) domain.Notification {
	var fields domain.Fields
	if len(model.Fields) > 0 {
		if err := json.Unmarshal(model.Fields, &fields); err != nil {
			fields = nil
		}
	}
	return domain.Notification{
		ID:           model.ID,
		CreationDate: model.CreationDate,
		Status:       domain.NotificationStatus(model.Status),
		Kind:         domain.NotificationKind(model.Kind),
		Recipient:    domain.Recipient{Type: domain.RecipientType(model.RecipientType), ID: model.RecipientID},
		Locale:       model.Locale,
		Fields:       fields,
	}
}

func mapNotificationsToDomain(models []notificationModel) []domain.Notification {
	notifications := make([]domain.Notification, 0, len(models))
	for _, model := range models {
		notifications = append(notifications, mapNotificationToDomain(model))
	}
	return notifications
}

func mapNotificationToModel(n domain.Notification) (notificationModel, error) {
	fields, err := json.Marshal(n.Fields)
	if err != nil {
		return notificationModel{}, err
	}
	return notificationModel{
		ID:            n.ID,
		CreationDate:  n.CreationDate.UTC(),
		Status:        string(n.Status),
		Kind:          string(n.Kind),
		RecipientType: string(n.Recipient.Type),
		RecipientID:   n.Recipient.ID,
		Locale:        n.Locale,
		Fields:        datatypes.JSON(fields),
	}, nil
}

func mapCandlestickToDomain(model lastCandlestickModel) *domain.Candlestick {
	return &domain.Candlestick{
		OpenTime:  model.OpenTime,
		CloseTime: model.CloseTime,
		Open:      domain.PriceFromDecimal(model.Open),
		Close:     domain.PriceFromDecimal(model.Close),
		High:      domain.PriceFromDecimal(model.High),
		Low:       domain.PriceFromDecimal(model.Low),
	}
}

func mapCandlestickToModel(key domain.PairKey, c domain.Candlestick) lastCandlestickModel {
	return lastCandlestickModel{
		Exchange:  key.Exchange,
		Pair:      key.Pair,
		OpenTime:  c.OpenTime.UTC(),
		CloseTime: c.CloseTime.UTC(),
		Open:      c.Open.Decimal(),
		Close:     c.Close.Decimal(),
		High:      c.High.Decimal(),
		Low:       c.Low.Decimal(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// nullableTime feeds an optional time to a raw statement.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
