package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/NasaVasa/alertwatch/internal/txn"
	"go.uber.org/zap"
)

// AlertService creates alerts on behalf of chat users.
type AlertService struct {
	tx        *txn.Manager
	alerts    domain.AlertRepository
	exchanges map[string]struct{}
	logger    *zap.Logger
	now       func() time.Time
}

func NewAlertService(tx *txn.Manager, alerts domain.AlertRepository, exchanges []string, logger *zap.Logger) *AlertService {
	known := make(map[string]struct{}, len(exchanges))
	for _, name := range exchanges {
		known[name] = struct{}{}
	}
	return &AlertService{tx: tx, alerts: alerts, exchanges: known, logger: logger, now: time.Now}
}

func (s *AlertService) CreateRange(ctx context.Context, userID, serverID int64, exchange, pair, message string, from, to domain.Price) (*domain.Alert, error) {
	if _, ok := s.exchanges[exchange]; !ok || exchange == domain.VirtualExchange {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExchange, exchange)
	}
	alert, err := domain.NewRangeAlert(userID, serverID, exchange, pair, message, from, to, nil, nil, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return s.create(ctx, alert)
}

func (s *AlertService) CreateRemainder(ctx context.Context, userID, serverID int64, at time.Time, message string) (*domain.Alert, error) {
	now := s.now().UTC()
	if !at.After(now) {
		return nil, fmt.Errorf("%w: reminder date %s is not in the future", domain.ErrInvalidAlert, at.Format(time.RFC3339))
	}
	alert, err := domain.NewRemainderAlert(userID, serverID, "reminder", message, at.UTC(), now)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, alert)
}

func (s *AlertService) create(ctx context.Context, alert domain.Alert) (*domain.Alert, error) {
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		return s.alerts.Create(ctx, &alert)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("alert created",
		zap.Int64("alert_id", alert.ID),
		zap.String("type", string(alert.Type)),
		zap.Int64("user_id", alert.UserID),
		zap.Int64("server_id", alert.ServerID),
		zap.String("exchange", alert.Exchange),
		zap.String("pair", alert.Pair),
	)
	return &alert, nil
}
