package db

import (
	"context"
	"errors"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"gorm.io/gorm"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	model := mapAlertToModel(*alert)
	if err := conn(ctx, r.db).Create(&model).Error; err != nil {
		return err
	}
	alert.ID = model.ID
	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, alertID int64) (*domain.Alert, error) {
	var model alertModel
	if err := conn(ctx, r.db).First(&model, alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	alert := mapAlertToDomain(model)
	return &alert, nil
}

// due restricts q to listening alerts whose date range has not ended. Only
// range alerts are bounded by their to date; trend dates anchor the line.
func due(q *gorm.DB, now time.Time, tolerance time.Duration) *gorm.DB {
	return q.
		Where("listening_date IS NOT NULL AND listening_date <= ?", now.Add(tolerance).UTC()).
		Where("(type <> ? OR to_date IS NULL OR to_date > ?)", string(domain.AlertRange), now.UTC())
}

func (r *AlertRepository) DuePairs(ctx context.Context, now time.Time, tolerance time.Duration) (map[string][]string, error) {
	var rows []struct {
		Exchange string
		Pair     string
	}
	err := due(conn(ctx, r.db).Model(&alertModel{}), now, tolerance).
		Distinct("exchange", "pair").
		Order("exchange, pair").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	pairs := make(map[string][]string)
	for _, row := range rows {
		pairs[row.Exchange] = append(pairs[row.Exchange], row.Pair)
	}
	return pairs, nil
}

func (r *AlertRepository) StreamDue(ctx context.Context, sel domain.AlertSelection, pageSize int, consume func([]domain.Alert) error) error {
	return r.stream(ctx, pageSize, consume, func(q *gorm.DB) *gorm.DB {
		return due(q, sel.Now, sel.Tolerance).
			Where("exchange = ? AND pair = ?", sel.Exchange, sel.Pair).
			Omit("message")
	})
}

func (r *AlertRepository) StreamExpired(ctx context.Context, exhaustedBefore, expiredBefore time.Time, pageSize int, consume func([]domain.Alert) error) error {
	return r.stream(ctx, pageSize, consume, func(q *gorm.DB) *gorm.DB {
		return q.Where(
			"(repeat_count < 0 AND (last_trigger IS NULL OR last_trigger < ?)) OR (type = ? AND to_date IS NOT NULL AND to_date < ?)",
			exhaustedBefore.UTC(), string(domain.AlertRange), expiredBefore.UTC(),
		)
	})
}

// stream pages through the selection by ascending id so that consumers may
// update or delete what they were handed.
func (r *AlertRepository) stream(ctx context.Context, pageSize int, consume func([]domain.Alert) error, scope func(*gorm.DB) *gorm.DB) error {
	var lastID int64
	for {
		var models []alertModel
		err := scope(conn(ctx, r.db)).
			Where("id > ?", lastID).
			Order("id").
			Limit(pageSize).
			Find(&models).Error
		if err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		if err := consume(mapAlertsToDomain(models)); err != nil {
			return err
		}
		if len(models) < pageSize {
			return nil
		}
		lastID = models[len(models)-1].ID
	}
}

func (r *AlertRepository) Messages(ctx context.Context, alertIDs []int64) (map[int64]string, error) {
	messages := make(map[int64]string, len(alertIDs))
	if len(alertIDs) == 0 {
		return messages, nil
	}
	var models []alertModel
	if err := conn(ctx, r.db).Select("id", "message").Where("id IN ?", alertIDs).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, model := range models {
		messages[model.ID] = model.Message
	}
	return messages, nil
}

func (r *AlertRepository) UpdateMatched(ctx context.Context, alerts []domain.Alert) error {
	rows := make([][]any, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []any{nullableTime(a.ListeningDate), nullableTime(a.LastTrigger), a.Margin.Decimal(), a.Repeat, a.ID})
	}
	return batchExec(conn(ctx, r.db),
		"UPDATE alerts SET listening_date = ?, last_trigger = ?, margin = ?, repeat_count = ? WHERE id = ?", rows)
}

func (r *AlertRepository) UpdateMargin(ctx context.Context, alerts []domain.Alert) error {
	rows := make([][]any, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []any{nullableTime(a.LastTrigger), a.Margin.Decimal(), a.ID})
	}
	return batchExec(conn(ctx, r.db), "UPDATE alerts SET last_trigger = ?, margin = ? WHERE id = ?", rows)
}

func (r *AlertRepository) DeleteByIDs(ctx context.Context, alertIDs []int64) error {
	if len(alertIDs) == 0 {
		return nil
	}
	return conn(ctx, r.db).Where("id IN ?", alertIDs).Delete(&alertModel{}).Error
}

func (r *AlertRepository) MigrateToPrivate(ctx context.Context, serverID int64, userID *int64) (map[int64]int64, error) {
	scope := func() *gorm.DB {
		q := conn(ctx, r.db).Model(&alertModel{}).Where("server_id = ?", serverID)
		if userID != nil {
			q = q.Where("user_id = ?", *userID)
		}
		return q
	}

	var rows []struct {
		UserID int64
		Moved  int64
	}
	if err := scope().Select("user_id, COUNT(*) AS moved").Group("user_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	moved := make(map[int64]int64, len(rows))
	if len(rows) == 0 {
		return moved, nil
	}
	if err := scope().Update("server_id", domain.PrivateServerID).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		moved[row.UserID] = row.Moved
	}
	return moved, nil
}
