package db

import (
	"context"
	"sort"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	models := make([]notificationModel, 0, len(notifications))
	for _, n := range notifications {
		model, err := mapNotificationToModel(n)
		if err != nil {
			return err
		}
		models = append(models, model)
	}
	if err := conn(ctx, r.db).CreateInBatches(&models, 200).Error; err != nil {
		return err
	}
	for i := range models {
		notifications[i].ID = models[i].ID
	}
	return nil
}

func (r *NotificationRepository) NextBatch(ctx context.Context, limit int, exclude []int64) ([]domain.Notification, error) {
	q := conn(ctx, r.db).Where("status = ?", string(domain.NotificationNew))
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var models []notificationModel
	if err := q.Order("id").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapNotificationsToDomain(models), nil
}

func (r *NotificationRepository) FindByRecipient(ctx context.Context, recipient domain.Recipient) ([]domain.Notification, error) {
	var models []notificationModel
	err := conn(ctx, r.db).
		Where("recipient_type = ? AND recipient_id = ?", string(recipient.Type), recipient.ID).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return mapNotificationsToDomain(models), nil
}

func (r *NotificationRepository) UpdateStatus(ctx context.Context, notificationIDs []int64, status domain.NotificationStatus) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	return conn(ctx, r.db).
		Model(&notificationModel{}).
		Where("id IN ?", notificationIDs).
		Update("status", string(status)).Error
}

func (r *NotificationRepository) ResetStatus(ctx context.Context, from, to domain.NotificationStatus, recipient *domain.Recipient) (int64, error) {
	q := conn(ctx, r.db).Model(&notificationModel{}).Where("status = ?", string(from))
	if recipient != nil {
		q = q.Where("recipient_type = ? AND recipient_id = ?", string(recipient.Type), recipient.ID)
	}
	result := q.Update("status", string(to))
	return result.RowsAffected, result.Error
}

func (r *NotificationRepository) UpdateRecipients(ctx context.Context, recipients map[int64]domain.Recipient) error {
	ids := make([]int64, 0, len(recipients))
	for id := range recipients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([][]any, 0, len(ids))
	for _, id := range ids {
		rc := recipients[id]
		rows = append(rows, []any{string(rc.Type), rc.ID, id})
	}
	return batchExec(conn(ctx, r.db), "UPDATE notifications SET recipient_type = ?, recipient_id = ? WHERE id = ?", rows)
}

func (r *NotificationRepository) DeleteByIDs(ctx context.Context, notificationIDs []int64) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	return conn(ctx, r.db).Where("id IN ?", notificationIDs).Delete(&notificationModel{}).Error
}

func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := conn(ctx, r.db).Where("creation_date < ?", before.UTC()).Delete(&notificationModel{})
	return result.RowsAffected, result.Error
}
