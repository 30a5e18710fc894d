package db

import (
	"context"
	"errors"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	var model userModel
	if err := conn(ctx, r.db).First(&model, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return mapUserToDomain(model), nil
}

// Upsert inserts the user or refreshes its username, locale and last access.
func (r *UserRepository) Upsert(ctx context.Context, user *domain.User) error {
	model := mapUserToModel(*user)
	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "locale", "last_access", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return err
	}
	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *UserRepository) Locales(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	locales := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return locales, nil
	}
	var models []userModel
	if err := conn(ctx, r.db).Select("id", "locale").Where("id IN ?", userIDs).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, model := range models {
		locales[model.ID] = model.Locale
	}
	return locales, nil
}

func (r *UserRepository) DeleteIdle(ctx context.Context, lastAccessBefore time.Time) (int64, error) {
	result := conn(ctx, r.db).
		Where("last_access < ?", lastAccessBefore.UTC()).
		Where("NOT EXISTS (SELECT 1 FROM alerts WHERE alerts.user_id = users.id)").
		Delete(&userModel{})
	return result.RowsAffected, result.Error
}
