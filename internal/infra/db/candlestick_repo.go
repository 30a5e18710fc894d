package db

import (
	"context"
	"errors"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LastCandlestickRepository keeps the newest candle seen per pair.
type LastCandlestickRepository struct {
	db *gorm.DB
}

func NewLastCandlestickRepository(db *gorm.DB) *LastCandlestickRepository {
	return &LastCandlestickRepository{db: db}
}

// Get returns nil, nil when nothing is cached for key.
func (r *LastCandlestickRepository) Get(ctx context.Context, key domain.PairKey) (*domain.Candlestick, error) {
	var model lastCandlestickModel
	err := conn(ctx, r.db).Where("exchange = ? AND pair = ?", key.Exchange, key.Pair).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return mapCandlestickToDomain(model), nil
}

func (r *LastCandlestickRepository) Set(ctx context.Context, key domain.PairKey, candlestick domain.Candlestick) error {
	model := mapCandlestickToModel(key, candlestick)
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "exchange"}, {Name: "pair"}},
		UpdateAll: true,
	}).Create(&model).Error
}

func (r *LastCandlestickRepository) Keys(ctx context.Context) ([]domain.PairKey, error) {
	var models []lastCandlestickModel
	if err := conn(ctx, r.db).Select("exchange", "pair").Order("exchange, pair").Find(&models).Error; err != nil {
		return nil, err
	}
	keys := make([]domain.PairKey, 0, len(models))
	for _, model := range models {
		keys = append(keys, domain.PairKey{Exchange: model.Exchange, Pair: model.Pair})
	}
	return keys, nil
}

func (r *LastCandlestickRepository) Delete(ctx context.Context, keys []domain.PairKey) error {
	rows := make([][]any, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []any{key.Exchange, key.Pair})
	}
	return batchExec(conn(ctx, r.db), "DELETE FROM last_candlesticks WHERE exchange = ? AND pair = ?", rows)
}
