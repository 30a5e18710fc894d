// Package virtual provides the pseudo exchange hosting reminder alerts.
package virtual

import (
	"context"
	"fmt"

	"github.com/NasaVasa/alertwatch/internal/domain"
)

type Exchange struct{}

func NewExchange() *Exchange { return &Exchange{} }

func (Exchange) Name() string { return domain.VirtualExchange }

func (Exchange) IsVirtual() bool { return true }

func (Exchange) GetCandlesticks(_ context.Context, pair string, tf domain.TimeFrame, _ int) ([]domain.Candlestick, error) {
	return nil, fmt.Errorf("virtual exchange has no %s candlesticks for %s", tf, pair)
}
