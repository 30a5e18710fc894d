package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

const (
	Name     = "binance"
	maxLimit = 1000
)

var errNoCandlesticks = errors.New("no closed candlesticks")

// Exchange reads spot klines from the public Binance API.
type Exchange struct {
	client *binance.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewExchange(baseURL string, timeout time.Duration, logger *zap.Logger) *Exchange {
	client := binance.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: timeout}
	if baseURL != "" {
		client.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Exchange{
		client: client,
		logger: logger.Named("binance"),
		now:    time.Now,
	}
}

func (e *Exchange) Name() string { return Name }

func (e *Exchange) IsVirtual() bool { return false }

// GetCandlesticks returns the last limit closed bars. The bar still being
// formed is dropped since its close time would hide later updates.
func (e *Exchange) GetCandlesticks(ctx context.Context, pair string, tf domain.TimeFrame, limit int) ([]domain.Candlestick, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("binance %s %s: invalid limit %d", pair, tf, limit)
	}
	request := limit + 1
	if request > maxLimit {
		request = maxLimit
	}
	symbol := Symbol(pair)
	klines, err := e.client.NewKlinesService().
		Symbol(symbol).
		Interval(string(tf)).
		Limit(request).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, tf, err)
	}

	now := e.now()
	candles := make([]domain.Candlestick, 0, len(klines))
	for _, k := range klines {
		closeTime := time.UnixMilli(k.CloseTime).UTC()
		if closeTime.After(now) {
			continue
		}
		c, err := toCandlestick(k)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s %s: %w", symbol, tf, err)
		}
		candles = append(candles, c)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, tf, errNoCandlesticks)
	}
	e.logger.Debug("fetched candlesticks",
		zap.String("symbol", symbol),
		zap.String("timeframe", string(tf)),
		zap.Int("count", len(candles)),
	)
	return candles, nil
}

// Symbol converts a "BASE/QUOTE" pair to the Binance symbol.
func Symbol(pair string) string {
	return strings.ToUpper(strings.NewReplacer("/", "", "-", "", " ", "").Replace(pair))
}

func toCandlestick(k *binance.Kline) (domain.Candlestick, error) {
	open, err := domain.ParsePrice(k.Open)
	if err != nil {
		return domain.Candlestick{}, err
	}
	closePrice, err := domain.ParsePrice(k.Close)
	if err != nil {
		return domain.Candlestick{}, err
	}
	high, err := domain.ParsePrice(k.High)
	if err != nil {
		return domain.Candlestick{}, err
	}
	low, err := domain.ParsePrice(k.Low)
	if err != nil {
		return domain.Candlestick{}, err
	}
	return domain.NewCandlestick(
		time.UnixMilli(k.OpenTime).UTC(),
		time.UnixMilli(k.CloseTime).UTC(),
		open, closePrice, high, low,
	)
}
