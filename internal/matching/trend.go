package matching

import (
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/shopspring/decimal"
)

// trendDivisionScale is the number of fractional digits kept when dividing
// elapsed time by the trend length.
const trendDivisionScale = 16

// TrendPrice interpolates the trend line at t, clamped at zero:
// from + (to-from) * elapsed(from, t) / elapsed(from, to).
func TrendPrice(fromPrice domain.Price, fromDate time.Time, toPrice domain.Price, toDate time.Time, t time.Time) domain.Price {
	from := fromPrice.Decimal()
	delta := decimal.Zero
	if total := secondsBetween(fromDate, toDate); total != 0 {
		delta = toPrice.Decimal().Sub(from).
			Mul(decimal.NewFromInt(secondsBetween(fromDate, t))).
			DivRound(decimal.NewFromInt(total), trendDivisionScale)
	}
	price := from.Add(delta)
	if price.IsNegative() {
		return domain.Price{}
	}
	return domain.PriceFromDecimal(price)
}

func secondsBetween(from, to time.Time) int64 {
	return int64(to.Sub(from) / time.Second)
}

// matchTrend reuses the range tests on the zero width range at the trend
// price, computed once for the whole evaluation.
func matchTrend(now time.Time, alert domain.Alert, candles []domain.Candlestick, prev *domain.Candlestick) domain.MatchingAlert {
	if alert.FromDate == nil || alert.ToDate == nil {
		return domain.NotMatching(alert)
	}
	price := TrendPrice(alert.FromPrice, *alert.FromDate, alert.ToPrice, *alert.ToDate, now)
	return scan(alert, bounds{from: price, to: price, margin: alert.Margin}, candles, prev, false)
}
