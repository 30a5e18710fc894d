package matching

import "github.com/NasaVasa/alertwatch/internal/domain"

// bounds is the price window an alert watches, plus its margin.
type bounds struct {
	from   domain.Price
	to     domain.Price
	margin domain.Price
}

// matchRange scans candles in order; the first qualifying candle decides.
func matchRange(alert domain.Alert, candles []domain.Candlestick, prev *domain.Candlestick) domain.MatchingAlert {
	return scan(alert, bounds{from: alert.FromPrice, to: alert.ToPrice, margin: alert.Margin}, candles, prev, true)
}

func scan(alert domain.Alert, b bounds, candles []domain.Candlestick, prev *domain.Candlestick, checkDates bool) domain.MatchingAlert {
	for i := range candles {
		c := &candles[i]
		if !c.NewerThan(prev) {
			continue
		}
		if isListenable(alert, c) && (!checkDates || inDateRange(alert, c)) {
			if priceInRange(c, b.from, b.to, domain.Price{}) || priceCrossed(c, prev, b.from, b.to) {
				return domain.Matched(alert, c)
			}
			if !b.margin.IsZero() && priceInRange(c, b.from, b.to, b.margin) {
				return domain.MarginMatched(alert, c)
			}
		}
		prev = c
	}
	return domain.NotMatching(alert)
}

func isListenable(alert domain.Alert, c *domain.Candlestick) bool {
	return alert.ListeningDate != nil && !c.OpenTime.Before(*alert.ListeningDate)
}

// inDateRange reports whether the candle overlaps [FromDate, ToDate).
func inDateRange(alert domain.Alert, c *domain.Candlestick) bool {
	return (alert.FromDate == nil || !c.CloseTime.Before(*alert.FromDate)) &&
		(alert.ToDate == nil || c.OpenTime.Before(*alert.ToDate))
}

// priceInRange reports whether [low, high] intersects [from-margin, to+margin].
func priceInRange(c *domain.Candlestick, from, to, margin domain.Price) bool {
	return c.Low.LessOrEqual(to.Add(margin)) && c.High.GreaterOrEqual(from.Sub(margin))
}

// priceCrossed reports whether the span of the previous and current candles
// covers the range, meaning the price jumped over it between two samples.
func priceCrossed(c, prev *domain.Candlestick, from, to domain.Price) bool {
	if prev == nil {
		return false
	}
	return (prev.Low.LessThan(to) || c.Low.LessOrEqual(to)) &&
		(prev.High.GreaterThan(from) || c.High.GreaterOrEqual(from))
}
