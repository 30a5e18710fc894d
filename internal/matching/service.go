// Package matching decides whether an alert fires against market history.
package matching

import (
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
)

type Service struct {
	checkPeriodMinutes int
}

func NewService(checkPeriodMinutes int) *Service {
	return &Service{checkPeriodMinutes: checkPeriodMinutes}
}

// Match evaluates alert against candles, ordered by ascending close time.
// prev is the last candle seen by the previous evaluation, if any.
func (s *Service) Match(now time.Time, alert domain.Alert, candles []domain.Candlestick, prev *domain.Candlestick) domain.MatchingAlert {
	switch alert.Type {
	case domain.AlertRange:
		return matchRange(alert, candles, prev)
	case domain.AlertTrend:
		return matchTrend(now, alert, candles, prev)
	case domain.AlertRemainder:
		return matchRemainder(now, alert, s.checkPeriodMinutes)
	}
	return domain.NotMatching(alert)
}
