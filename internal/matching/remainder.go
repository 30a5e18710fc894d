package matching

import (
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
)

// RemainderTolerance is how early a remainder may fire: half the check
// period rounded up, plus one minute.
func RemainderTolerance(checkPeriodMinutes int) time.Duration {
	return time.Duration((checkPeriodMinutes+1)/2+1) * time.Minute
}

func matchRemainder(now time.Time, alert domain.Alert, checkPeriodMinutes int) domain.MatchingAlert {
	if alert.FromDate != nil && alert.FromDate.Before(now.Add(RemainderTolerance(checkPeriodMinutes))) {
		return domain.Matched(alert, nil)
	}
	return domain.NotMatching(alert)
}
