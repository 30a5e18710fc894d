package domain

type MatchingStatus string

const (
	StatusMatched     MatchingStatus = "MATCHED"
	StatusMargin      MatchingStatus = "MARGIN"
	StatusNotMatching MatchingStatus = "NOT_MATCHING"
)

// MatchingAlert is the outcome of evaluating one alert.
type MatchingAlert struct {
	Alert       Alert
	Status      MatchingStatus
	Candlestick *Candlestick
}

func (m MatchingAlert) HasMatch() bool {
	return m.Status != StatusNotMatching
}

func Matched(alert Alert, c *Candlestick) MatchingAlert {
	return MatchingAlert{Alert: alert, Status: StatusMatched, Candlestick: c}
}

func MarginMatched(alert Alert, c *Candlestick) MatchingAlert {
	return MatchingAlert{Alert: alert, Status: StatusMargin, Candlestick: c}
}

func NotMatching(alert Alert) MatchingAlert {
	return MatchingAlert{Alert: alert, Status: StatusNotMatching}
}
