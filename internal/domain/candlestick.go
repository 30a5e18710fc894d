package domain

import (
	"fmt"
	"sort"
	"time"
)

type TimeFrame string

const (
	TimeFrameMinute TimeFrame = "1m"
	TimeFrameHour   TimeFrame = "1h"
	TimeFrameDay    TimeFrame = "1d"
)

func (tf TimeFrame) Duration() time.Duration {
	switch tf {
	case TimeFrameMinute:
		return time.Minute
	case TimeFrameHour:
		return time.Hour
	case TimeFrameDay:
		return 24 * time.Hour
	}
	return 0
}

// Candlestick is one OHLC bucket with OpenTime <= CloseTime and Low <= High.
type Candlestick struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      Price
	Close     Price
	High      Price
	Low       Price
}

func NewCandlestick(openTime, closeTime time.Time, open, closePrice, high, low Price) (Candlestick, error) {
	c := Candlestick{
		OpenTime:  openTime,
		CloseTime: closeTime,
		Open:      open,
		Close:     closePrice,
		High:      high,
		Low:       low,
	}
	if err := c.Validate(); err != nil {
		return Candlestick{}, err
	}
	return c, nil
}

func (c Candlestick) Validate() error {
	if c.CloseTime.Before(c.OpenTime) {
		return fmt.Errorf("%w: close time %s before open time %s", ErrInvalidCandlestick, c.CloseTime, c.OpenTime)
	}
	if c.High.LessThan(c.Low) {
		return fmt.Errorf("%w: high %s below low %s", ErrInvalidCandlestick, c.High, c.Low)
	}
	return nil
}

// NewerThan reports whether c closes after prev. Any candle is newer than nil.
func (c Candlestick) NewerThan(prev *Candlestick) bool {
	return prev == nil || c.CloseTime.After(prev.CloseTime)
}

// SortByCloseTime sorts candles in place, oldest close first.
func SortByCloseTime(candles []Candlestick) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].CloseTime.Before(candles[j].CloseTime)
	})
}

// Period is the number of bars of each granularity needed to cover a gap.
type Period struct {
	Days    int
	Hours   int
	Minutes int
}

// PeriodSince splits the gap between lastClose and now into whole days, whole
// remaining hours and the remaining minutes rounded up. At least one minute bar
// is always requested so the current bucket is seen.
func PeriodSince(lastClose, now time.Time) Period {
	gap := now.Sub(lastClose)
	if gap <= 0 {
		return Period{Minutes: 1}
	}
	day := TimeFrameDay.Duration()
	days := int(gap / day)
	gap -= time.Duration(days) * day
	hours := int(gap / time.Hour)
	gap -= time.Duration(hours) * time.Hour
	minutes := int((gap + time.Minute - 1) / time.Minute)
	if minutes == 0 {
		minutes = 1
	}
	return Period{Days: days, Hours: hours, Minutes: minutes}
}
