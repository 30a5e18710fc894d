package telegram

import (
	"errors"
	"strings"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
)

const HelpText = `Commands:
/start - register
/help - show this help
/range <exchange> <pair> <low> <high> [message] - alert when the price enters [low, high]
/remind <YYYY-MM-DDTHH:MM> <message> - remind at the given UTC time

Alerts created in a group notify the group.
Example:
/range binance BTC/USDT 64000 65000 buy the dip
/remind 2026-11-01T09:00 rebalance
`

const remindLayout = "2006-01-02T15:04"

var ErrInvalidArguments = errors.New("invalid arguments")

type RangeArgs struct {
	Exchange string
	Pair     string
	Low      domain.Price
	High     domain.Price
	Message  string
}

func ParseRangeArgs(args string) (RangeArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 4 {
		return RangeArgs{}, ErrInvalidArguments
	}
	low, err := domain.ParsePrice(parts[2])
	if err != nil {
		return RangeArgs{}, ErrInvalidArguments
	}
	high, err := domain.ParsePrice(parts[3])
	if err != nil {
		return RangeArgs{}, ErrInvalidArguments
	}
	return RangeArgs{
		Exchange: strings.ToLower(parts[0]),
		Pair:     strings.ToUpper(parts[1]),
		Low:      low,
		High:     high,
		Message:  strings.Join(parts[4:], " "),
	}, nil
}

func ParseRemindArgs(args string) (time.Time, string, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return time.Time{}, "", ErrInvalidArguments
	}
	at, err := time.ParseInLocation(remindLayout, parts[0], time.UTC)
	if err != nil {
		return time.Time{}, "", ErrInvalidArguments
	}
	return at, strings.Join(parts[1:], " "), nil
}
