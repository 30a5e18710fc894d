package usecase

import "time"

type WatcherMetrics interface {
	TickCompleted(d time.Duration)
	AlertsMatched(status string, n int)
	ExchangeFailed(exchange string)
}

type DeliveryMetrics interface {
	NotificationsProcessed(outcome string, n int)
}

const (
	outcomeDelivered = "delivered"
	outcomeDropped   = "dropped"
	outcomeBlocked   = "blocked"
	outcomeRetried   = "retried"
	outcomeMigrated  = "migrated"
)

type nopMetrics struct{}

func (nopMetrics) TickCompleted(time.Duration) {}
func (nopMetrics) AlertsMatched(string, int) {}
func (nopMetrics) ExchangeFailed(string) {}
func (nopMetrics) NotificationsProcessed(string, int) {}
