package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/NasaVasa/alertwatch/internal/matching"
	"github.com/NasaVasa/alertwatch/internal/txn"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	reasonExhausted   = "no repeat left"
	reasonExpiredDate = "its end date has passed"
)

type AlertsWatcherConfig struct {
	CheckPeriodMinutes            int
	MaxBatchSize                  int
	ExpiredAlertRetention         time.Duration
	ExpiredDateRetention          time.Duration
	NotificationsExpirationMonths int
	UsersExpirationMonths         int
	DefaultLocale                 string
}

// Waker is signalled when new notifications await delivery.
type Waker interface {
	Wake()
}

// AlertsWatcher runs one evaluation tick over every due alert. Calls to
// CheckAlerts must not overlap.
type AlertsWatcher struct {
	cfg           AlertsWatcherConfig
	tx            *txn.Manager
	users         domain.UserRepository
	alerts        domain.AlertRepository
	notifications domain.NotificationRepository
	lastCandles   domain.LastCandlestickRepository
	exchanges     map[string]domain.Exchange
	matcher       *matching.Service
	waker         Waker
	metrics       WatcherMetrics
	logger        *zap.Logger
	now           func() time.Time
}

func NewAlertsWatcher(
	cfg AlertsWatcherConfig,
	tx *txn.Manager,
	users domain.UserRepository,
	alerts domain.AlertRepository,
	notifications domain.NotificationRepository,
	lastCandles domain.LastCandlestickRepository,
	exchanges []domain.Exchange,
	waker Waker,
	metrics WatcherMetrics,
	logger *zap.Logger,
) *AlertsWatcher {
	byName := make(map[string]domain.Exchange, len(exchanges))
	for _, e := range exchanges {
		byName[e.Name()] = e
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &AlertsWatcher{
		cfg:           cfg,
		tx:            tx,
		users:         users,
		alerts:        alerts,
		notifications: notifications,
		lastCandles:   lastCandles,
		exchanges:     byName,
		matcher:       matching.NewService(cfg.CheckPeriodMinutes),
		waker:         waker,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

func (w *AlertsWatcher) tolerance() time.Duration {
	return matching.RemainderTolerance(w.cfg.CheckPeriodMinutes)
}

// CheckAlerts purges expired data, then evaluates every due alert against
// fresh market data, one concurrent task per exchange. Failures are confined
// to the pair or exchange they happen in.
func (w *AlertsWatcher) CheckAlerts(ctx context.Context) error {
	start := w.now()
	now := start.UTC()
	log := w.logger.With(zap.String("tick_id", uuid.NewString()))

	deleted, err := w.cleanup(ctx, now)
	if err != nil {
		log.Error("cleanup failed", zap.Error(err))
		deleted = 0
	}

	due, err := w.duePairs(ctx, now)
	if err != nil {
		return fmt.Errorf("select due pairs: %w", err)
	}

	var matched atomic.Int64
	var wg conc.WaitGroup
	for name, pairs := range due {
		exchange, ok := w.exchanges[name]
		if !ok {
			log.Warn("skipping alerts of unknown exchange", zap.String("exchange", name), zap.Int("pairs", len(pairs)))
			continue
		}
		wg.Go(func() {
			matched.Add(int64(w.checkExchange(ctx, now, exchange, pairs, log)))
		})
	}
	if recovered := wg.WaitAndRecover(); recovered != nil {
		log.Error("exchange task panicked", zap.String("panic", recovered.String()))
	}

	if matched.Load() > 0 || deleted > 0 {
		w.waker.Wake()
	}
	w.metrics.TickCompleted(w.now().Sub(start))
	log.Info("alerts checked",
		zap.Int("exchanges", len(due)),
		zap.Int64("matched", matched.Load()),
		zap.Int("deleted", deleted),
		zap.Duration("took", w.now().Sub(start)),
	)
	return nil
}

func (w *AlertsWatcher) cleanup(ctx context.Context, now time.Time) (int, error) {
	deleted := 0
	err := w.tx.Run(ctx, func(ctx context.Context) error {
		deleted = 0
		purged, err := w.notifications.DeleteOlderThan(ctx, now.AddDate(0, -w.cfg.NotificationsExpirationMonths, 0))
		if err != nil {
			return fmt.Errorf("purge notifications: %w", err)
		}
		idle, err := w.users.DeleteIdle(ctx, now.AddDate(0, -w.cfg.UsersExpirationMonths, 0))
		if err != nil {
			return fmt.Errorf("purge users: %w", err)
		}
		err = w.alerts.StreamExpired(ctx, now.Add(-w.cfg.ExpiredAlertRetention), now.Add(-w.cfg.ExpiredDateRetention), w.cfg.MaxBatchSize,
			func(page []domain.Alert) error {
				if err := w.deleteExpired(ctx, now, page); err != nil {
					return err
				}
				deleted += len(page)
				return nil
			})
		if err != nil {
			return fmt.Errorf("purge alerts: %w", err)
		}
		if purged > 0 || idle > 0 || deleted > 0 {
			w.logger.Info("expired data purged",
				zap.Int64("notifications", purged),
				zap.Int64("users", idle),
				zap.Int("alerts", deleted),
			)
		}
		return nil
	})
	return deleted, err
}

func (w *AlertsWatcher) deleteExpired(ctx context.Context, now time.Time, alerts []domain.Alert) error {
	locales, err := w.users.Locales(ctx, userIDs(alerts))
	if err != nil {
		return err
	}
	notifications := make([]domain.Notification, 0, len(alerts))
	ids := make([]int64, 0, len(alerts))
	for _, a := range alerts {
		reason := reasonExpiredDate
		if a.Repeat < 0 {
			reason = reasonExhausted
		}
		notifications = append(notifications, domain.NewDeletedNotification(now, w.locale(locales, a.UserID), a, reason))
		ids = append(ids, a.ID)
	}
	if err := w.notifications.Create(ctx, notifications); err != nil {
		return err
	}
	return w.alerts.DeleteByIDs(ctx, ids)
}

// duePairs selects the pairs to evaluate and forgets cached candles of the
// pairs no longer watched.
func (w *AlertsWatcher) duePairs(ctx context.Context, now time.Time) (map[string][]string, error) {
	var due map[string][]string
	err := w.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		due, err = w.alerts.DuePairs(ctx, now, w.tolerance())
		if err != nil {
			return err
		}
		keys, err := w.lastCandles.Keys(ctx)
		if err != nil {
			return err
		}
		watched := make(map[domain.PairKey]struct{})
		for exchange, pairs := range due {
			for _, pair := range pairs {
				watched[domain.PairKey{Exchange: exchange, Pair: pair}] = struct{}{}
			}
		}
		var stale []domain.PairKey
		for _, key := range keys {
			if _, ok := watched[key]; !ok {
				stale = append(stale, key)
			}
		}
		return w.lastCandles.Delete(ctx, stale)
	})
	return due, err
}

func (w *AlertsWatcher) checkExchange(ctx context.Context, now time.Time, exchange domain.Exchange, pairs []string, log *zap.Logger) int {
	matched := 0
	for _, pair := range pairs {
		n, err := w.checkPair(ctx, now, exchange, pair)
		if err != nil {
			w.metrics.ExchangeFailed(exchange.Name())
			log.Warn("pair evaluation failed",
				zap.String("exchange", exchange.Name()),
				zap.String("pair", pair),
				zap.Error(err),
			)
			continue
		}
		matched += n
	}
	return matched
}

func (w *AlertsWatcher) checkPair(ctx context.Context, now time.Time, exchange domain.Exchange, pair string) (int, error) {
	key := domain.PairKey{Exchange: exchange.Name(), Pair: pair}

	var candles []domain.Candlestick
	var prev *domain.Candlestick
	if !exchange.IsVirtual() {
		var err error
		if prev, err = w.lastCandles.Get(ctx, key); err != nil {
			return 0, fmt.Errorf("last candlestick: %w", err)
		}
		if candles, err = w.fetch(ctx, now, exchange, pair, prev); err != nil {
			return 0, err
		}
	}

	var counts matchCounts
	err := w.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		if counts, err = w.evaluate(ctx, now, key, candles, prev); err != nil {
			return err
		}
		if newest := newestCandle(candles); newest != nil && newest.NewerThan(prev) {
			return w.lastCandles.Set(ctx, key, *newest)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if counts.matched > 0 {
		w.metrics.AlertsMatched(string(domain.StatusMatched), counts.matched)
	}
	if counts.margin > 0 {
		w.metrics.AlertsMatched(string(domain.StatusMargin), counts.margin)
	}
	return counts.matched + counts.margin, nil
}

// fetch loads the bars covering the gap since prev: daily and hourly bars
// concurrently, then minute bars. Each granularity is sorted by close time
// and they are concatenated coarsest first.
func (w *AlertsWatcher) fetch(ctx context.Context, now time.Time, exchange domain.Exchange, pair string, prev *domain.Candlestick) ([]domain.Candlestick, error) {
	if prev == nil {
		return exchange.GetCandlesticks(ctx, pair, domain.TimeFrameMinute, 1)
	}
	period := domain.PeriodSince(prev.CloseTime, now)

	var daily, hourly []domain.Candlestick
	var dailyErr, hourlyErr error
	var wg conc.WaitGroup
	if period.Days > 0 {
		wg.Go(func() {
			daily, dailyErr = exchange.GetCandlesticks(ctx, pair, domain.TimeFrameDay, period.Days)
		})
	}
	if period.Hours > 0 {
		wg.Go(func() {
			hourly, hourlyErr = exchange.GetCandlesticks(ctx, pair, domain.TimeFrameHour, period.Hours)
		})
	}
	wg.Wait()
	if err := errors.Join(dailyErr, hourlyErr); err != nil {
		return nil, err
	}

	minutes, err := exchange.GetCandlesticks(ctx, pair, domain.TimeFrameMinute, period.Minutes)
	if err != nil {
		return nil, err
	}

	candles := make([]domain.Candlestick, 0, len(daily)+len(hourly)+len(minutes))
	for _, group := range [][]domain.Candlestick{daily, hourly, minutes} {
		domain.SortByCloseTime(group)
		candles = append(candles, group...)
	}
	return candles, nil
}

type matchCounts struct {
	matched int
	margin  int
}

// evaluate matches the due alerts of one pair and persists the outcome in
// batches of at most MaxBatchSize alerts.
func (w *AlertsWatcher) evaluate(ctx context.Context, now time.Time, key domain.PairKey, candles []domain.Candlestick, prev *domain.Candlestick) (matchCounts, error) {
	var counts matchCounts
	var batch []domain.MatchingAlert
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		c, err := w.processMatches(ctx, now, batch)
		if err != nil {
			return err
		}
		counts.matched += c.matched
		counts.margin += c.margin
		batch = nil
		return nil
	}

	sel := domain.AlertSelection{Now: now, Tolerance: w.tolerance(), Exchange: key.Exchange, Pair: key.Pair}
	err := w.alerts.StreamDue(ctx, sel, w.cfg.MaxBatchSize, func(page []domain.Alert) error {
		for _, alert := range page {
			m := w.matcher.Match(now, alert, candles, prev)
			if !m.HasMatch() {
				continue
			}
			batch = append(batch, m)
			if len(batch) >= w.cfg.MaxBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return counts, err
	}
	return counts, flush()
}

// processMatches emits one notification per match and applies the post
// match transitions with one batched update per status.
func (w *AlertsWatcher) processMatches(ctx context.Context, now time.Time, matches []domain.MatchingAlert) (matchCounts, error) {
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Alert.ID)
	}
	messages, err := w.alerts.Messages(ctx, ids)
	if err != nil {
		return matchCounts{}, fmt.Errorf("load messages: %w", err)
	}
	for i := range matches {
		matches[i].Alert = matches[i].Alert.WithMessage(messages[matches[i].Alert.ID])
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Alert, matches[j].Alert
		if a.ServerID != b.ServerID {
			return a.ServerID < b.ServerID
		}
		return a.UserID < b.UserID
	})

	owners := make([]domain.Alert, 0, len(matches))
	for _, m := range matches {
		owners = append(owners, m.Alert)
	}
	locales, err := w.users.Locales(ctx, userIDs(owners))
	if err != nil {
		return matchCounts{}, fmt.Errorf("load locales: %w", err)
	}

	notifications := make([]domain.Notification, 0, len(matches))
	var fired, margins []domain.Alert
	for _, m := range matches {
		notifications = append(notifications, domain.NewMatchedNotification(now, w.locale(locales, m.Alert.UserID), m))
		switch m.Status {
		case domain.StatusMatched:
			fired = append(fired, m.Alert.AfterMatch(now))
		case domain.StatusMargin:
			margins = append(margins, m.Alert.AfterMargin(now))
		}
	}
	if err := w.notifications.Create(ctx, notifications); err != nil {
		return matchCounts{}, fmt.Errorf("create notifications: %w", err)
	}
	if err := w.alerts.UpdateMatched(ctx, fired); err != nil {
		return matchCounts{}, fmt.Errorf("update matched alerts: %w", err)
	}
	if err := w.alerts.UpdateMargin(ctx, margins); err != nil {
		return matchCounts{}, fmt.Errorf("update margin alerts: %w", err)
	}
	return matchCounts{matched: len(fired), margin: len(margins)}, nil
}

func (w *AlertsWatcher) locale(locales map[int64]string, userID int64) string {
	if l := locales[userID]; l != "" {
		return l
	}
	return w.cfg.DefaultLocale
}

func newestCandle(candles []domain.Candlestick) *domain.Candlestick {
	var newest *domain.Candlestick
	for i := range candles {
		if candles[i].NewerThan(newest) {
			newest = &candles[i]
		}
	}
	return newest
}

func userIDs(alerts []domain.Alert) []int64 {
	seen := make(map[int64]struct{}, len(alerts))
	ids := make([]int64, 0, len(alerts))
	for _, a := range alerts {
		if _, ok := seen[a.UserID]; ok {
			continue
		}
		seen[a.UserID] = struct{}{}
		ids = append(ids, a.UserID)
	}
	return ids
}
