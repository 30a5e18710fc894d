package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/NasaVasa/alertwatch/internal/txn"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

const (
	reasonGroupGone  = "the group is no longer reachable"
	reasonMemberLeft = "you are no longer a member of the group"
)

type NotificationsConfig struct {
	BatchSize     int
	ResendDelay   time.Duration
	DefaultLocale string
}

// NotificationsService delivers pending notifications from a single worker.
// Wake requests coalesce: any number of calls while a pass is running cause
// at most one more pass.
type NotificationsService struct {
	cfg           NotificationsConfig
	tx            *txn.Manager
	notifications domain.NotificationRepository
	alerts        domain.AlertRepository
	users         domain.UserRepository
	messenger     domain.Messenger
	metrics       DeliveryMetrics
	logger        *zap.Logger
	now           func() time.Time
	after         func(time.Duration, func())

	wake chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewNotificationsService(
	cfg NotificationsConfig,
	tx *txn.Manager,
	notifications domain.NotificationRepository,
	alerts domain.AlertRepository,
	users domain.UserRepository,
	messenger domain.Messenger,
	metrics DeliveryMetrics,
	logger *zap.Logger,
) *NotificationsService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &NotificationsService{
		cfg:           cfg,
		tx:            tx,
		notifications: notifications,
		alerts:        alerts,
		users:         users,
		messenger:     messenger,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
		after:         func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		wake:          make(chan struct{}, 1),
	}
}

// Wake asks the worker for a delivery pass. It never blocks.
func (s *NotificationsService) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *NotificationsService) wakeLater() {
	s.after(s.cfg.ResendDelay, s.Wake)
}

// Start recovers notifications left SENDING by a previous process and
// launches the worker, which drains what is pending before it parks.
func (s *NotificationsService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("notifications worker already running")
	}

	var recovered int64
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		recovered, err = s.notifications.ResetStatus(ctx, domain.NotificationSending, domain.NotificationNew, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("recover sending notifications: %w", err)
	}
	if recovered > 0 {
		s.logger.Info("recovered interrupted notifications", zap.Int64("count", recovered))
	}

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.Wake()
	go func(done chan struct{}) {
		defer close(done)
		s.run(workerCtx)
	}(s.done)
	return nil
}

func (s *NotificationsService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timeout stopping notifications worker")
	}
}

// Unblock makes the notifications held for a recipient deliverable again.
func (s *NotificationsService) Unblock(ctx context.Context, recipient domain.Recipient) error {
	var n int64
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.notifications.ResetStatus(ctx, domain.NotificationBlocked, domain.NotificationNew, &recipient)
		return err
	})
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("recipient unblocked", zap.Stringer("recipient", recipient), zap.Int64("notifications", n))
		s.Wake()
	}
	return nil
}

func (s *NotificationsService) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			var pc panics.Catcher
			pc.Try(func() { s.drain(ctx) })
			if r := pc.Recovered(); r != nil {
				s.logger.Error("delivery pass panicked", zap.String("panic", r.String()))
				s.wakeLater()
			}
		}
	}
}

// drain delivers batches until no NEW notification is left. Notifications
// put back to NEW during the pass are left for a later one.
func (s *NotificationsService) drain(ctx context.Context) {
	var exclude []int64
	for ctx.Err() == nil {
		batch, err := s.claim(ctx, exclude)
		if err != nil {
			s.logger.Error("claim notifications", zap.Error(err))
			s.wakeLater()
			return
		}
		if len(batch) == 0 {
			return
		}
		exclude = append(exclude, s.deliver(ctx, batch)...)
	}
}

func (s *NotificationsService) claim(ctx context.Context, exclude []int64) ([]domain.Notification, error) {
	var batch []domain.Notification
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.notifications.NextBatch(ctx, s.cfg.BatchSize, exclude)
		if err != nil {
			return err
		}
		return s.notifications.UpdateStatus(ctx, notificationIDs(batch), domain.NotificationSending)
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

type recipientGroup struct {
	recipient domain.Recipient
	items     []domain.Notification
}

func groupByRecipient(batch []domain.Notification) []recipientGroup {
	index := make(map[domain.Recipient]int)
	var groups []recipientGroup
	for _, n := range batch {
		i, ok := index[n.Recipient]
		if !ok {
			i = len(groups)
			index[n.Recipient] = i
			groups = append(groups, recipientGroup{recipient: n.Recipient})
		}
		groups[i].items = append(groups[i].items, n)
	}
	return groups
}

// delivery collects what happens to each notification of a group.
type delivery struct {
	delivered []int64
	dropped   []int64
	blocked   []int64
	retry     []int64
	migrated  int
}

// outcome is the result of the network side of a recipient group, persisted
// once every group of the batch has been attempted.
type outcome struct {
	group      recipientGroup
	delivery   delivery
	migrations []migration
	wakeNow    bool
}

// deliver sends a claimed batch per recipient, then persists every outcome in
// one session that commits after the last group. No transaction is open while
// messages are sent. It returns the ids put back to NEW.
func (s *NotificationsService) deliver(ctx context.Context, batch []domain.Notification) []int64 {
	groups := groupByRecipient(batch)
	outcomes := make([]outcome, 0, len(groups))
	for _, g := range groups {
		outcomes = append(outcomes, s.attempt(ctx, g))
	}
	return s.persist(ctx, batch, outcomes)
}

// attempt runs deliverGroup and turns a panic into dropping the group.
func (s *NotificationsService) attempt(ctx context.Context, g recipientGroup) outcome {
	var o outcome
	var pc panics.Catcher
	pc.Try(func() { o = s.deliverGroup(ctx, g) })
	if r := pc.Recovered(); r != nil {
		s.logger.Error("dropping notifications after panic",
			zap.Stringer("recipient", g.recipient), zap.Int("count", len(g.items)), zap.String("panic", r.String()))
		o = outcome{delivery: delivery{dropped: notificationIDs(g.items)}}
	}
	o.group = g
	return o
}

func (s *NotificationsService) persist(ctx context.Context, batch []domain.Notification, outcomes []outcome) []int64 {
	session := s.tx.NewSession()
	session.Register(len(outcomes))
	settled := false
	defer func() {
		if !settled {
			_ = session.Rollback()
			s.release(ctx, batch)
		}
	}()

	var retried []int64
	for _, o := range outcomes {
		d := o.delivery
		if err := s.apply(ctx, session, o); err != nil {
			log := s.logger.With(zap.Stringer("recipient", o.group.recipient), zap.Int("count", len(o.group.items)))
			log.Error("dropping notifications after unexpected error", zap.Error(err))
			d = delivery{dropped: notificationIDs(o.group.items)}
			err = session.Run(ctx, func(ctx context.Context) error {
				return s.notifications.DeleteByIDs(ctx, d.dropped)
			})
			if err != nil {
				log.Error("delivery session failed", zap.Error(err))
				settled = true
				_ = session.Rollback()
				return s.release(ctx, batch)
			}
		}
		s.record(d)
		retried = append(retried, d.retry...)
		if err := session.Done(); err != nil {
			settled = true
			s.logger.Error("commit delivery session", zap.Error(err))
			return s.release(ctx, batch)
		}
	}
	settled = true
	return retried
}

// release puts a batch whose outcome could not be persisted back to NEW.
func (s *NotificationsService) release(ctx context.Context, batch []domain.Notification) []int64 {
	ids := notificationIDs(batch)
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		return s.notifications.UpdateStatus(ctx, ids, domain.NotificationNew)
	})
	if err != nil {
		s.logger.Error("release notifications", zap.Int("count", len(ids)), zap.Error(err))
	}
	s.wakeLater()
	return ids
}

func (s *NotificationsService) deliverGroup(ctx context.Context, g recipientGroup) outcome {
	if g.recipient.Type == domain.RecipientServer {
		return s.deliverToServer(ctx, g)
	}
	return s.deliverToUser(ctx, g)
}

func (s *NotificationsService) deliverToUser(ctx context.Context, g recipientGroup) outcome {
	var d delivery
	rest, err := s.sendEach(g.items, &d, func(text string) error {
		return s.messenger.SendToUser(ctx, g.recipient.ID, text)
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRecipientGone):
		s.logger.Info("recipient gone, dropping notifications", zap.Int64("user_id", g.recipient.ID), zap.Int("count", len(rest)))
		d.dropped = append(d.dropped, notificationIDs(rest)...)
	case errors.Is(err, domain.ErrRecipientBlocked):
		s.logger.Info("recipient blocked the bot", zap.Int64("user_id", g.recipient.ID), zap.Int("count", len(rest)))
		d.blocked = append(d.blocked, notificationIDs(rest)...)
	default:
		s.logger.Warn("user delivery failed, will retry", zap.Int64("user_id", g.recipient.ID), zap.Error(err))
		d.retry = append(d.retry, notificationIDs(rest)...)
	}
	return outcome{delivery: d}
}

func (s *NotificationsService) deliverToServer(ctx context.Context, g recipientGroup) outcome {
	serverID := g.recipient.ID
	var d delivery

	exists, err := s.messenger.GroupExists(ctx, serverID)
	if err != nil {
		s.logger.Warn("group lookup failed, will retry", zap.Int64("server_id", serverID), zap.Error(err))
		d.retry = notificationIDs(g.items)
		return outcome{delivery: d}
	}
	if !exists {
		s.logger.Info("group gone, moving alerts to private", zap.Int64("server_id", serverID))
		d.migrated = len(g.items)
		return outcome{delivery: d, migrations: []migration{{serverID: serverID, reason: reasonGroupGone}}}
	}

	var direct []domain.Notification
	byOwner := make(map[int64][]domain.Notification)
	var owners []int64
	for _, n := range g.items {
		if !n.Kind.IsMatch() {
			direct = append(direct, n)
			continue
		}
		owner, ok := n.OwnerUserID()
		if !ok {
			s.logger.Error("dropping match notification without owner", zap.Int64("notification_id", n.ID))
			d.dropped = append(d.dropped, n.ID)
			continue
		}
		if _, seen := byOwner[owner]; !seen {
			owners = append(owners, owner)
		}
		byOwner[owner] = append(byOwner[owner], n)
	}

	send := func(text string) error { return s.messenger.SendToGroup(ctx, serverID, text) }
	wakeNow := false
	// ErrGroupGone while sending is retried: the next pass sees the group
	// missing and migrates.
	onSendError := func(rest []domain.Notification, err error) {
		if errors.Is(err, domain.ErrGroupGone) {
			wakeNow = true
		} else {
			s.logger.Warn("group delivery failed, will retry", zap.Int64("server_id", serverID), zap.Error(err))
		}
		d.retry = append(d.retry, notificationIDs(rest)...)
	}

	if rest, err := s.sendEach(direct, &d, send); err != nil {
		onSendError(rest, err)
		for _, owner := range owners {
			d.retry = append(d.retry, notificationIDs(byOwner[owner])...)
		}
		owners = nil
	}

	var migrations []migration
	for _, owner := range owners {
		items := byOwner[owner]
		member, err := s.messenger.IsMember(ctx, serverID, owner)
		if err != nil {
			s.logger.Warn("membership check failed, will retry", zap.Int64("server_id", serverID), zap.Int64("user_id", owner), zap.Error(err))
			d.retry = append(d.retry, notificationIDs(items)...)
			continue
		}
		if !member {
			migrations = append(migrations, migration{serverID: serverID, userID: &owner, reason: reasonMemberLeft})
			d.migrated += len(items)
			continue
		}
		if rest, err := s.sendEach(items, &d, send); err != nil {
			onSendError(rest, err)
		}
	}
	return outcome{delivery: d, migrations: migrations, wakeNow: wakeNow}
}

// sendEach sends items in order and stops at the first delivery error,
// returning it with the unsent remainder. Notifications that cannot be
// rendered are dropped.
func (s *NotificationsService) sendEach(items []domain.Notification, d *delivery, send func(text string) error) ([]domain.Notification, error) {
	for i, n := range items {
		text, err := n.Render()
		if err != nil {
			s.logger.Error("dropping malformed notification", zap.Int64("notification_id", n.ID), zap.Error(err))
			d.dropped = append(d.dropped, n.ID)
			continue
		}
		if err := send(text); err != nil {
			return items[i:], err
		}
		d.delivered = append(d.delivered, n.ID)
	}
	return nil, nil
}

// apply persists a group outcome in the session and arranges the wake ups
// that must follow its commit.
func (s *NotificationsService) apply(ctx context.Context, session *txn.Session, o outcome) error {
	d := o.delivery
	err := session.Run(ctx, func(ctx context.Context) error {
		remove := append(append([]int64{}, d.delivered...), d.dropped...)
		if err := s.notifications.DeleteByIDs(ctx, remove); err != nil {
			return err
		}
		if err := s.notifications.UpdateStatus(ctx, d.blocked, domain.NotificationBlocked); err != nil {
			return err
		}
		if err := s.notifications.UpdateStatus(ctx, d.retry, domain.NotificationNew); err != nil {
			return err
		}
		for _, m := range o.migrations {
			if err := s.migrate(ctx, m); err != nil {
				return fmt.Errorf("migrate server %d: %w", m.serverID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(d.retry) > 0 {
		session.AfterCommit(s.wakeLater)
	}
	if len(o.migrations) > 0 || o.wakeNow {
		session.AfterCommit(s.Wake)
	}
	return nil
}

// migration redirects a server's alerts, optionally only those of one
// user, to private delivery.
type migration struct {
	serverID int64
	userID   *int64
	reason   string
}

func (s *NotificationsService) migrate(ctx context.Context, m migration) error {
	moved, err := s.alerts.MigrateToPrivate(ctx, m.serverID, m.userID)
	if err != nil {
		return err
	}

	pending, err := s.notifications.FindByRecipient(ctx, domain.ServerRecipient(m.serverID))
	if err != nil {
		return err
	}
	recipients := make(map[int64]domain.Recipient)
	var redirected, orphans []int64
	for _, n := range pending {
		owner, ok := n.OwnerUserID()
		if m.userID != nil && (!ok || owner != *m.userID) {
			continue
		}
		if !ok {
			orphans = append(orphans, n.ID)
			continue
		}
		recipients[n.ID] = domain.UserRecipient(owner)
		redirected = append(redirected, n.ID)
	}
	if err := s.notifications.UpdateRecipients(ctx, recipients); err != nil {
		return err
	}
	if err := s.notifications.UpdateStatus(ctx, redirected, domain.NotificationNew); err != nil {
		return err
	}
	if err := s.notifications.DeleteByIDs(ctx, orphans); err != nil {
		return err
	}

	users := make([]int64, 0, len(moved))
	for userID, count := range moved {
		if count > 0 {
			users = append(users, userID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	locales, err := s.users.Locales(ctx, users)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	notices := make([]domain.Notification, 0, len(users))
	for _, userID := range users {
		locale := locales[userID]
		if locale == "" {
			locale = s.cfg.DefaultLocale
		}
		notices = append(notices, domain.NewMigratedNotification(now, locale, userID, m.serverID, moved[userID], m.reason))
	}
	return s.notifications.Create(ctx, notices)
}

func (s *NotificationsService) record(d delivery) {
	for outcome, n := range map[string]int{
		outcomeDelivered: len(d.delivered),
		outcomeDropped:   len(d.dropped),
		outcomeBlocked:   len(d.blocked),
		outcomeRetried:   len(d.retry),
		outcomeMigrated:  d.migrated,
	} {
		if n > 0 {
			s.metrics.NotificationsProcessed(outcome, n)
		}
	}
}

func notificationIDs(ns []domain.Notification) []int64 {
	ids := make([]int64, 0, len(ns))
	for _, n := range ns {
		ids = append(ids, n.ID)
	}
	return ids
}
