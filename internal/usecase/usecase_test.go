package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NasaVasa/alertwatch/internal/config"
	"github.com/NasaVasa/alertwatch/internal/domain"
	"github.com/NasaVasa/alertwatch/internal/infra/db"
	"github.com/NasaVasa/alertwatch/internal/txn"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type store struct {
	tx            *txn.Manager
	users         *db.UserRepository
	alerts        *db.AlertRepository
	notifications *db.NotificationRepository
	candles       *db.LastCandlestickRepository
}

func newStore(t *testing.T) *store {
	t.Helper()
	gdb, err := db.Open(config.Config{
		DBDriver:       config.DriverSQLite,
		SQLitePath:     filepath.Join(t.TempDir(), "alertwatch.db"),
		DBMaxIdleConns: 1,
		DBMaxOpenConns: 1,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &store{
		tx:            txn.NewManager(db.NewTxBeginner(gdb), sql.LevelSerializable),
		users:         db.NewUserRepository(gdb),
		alerts:        db.NewAlertRepository(gdb),
		notifications: db.NewNotificationRepository(gdb),
		candles:       db.NewLastCandlestickRepository(gdb),
	}
}

func (s *store) pending(t *testing.T) []domain.Notification {
	t.Helper()
	batch, err := s.notifications.NextBatch(context.Background(), 100, nil)
	if err != nil {
		t.Fatalf("NextBatch: %v", err)
	}
	return batch
}

func (s *store) queue(t *testing.T, ns ...domain.Notification) []domain.Notification {
	t.Helper()
	if err := s.notifications.Create(context.Background(), ns); err != nil {
		t.Fatalf("create notifications: %v", err)
	}
	return ns
}

func (s *store) rangeAlert(t *testing.T, userID, serverID int64, exchange, pair string, from, to int64, created time.Time) domain.Alert {
	t.Helper()
	a, err := domain.NewRangeAlert(userID, serverID, exchange, pair, "", domain.PriceFromInt(from), domain.PriceFromInt(to), nil, nil, created)
	if err != nil {
		t.Fatalf("NewRangeAlert: %v", err)
	}
	return s.create(t, a)
}

func (s *store) create(t *testing.T, a domain.Alert) domain.Alert {
	t.Helper()
	if err := s.alerts.Create(context.Background(), &a); err != nil {
		t.Fatalf("create alert: %v", err)
	}
	return a
}

func (s *store) alert(t *testing.T, id int64) *domain.Alert {
	t.Helper()
	a, err := s.alerts.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d): %v", id, err)
	}
	return a
}

func bar(t *testing.T, open time.Time, tf domain.TimeFrame, low, high int64) domain.Candlestick {
	t.Helper()
	c, err := domain.NewCandlestick(open, open.Add(tf.Duration()),
		domain.PriceFromInt(low), domain.PriceFromInt(high), domain.PriceFromInt(high), domain.PriceFromInt(low))
	if err != nil {
		t.Fatalf("NewCandlestick: %v", err)
	}
	return c
}

type fetchCall struct {
	pair  string
	tf    domain.TimeFrame
	limit int
}

type fakeExchange struct {
	name    string
	err     error
	candles map[domain.TimeFrame][]domain.Candlestick

	mu    sync.Mutex
	calls []fetchCall
}

func (e *fakeExchange) Name() string    { return e.name }
func (e *fakeExchange) IsVirtual() bool { return false }

func (e *fakeExchange) GetCandlesticks(_ context.Context, pair string, tf domain.TimeFrame, limit int) ([]domain.Candlestick, error) {
	e.mu.Lock()
	e.calls = append(e.calls, fetchCall{pair: pair, tf: tf, limit: limit})
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	bars := e.candles[tf]
	if len(bars) == 0 {
		return nil, fmt.Errorf("no %s bars for %s", tf, pair)
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return append([]domain.Candlestick(nil), bars...), nil
}

func (e *fakeExchange) fetches() []fetchCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]fetchCall(nil), e.calls...)
}

type countingWaker struct{ n atomic.Int32 }

func (w *countingWaker) Wake() { w.n.Add(1) }

type fakeMessenger struct {
	mu          sync.Mutex
	userErr     map[int64]error
	groupErr    map[int64]error
	lookupErr   error
	groups      map[int64]bool
	members     map[int64]map[int64]bool
	toUsers     map[int64][]string
	toGroups    map[int64][]string
	memberCalls int
	panicUsers  map[int64]bool
	onSend      func()
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		userErr:    make(map[int64]error),
		groupErr:   make(map[int64]error),
		groups:     make(map[int64]bool),
		members:    make(map[int64]map[int64]bool),
		toUsers:    make(map[int64][]string),
		toGroups:   make(map[int64][]string),
		panicUsers: make(map[int64]bool),
	}
}

func (m *fakeMessenger) SendToUser(_ context.Context, userID int64, text string) error {
	if m.onSend != nil {
		m.onSend()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicUsers[userID] {
		panic(fmt.Sprintf("send to user %d", userID))
	}
	if err := m.userErr[userID]; err != nil {
		return err
	}
	m.toUsers[userID] = append(m.toUsers[userID], text)
	return nil
}

func (m *fakeMessenger) SendToGroup(_ context.Context, groupID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.groupErr[groupID]; err != nil {
		return err
	}
	m.toGroups[groupID] = append(m.toGroups[groupID], text)
	return nil
}

func (m *fakeMessenger) GroupExists(_ context.Context, groupID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return false, m.lookupErr
	}
	return m.groups[groupID], nil
}

func (m *fakeMessenger) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberCalls++
	return m.members[groupID][userID], nil
}

func (m *fakeMessenger) addMember(groupID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[groupID] = true
	if m.members[groupID] == nil {
		m.members[groupID] = make(map[int64]bool)
	}
	m.members[groupID][userID] = true
}

func (m *fakeMessenger) userMessages(userID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.toUsers[userID]...)
}

func (m *fakeMessenger) groupMessages(groupID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.toGroups[groupID]...)
}

var errNetwork = errors.New("connection reset by peer")

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
