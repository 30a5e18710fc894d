// Package txn scopes units of work to a single storage transaction carried
// in the context.
package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Tx is an open storage transaction.
type Tx interface {
	Commit() error
	Rollback() error
}

// Beginner opens transactions at the requested isolation level.
type Beginner interface {
	Begin(ctx context.Context, isolation sql.IsolationLevel) (Tx, error)
}

type ctxKey struct{}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, ctxKey{}, tx)
}

// FromContext returns the transaction bound to ctx, or nil.
func FromContext(ctx context.Context) Tx {
	tx, _ := ctx.Value(ctxKey{}).(Tx)
	return tx
}

type Manager struct {
	beginner  Beginner
	isolation sql.IsolationLevel
}

func NewManager(beginner Beginner, isolation sql.IsolationLevel) *Manager {
	return &Manager{beginner: beginner, isolation: isolation}
}

// Run executes fn inside a transaction. When ctx already carries one, fn
// joins it and commit is left to its owner.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if FromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := m.beginner.Begin(ctx, m.isolation)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	committed = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var ErrSessionClosed = errors.New("transaction session closed")

// Session is a long lived transaction shared by several logical operations.
// It commits once every registered operation reported Done, then runs the
// actions queued with AfterCommit. Safe for concurrent use.
type Session struct {
	manager *Manager

	mu          sync.Mutex
	tx          Tx
	pending     int
	afterCommit []func()
	closed      bool
}

func (m *Manager) NewSession() *Session {
	return &Session{manager: m}
}

// Register announces n more operations that must complete before commit.
func (s *Session) Register(n int) {
	s.mu.Lock()
	s.pending += n
	s.mu.Unlock()
}

// Run executes fn inside the shared transaction, opening it on first use.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		tx, err := s.manager.beginner.Begin(ctx, s.manager.isolation)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		s.tx = tx
	}
	return fn(WithTx(ctx, s.tx))
}

// AfterCommit queues action to run only if the session commits.
func (s *Session) AfterCommit(action func()) {
	s.mu.Lock()
	s.afterCommit = append(s.afterCommit, action)
	s.mu.Unlock()
}

// Done marks one registered operation complete. The last one commits.
func (s *Session) Done() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.pending--
	if s.pending > 0 {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tx, actions := s.tx, s.afterCommit
	s.tx, s.afterCommit = nil, nil
	s.mu.Unlock()

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
	}
	for _, action := range actions {
		action()
	}
	return nil
}

// Rollback discards the shared transaction and the queued actions.
func (s *Session) Rollback() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tx := s.tx
	s.tx, s.afterCommit = nil, nil
	s.mu.Unlock()
	if tx == nil {
		return nil
	}
	return tx.Rollback()
}
