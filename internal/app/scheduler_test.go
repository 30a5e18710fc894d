package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type countingChecker struct {
	calls atomic.Int32
	err   error
}

func (c *countingChecker) CheckAlerts(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestSchedulerRegistersFixedInterval(t *testing.T) {
	s, err := NewScheduler(context.Background(), &countingChecker{}, 15, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	entries := s.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	start := time.Date(2026, 3, 2, 9, 7, 0, 0, time.UTC)
	if next := entries[0].Schedule.Next(start); !next.Equal(start.Add(15 * time.Minute)) {
		t.Fatalf("next = %s, want %s", next, start.Add(15*time.Minute))
	}
}

func TestSchedulerRejectsInvalidPeriod(t *testing.T) {
	if _, err := NewScheduler(context.Background(), &countingChecker{}, -1, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected an error for a negative period")
	}
}

func TestSchedulerTickLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	checker := &countingChecker{err: errors.New("db down")}
	s, err := NewScheduler(context.Background(), checker, 1, zap.New(core))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.tick()

	if checker.calls.Load() != 1 {
		t.Fatalf("calls = %d", checker.calls.Load())
	}
	if logs.FilterMessage("alerts check failed").Len() != 1 {
		t.Fatalf("logs = %+v", logs.All())
	}
}

func TestSchedulerStopReturnsWhenIdle(t *testing.T) {
	s, err := NewScheduler(context.Background(), &countingChecker{}, 1, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start()
	stopped := make(chan struct{})
	go func() {
		s.Stop(time.Second)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
