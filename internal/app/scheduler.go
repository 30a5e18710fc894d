package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// AlertsChecker runs one evaluation tick.
type AlertsChecker interface {
	CheckAlerts(ctx context.Context) error
}

// Scheduler fires alert checks at a fixed interval. A tick still running
// when the next one is due causes that one to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	checker AlertsChecker
	logger  *zap.Logger
	ctx     context.Context
}

func NewScheduler(ctx context.Context, checker AlertsChecker, periodMinutes int, logger *zap.Logger) (*Scheduler, error) {
	if periodMinutes <= 0 {
		return nil, fmt.Errorf("alerts check period must be positive, got %d minutes", periodMinutes)
	}
	cronLog := cronLogger{logger: logger.Named("cron").Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		checker: checker,
		logger:  logger,
		ctx:     ctx,
	}
	spec := fmt.Sprintf("@every %dm", periodMinutes)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("register alerts check %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	if err := s.checker.CheckAlerts(s.ctx); err != nil {
		s.logger.Error("alerts check failed", zap.Error(err))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop prevents new ticks and waits up to timeout for a running one.
func (s *Scheduler) Stop(timeout time.Duration) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-time.After(timeout):
		s.logger.Warn("timeout waiting for running alerts check")
	}
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
