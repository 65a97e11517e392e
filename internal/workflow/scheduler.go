package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (*Report, error)
}

// Scheduler runs reconciliation on a cron schedule. Runs never overlap.
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	schedule   string
	timeout    time.Duration
	logger     *zap.Logger
	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
}

// NewScheduler validates the cron schedule ("*/5 * * * *", "@every 10m", ...) and
// builds a stopped scheduler.
func NewScheduler(reconciler Reconciler, schedule string, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		reconciler: reconciler,
		schedule:   schedule,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Start registers the reconcile job and starts the cron loop. Jobs run with
// a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("reconcile scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runOnce(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}
	s.cancel = cancel
	s.running = true

	s.logger.Info("Starting reconcile scheduler", zap.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.logger.Info("Stopping reconcile scheduler")
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.running = false
}

// RunNow runs a pass outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.reconciler.Reconcile(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	report, err := s.RunNow(ctx)
	if err != nil {
		s.logger.Error("Scheduled reconciliation failed", zap.Error(err))
		return
	}
	s.logger.Debug("Scheduled reconciliation finished",
		zap.Int("checked", report.Checked),
		zap.Int("repaired", len(report.Repaired)))
}

// cronLogger adapts zap to cron's logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
