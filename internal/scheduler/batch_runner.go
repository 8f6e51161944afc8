// Package scheduler runs the periodic full reindex.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Syncer is the full-pass job, satisfied by service.SyncService.
type Syncer interface {
	SyncAll(ctx context.Context) (int, error)
}

type BatchRunner struct {
	syncer   Syncer
	schedule string
	timeout  time.Duration
	log      *zap.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	lastRun RunReport
}

// RunReport describes the most recent pass.
type RunReport struct {
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Documents int       `json:"documents"`
	Error     string    `json:"error,omitempty"`
}

func NewBatchRunner(syncer Syncer, schedule string, timeout time.Duration, log *zap.Logger) *BatchRunner {
	log = log.Named("batch")
	cl := cronLogger{log: log.Sugar()}
	return &BatchRunner{
		syncer:   syncer,
		schedule: schedule,
		timeout:  timeout,
		log:      log,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start registers the schedule and starts the cron loop.
func (r *BatchRunner) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.runScheduled); err != nil {
		return fmt.Errorf("schedule batch sync %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.log.Info("batch sync scheduled", zap.String("schedule", r.schedule))
	return nil
}

// Stop prevents further runs and waits for a running pass to finish or ctx
// to end.
func (r *BatchRunner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.log.Warn("batch sync still running at shutdown")
	}
}

// RunOnce performs one full pass now, bounded by the configured timeout.
func (r *BatchRunner) RunOnce(ctx context.Context) (int, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := r.syncer.SyncAll(ctx)

	report := RunReport{StartedAt: start, Duration: time.Since(start).String(), Documents: n}
	if err != nil {
		report.Error = err.Error()
	}
	r.mu.Lock()
	r.lastRun = report
	r.mu.Unlock()

	return n, err
}

func (r *BatchRunner) LastRun() RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

func (r *BatchRunner) runScheduled() {
	n, err := r.RunOnce(context.Background())
	if err != nil {
		r.log.Error("scheduled batch sync failed", zap.Int("documents", n), zap.Error(err))
	}
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
