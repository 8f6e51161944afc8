package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/catalog-service/internal/core/domain"
)

// SyncRequester schedules an index refresh for one variant.
type SyncRequester interface {
	RequestSync(ctx context.Context, variantID uint64) error
}

type variantSyncer interface {
	SyncVariant(ctx context.Context, variantID uint64) error
}

type DispatcherConfig struct {
	Workers      int
	QueueSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
	// JobTimeout bounds one SyncVariant attempt.
	JobTimeout time.Duration
}

// SyncDispatcher runs near-real-time index refreshes off the request path.
// A dropped or failed refresh is repaired by the next batch pass.
type SyncDispatcher struct {
	syncer variantSyncer
	cfg    DispatcherConfig
	log    *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan uint64
	wg     sync.WaitGroup
}

func NewSyncDispatcher(syncer variantSyncer, cfg DispatcherConfig, log *zap.Logger) *SyncDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Second
	}
	return &SyncDispatcher{
		syncer: syncer,
		cfg:    cfg,
		log:    log.Named("sync_dispatcher"),
		queue:  make(chan uint64, cfg.QueueSize),
	}
}

// Start launches the worker pool.
func (d *SyncDispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	d.log.Info("started sync workers", zap.Int("workers", d.cfg.Workers))
}

// RequestSync enqueues without blocking. A full or closed queue is reported
// as domain.ErrSyncFailure.
func (d *SyncDispatcher) RequestSync(_ context.Context, variantID uint64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("%w: dispatcher closed", domain.ErrSyncFailure)
	}

	select {
	case d.queue <- variantID:
		return nil
	default:
		return fmt.Errorf("%w: sync queue full", domain.ErrSyncFailure)
	}
}

// Close stops intake, drains queued requests and waits for the workers.
func (d *SyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("sync workers stopped")
}

func (d *SyncDispatcher) workerLoop(id int) {
	for variantID := range d.queue {
		if err := d.syncWithRetry(variantID); err != nil {
			d.log.Error("variant sync failed",
				zap.Int("worker", id),
				zap.Uint64("variant_id", variantID),
				zap.Int("attempts", d.cfg.MaxAttempts),
				zap.Error(err),
			)
			continue
		}
		d.log.Debug("variant synced", zap.Int("worker", id), zap.Uint64("variant_id", variantID))
	}
}

func (d *SyncDispatcher) syncWithRetry(variantID uint64) error {
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
		err = d.syncer.SyncVariant(ctx, variantID)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < d.cfg.MaxAttempts {
			time.Sleep(d.cfg.RetryBackoff * time.Duration(attempt))
		}
	}
	return err
}
