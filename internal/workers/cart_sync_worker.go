// Package workers provides background job processors for the cart service.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/repository"
)

const (
	// DefaultSyncInterval is the default interval between sync passes.
	DefaultSyncInterval = 30 * time.Second

	// DefaultExpirationInterval is how often expired carts are purged.
	DefaultExpirationInterval = 1 * time.Hour

	// SyncBatchSize is the number of queued operations drained per pass.
	SyncBatchSize = 100
)

// CartSyncWorker drains the pending cart operation queue emitted by login
// reconciliation and applies each operation to the stored cart. Operations
// are idempotent, so a crash between apply and mark only causes a harmless
// re-apply on the next pass. It also purges expired carts periodically.
type CartSyncWorker struct {
	repo               *repository.CartRepository
	syncInterval       time.Duration
	expirationInterval time.Duration
	logger             *logrus.Entry

	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.Mutex
	running  bool
	lastRun  time.Time
	stats    SyncStats
}

// SyncStats tracks sync statistics.
type SyncStats struct {
	OperationsApplied int64     `json:"operationsApplied"`
	OperationsFailed  int64     `json:"operationsFailed"`
	CartsExpired      int64     `json:"cartsExpired"`
	LastRunAt         time.Time `json:"lastRunAt,omitempty"`
	LastRunDuration   string    `json:"lastRunDuration,omitempty"`
}

// NewCartSyncWorker creates a new cart sync worker.
func NewCartSyncWorker(repo *repository.CartRepository, syncInterval time.Duration, logger *logrus.Logger) *CartSyncWorker {
	if syncInterval == 0 {
		syncInterval = DefaultSyncInterval
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &CartSyncWorker{
		repo:               repo,
		syncInterval:       syncInterval,
		expirationInterval: DefaultExpirationInterval,
		logger:             logger.WithField("component", "cart-sync-worker"),
		stopChan:           make(chan struct{}),
		doneChan:           make(chan struct{}),
	}
}

// Start begins the sync loop.
func (w *CartSyncWorker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run()
	w.logger.WithField("interval", w.syncInterval.String()).Info("Cart sync worker started")
}

// Stop stops the sync loop and waits for the in-flight pass to finish.
func (w *CartSyncWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	<-w.doneChan
	w.logger.Info("Cart sync worker stopped")
}

// ForceRun triggers an immediate sync pass.
func (w *CartSyncWorker) ForceRun(ctx context.Context) error {
	return w.drainOperations(ctx)
}

// IsRunning returns whether the worker is running.
func (w *CartSyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stats returns the current sync statistics.
func (w *CartSyncWorker) Stats() SyncStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// run is the main sync loop.
func (w *CartSyncWorker) run() {
	defer close(w.doneChan)

	syncTicker := time.NewTicker(w.syncInterval)
	defer syncTicker.Stop()
	expireTicker := time.NewTicker(w.expirationInterval)
	defer expireTicker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-syncTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.syncInterval)
			if err := w.drainOperations(ctx); err != nil {
				w.logger.WithError(err).Error("Cart sync pass failed")
			}
			cancel()
		case <-expireTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := w.purgeExpiredCarts(ctx); err != nil {
				w.logger.WithError(err).Error("Cart expiration pass failed")
			}
			cancel()
		}
	}
}

// drainOperations applies queued cart operations in FIFO order.
func (w *CartSyncWorker) drainOperations(ctx context.Context) error {
	startTime := time.Now()
	var applied, failed int64

	for {
		pending, err := w.repo.FetchPendingOperations(ctx, SyncBatchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			break
		}

		for _, row := range pending {
			op, err := row.ParseOperation()
			if err != nil {
				// Undecodable rows are burned through the attempt budget
				// instead of blocking the queue.
				failed++
				w.logger.WithError(err).WithField("operationId", row.ID).Warn("Dropping undecodable cart operation")
				_ = w.repo.RecordOperationFailure(ctx, row.ID, err)
				continue
			}

			if err := w.repo.ApplyOperation(ctx, row.TenantID, row.CustomerID, op); err != nil {
				failed++
				w.logger.WithError(err).WithFields(logrus.Fields{
					"operationId": row.ID,
					"tenantId":    row.TenantID,
					"type":        op.Type,
				}).Warn("Failed to apply cart operation")
				_ = w.repo.RecordOperationFailure(ctx, row.ID, err)
				continue
			}

			if err := w.repo.MarkOperationApplied(ctx, row.ID); err != nil {
				w.logger.WithError(err).WithField("operationId", row.ID).Warn("Failed to mark operation applied")
			}
			applied++
		}

		if len(pending) < SyncBatchSize {
			break
		}
	}

	duration := time.Since(startTime)
	w.mu.Lock()
	w.lastRun = startTime
	w.stats.OperationsApplied += applied
	w.stats.OperationsFailed += failed
	w.stats.LastRunAt = startTime
	w.stats.LastRunDuration = duration.String()
	w.mu.Unlock()

	if applied > 0 || failed > 0 {
		w.logger.WithFields(logrus.Fields{
			"applied":  applied,
			"failed":   failed,
			"duration": duration.String(),
		}).Info("Cart sync pass completed")
	}
	return nil
}

// purgeExpiredCarts removes carts past their expiration date.
func (w *CartSyncWorker) purgeExpiredCarts(ctx context.Context) error {
	removed, err := w.repo.RemoveExpiredCarts(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.stats.CartsExpired += removed
	w.mu.Unlock()

	if removed > 0 {
		w.logger.WithField("removed", removed).Info("Expired carts purged")
	}
	return nil
}

// WorkerStatus contains the current status of the worker.
type WorkerStatus struct {
	Running  bool      `json:"running"`
	Interval string    `json:"interval"`
	LastRun  time.Time `json:"lastRun,omitempty"`
	Stats    SyncStats `json:"stats"`
}

// Status returns the current status of the worker.
func (w *CartSyncWorker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := WorkerStatus{
		Running:  w.running,
		Interval: w.syncInterval.String(),
		Stats:    w.stats,
	}
	if !w.lastRun.IsZero() {
		status.LastRun = w.lastRun
	}
	return status
}
