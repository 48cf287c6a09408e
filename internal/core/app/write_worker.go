package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"stubindex/internal/core/config"
	"stubindex/internal/core/ports"
	"stubindex/internal/data/queue"
	"stubindex/internal/shared/observability"
)

// exhaustedDropper is implemented by spools that can discard rows which kept
// failing.
type exhaustedDropper interface {
	DropExhausted(ctx context.Context, maxAttempts int) (int, error)
}

func (a *App) initWriteQueue() error {
	if a == nil || a.Config == nil || a.store == nil {
		return nil
	}
	if !a.Config.WriteQueue.IsEnabled() {
		return nil
	}

	a.writeQueue = queue.NewMemoryQueue(a.Config.WriteQueue.MemoryCapacity)
	if a.Config.WriteQueue.PersistentEnabled() {
		spool, err := queue.OpenSQLiteSpool(a.Paths.SpoolPath, a.Config.DB.ProjectKey, a.Config.DB.BusyTimeout)
		if err != nil {
			return fmt.Errorf("open write spool: %w", err)
		}
		a.writeSpool = spool
	}
	return a.startWriteWorker()
}

func (a *App) startWriteWorker() error {
	if a == nil || a.writeQueue == nil || a.workerCancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.workerCancel = cancel
	a.workerDone = make(chan struct{})
	a.wake = make(chan struct{}, 1)
	go a.runWriteWorker(ctx)
	return nil
}

func (a *App) runWriteWorker(ctx context.Context) {
	defer close(a.workerDone)

	flushInterval := a.Config.WriteQueue.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		applied, done := a.writeCycle(ctx)
		if done {
			return
		}
		if applied > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-a.wake:
		case <-ticker.C:
		}
	}
}

// writeCycle dequeues and applies one batch without waiting. It holds writeMu
// for the whole cycle so Flush never observes a dequeued but unapplied batch.
func (a *App) writeCycle(ctx context.Context) (int, bool) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	b, err := a.nextWriteBatch(ctx, a.writeBatchSize())
	if errors.Is(err, context.Canceled) {
		return 0, true
	}
	if err != nil {
		slog.Warn("write batch dequeue failed", "error", err)
		return 0, false
	}
	if len(b.requests) == 0 {
		a.updateQueueMetrics()
		return 0, b.eof
	}

	started := time.Now()
	if applyErr := a.applyWriteBatch(ctx, b.requests); applyErr != nil {
		observability.WriteQueueApplyErrorsTotal.Inc()
		slog.Warn("write worker apply failed", "error", applyErr, "batch_size", len(b.requests))
		a.handleWriteFailure(ctx, b.spooled, b.memory, applyErr)
	} else {
		observability.WriteQueueProcessedTotal.Add(float64(len(b.requests)))
		a.settleWriteBatch(ctx, b)
		observability.WriteQueueFlushLatencySeconds.Observe(time.Since(started).Seconds())
	}
	a.updateQueueMetrics()
	return len(b.requests), b.eof
}

func (a *App) writeBatchSize() int {
	if a.Config.WriteQueue.BatchSize <= 0 {
		return 1
	}
	return a.Config.WriteQueue.BatchSize
}

// writeBatch is one store transaction worth of writes. Spooled rows are older
// than queued requests: they go first, and a spooled file write is left out
// when a queued write for the same file is in the batch.
type writeBatch struct {
	requests   []ports.WriteRequest
	spooled    []ports.SpoolRow
	superseded []ports.SpoolRow
	memory     []ports.WriteRequest
	// highWater is the newest spool id seen before the memory dequeue.
	highWater int64
	eof       bool
}

func (a *App) nextWriteBatch(ctx context.Context, batchSize int) (writeBatch, error) {
	var b writeBatch
	var rows []ports.SpoolRow
	if a.writeSpool != nil {
		hw, err := a.writeSpool.HighWater(ctx)
		if err != nil {
			return b, err
		}
		b.highWater = hw
		rows, err = a.writeSpool.DequeueBatch(ctx, batchSize)
		if err != nil {
			return b, err
		}
	}

	if a.writeQueue != nil && len(rows) < batchSize {
		memoryBatch, err := a.writeQueue.DequeueBatch(ctx, batchSize-len(rows), 0)
		switch {
		case errors.Is(err, io.EOF):
			b.eof = true
		case err != nil:
			return b, err
		}
		b.memory = memoryBatch
	}

	queued := make(map[string]bool, len(b.memory))
	for _, req := range b.memory {
		if path, ok := fileWritePath(req); ok {
			queued[path] = true
		}
	}
	b.requests = make([]ports.WriteRequest, 0, len(rows)+len(b.memory))
	for _, row := range rows {
		if path, ok := fileWritePath(row.Request); ok && queued[path] {
			b.superseded = append(b.superseded, row)
			continue
		}
		b.spooled = append(b.spooled, row)
		b.requests = append(b.requests, row.Request)
	}
	b.requests = append(b.requests, b.memory...)
	return b, nil
}

// settleWriteBatch acknowledges the spool rows of an applied batch and drops
// older spooled writes, including rows still in backoff, for every file the
// batch wrote from the memory queue.
func (a *App) settleWriteBatch(ctx context.Context, b writeBatch) {
	a.ackSpooled(b.spooled)
	a.ackSpooled(b.superseded)
	if a.writeSpool == nil || b.highWater == 0 {
		return
	}
	paths := make([]string, 0, len(b.memory))
	for _, req := range b.memory {
		if path, ok := fileWritePath(req); ok {
			paths = append(paths, path)
		}
	}
	if n, err := a.writeSpool.DiscardSuperseded(ctx, paths, b.highWater); err != nil {
		slog.Warn("failed to discard superseded spool rows", "error", err)
	} else if n > 0 {
		slog.Debug("discarded superseded spool rows", "count", n)
	}
}

func fileWritePath(req ports.WriteRequest) (string, bool) {
	switch req.Operation {
	case ports.WriteOperationReplaceFile, ports.WriteOperationDeleteFile:
		return req.FilePath, req.FilePath != ""
	}
	return "", false
}

func (a *App) ackSpooled(rows []ports.SpoolRow) {
	if a.writeSpool == nil || len(rows) == 0 {
		return
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	if err := a.writeSpool.Ack(ids); err != nil {
		slog.Warn("write spool ack failed", "error", err, "count", len(ids))
	}
}

// handleWriteFailure spills a failed memory batch to the spool and defers
// failed spool rows with exponential backoff. Without a spool the memory
// batch is lost.
func (a *App) handleWriteFailure(ctx context.Context, spooled []ports.SpoolRow, memoryBatch []ports.WriteRequest, applyErr error) {
	if a == nil || a.writeSpool == nil {
		if len(memoryBatch) > 0 {
			slog.Error("dropping failed writes without a spool", "count", len(memoryBatch), "error", applyErr)
		}
		return
	}
	for _, req := range memoryBatch {
		if err := a.writeSpool.Enqueue(req); err != nil {
			slog.Warn("failed to spill memory request to spool", "error", err, "operation", req.Operation)
		} else {
			observability.WriteQueueSpilledTotal.Inc()
		}
	}
	if len(spooled) == 0 {
		return
	}

	maxAttempts := 0
	for _, row := range spooled {
		if row.Attempts > maxAttempts {
			maxAttempts = row.Attempts
		}
	}
	nextAttempt := time.Now().Add(backoffDelay(a.Config.WriteQueue, maxAttempts+1))
	if err := a.writeSpool.Nack(spooled, nextAttempt, applyErr.Error()); err != nil {
		slog.Warn("write spool nack failed", "error", err, "count", len(spooled))
		return
	}
	observability.WriteQueueRetryTotal.Add(float64(len(spooled)))

	if dropper, ok := a.writeSpool.(exhaustedDropper); ok {
		dropped, err := dropper.DropExhausted(ctx, a.Config.WriteQueue.MaxAttempts)
		if err != nil {
			slog.Warn("failed to drop exhausted spool rows", "error", err)
		} else if dropped > 0 {
			slog.Error("dropped spooled writes after max attempts", "count", dropped, "max_attempts", a.Config.WriteQueue.MaxAttempts)
		}
	}
}

// backoffDelay doubles the base delay per attempt, capped at the max delay.
func backoffDelay(cfg config.WriteQueue, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.RetryBaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := cfg.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// enqueueWrite routes req through the memory queue, spilling to the spool or
// applying it synchronously when the queue is full.
func (a *App) enqueueWrite(req ports.WriteRequest) error {
	if a == nil || a.store == nil {
		return nil
	}
	if req.ProjectKey == "" {
		req.ProjectKey = a.Config.DB.ProjectKey
	}
	if a.writeQueue == nil {
		return a.applyWriteRequest(context.Background(), req)
	}

	result := a.writeQueue.Enqueue(req)
	switch result {
	case ports.EnqueueAccepted:
		observability.WriteQueueEnqueuedTotal.Inc()
		a.updateQueueMetrics()
		select {
		case a.wake <- struct{}{}:
		default:
		}
		return nil
	case ports.EnqueueDropped:
		observability.WriteQueueDroppedTotal.Inc()
		if a.writeSpool != nil {
			if err := a.writeSpool.Enqueue(req); err != nil {
				if a.Config.WriteQueue.SyncFallbackEnabled() {
					return a.applyWriteRequest(context.Background(), req)
				}
				return err
			}
			observability.WriteQueueSpilledTotal.Inc()
			a.updateQueueMetrics()
			return nil
		}
		if a.Config.WriteQueue.SyncFallbackEnabled() {
			return a.applyWriteRequest(context.Background(), req)
		}
		return fmt.Errorf("write queue full and sync fallback disabled")
	default:
		return fmt.Errorf("unknown enqueue result %q", result)
	}
}

// applyWriteBatch applies requests in order inside one store transaction.
func (a *App) applyWriteBatch(ctx context.Context, batch []ports.WriteRequest) error {
	if a == nil || a.store == nil || len(batch) == 0 {
		return nil
	}

	b, err := a.store.BeginBatch(ctx)
	if err != nil {
		return err
	}
	defer b.Rollback()

	for _, req := range batch {
		if err := applyToBatch(b, req); err != nil {
			return err
		}
	}
	return b.Commit()
}

func applyToBatch(b ports.OccurrenceBatch, req ports.WriteRequest) error {
	switch req.Operation {
	case ports.WriteOperationReplaceFile:
		if req.File == nil {
			return fmt.Errorf("replace_file request for %q carries no file record", req.FilePath)
		}
		return b.ReplaceFile(*req.File)
	case ports.WriteOperationDeleteFile:
		return b.DeleteFile(req.FilePath)
	case ports.WriteOperationPruneToPaths:
		return b.PruneToPaths(req.Paths)
	default:
		return fmt.Errorf("unsupported write operation %q", req.Operation)
	}
}

func (a *App) applyWriteRequest(ctx context.Context, req ports.WriteRequest) error {
	if a == nil || a.store == nil {
		return nil
	}
	switch req.Operation {
	case ports.WriteOperationReplaceFile:
		if req.File == nil {
			return fmt.Errorf("replace_file request for %q carries no file record", req.FilePath)
		}
		return a.store.ReplaceFile(ctx, *req.File)
	case ports.WriteOperationDeleteFile:
		return a.store.DeleteFile(ctx, req.FilePath)
	case ports.WriteOperationPruneToPaths:
		return a.store.PruneToPaths(ctx, req.Paths)
	default:
		return fmt.Errorf("unsupported write operation %q", req.Operation)
	}
}

// Flush applies every queued and spooled write before returning.
func (a *App) Flush(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.drainWriteQueue(ctx)
}

func (a *App) stopWriteWorker(ctx context.Context) error {
	if a == nil {
		return nil
	}
	if a.workerCancel != nil {
		a.workerCancel()
		a.workerCancel = nil
	}
	if a.workerDone != nil {
		select {
		case <-a.workerDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		a.workerDone = nil
	}
	if err := a.drainWriteQueue(ctx); err != nil {
		return err
	}
	if a.writeQueue != nil {
		if err := a.writeQueue.Close(); err != nil {
			return err
		}
		a.writeQueue = nil
	}
	if a.writeSpool != nil {
		if err := a.writeSpool.Close(); err != nil {
			return err
		}
		a.writeSpool = nil
	}
	return nil
}

func (a *App) drainWriteQueue(ctx context.Context) error {
	if a == nil {
		return nil
	}
	defer a.updateQueueMetrics()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := a.nextWriteBatch(ctx, a.writeBatchSize())
		if err != nil {
			return err
		}
		if len(b.requests) == 0 {
			return nil
		}
		if err := a.applyWriteBatch(ctx, b.requests); err != nil {
			observability.WriteQueueApplyErrorsTotal.Inc()
			a.handleWriteFailure(ctx, b.spooled, b.memory, err)
			return err
		}
		observability.WriteQueueProcessedTotal.Add(float64(len(b.requests)))
		a.settleWriteBatch(ctx, b)
	}
}

func (a *App) updateQueueMetrics() {
	if a == nil {
		return
	}
	if a.writeQueue != nil {
		observability.WriteQueueDepth.Set(float64(a.writeQueue.Len()))
	}
	if a.writeSpool != nil {
		if count, err := a.writeSpool.PendingCount(context.Background()); err == nil {
			observability.WriteSpoolDepth.Set(float64(count))
		}
	}
}
