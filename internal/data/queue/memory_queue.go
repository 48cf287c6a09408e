package queue

import (
	"context"
	"io"
	"sync"
	"time"

	"stubindex/internal/core/ports"
)

var _ ports.WriteQueuePort = (*MemoryQueue)(nil)

// MemoryQueue is a bounded FIFO of write requests. A file write replaces a
// still-queued write for the same file in place, so bursts of saves collapse
// to the latest state.
type MemoryQueue struct {
	mu       sync.Mutex
	items    []ports.WriteRequest
	byFile   map[string]int
	capacity int
	closed   bool
	ready    chan struct{}
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryQueue{
		items:    make([]ports.WriteRequest, 0, capacity),
		byFile:   make(map[string]int),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

func coalesceKey(req ports.WriteRequest) (string, bool) {
	switch req.Operation {
	case ports.WriteOperationReplaceFile, ports.WriteOperationDeleteFile:
		if req.FilePath == "" {
			return "", false
		}
		return req.ProjectKey + "\x00" + req.FilePath, true
	}
	return "", false
}

func (q *MemoryQueue) Enqueue(req ports.WriteRequest) ports.EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ports.EnqueueDropped
	}

	key, coalesce := coalesceKey(req)
	if coalesce {
		if i, ok := q.byFile[key]; ok {
			q.items[i] = req
			return ports.EnqueueAccepted
		}
	}
	if len(q.items) >= q.capacity {
		return ports.EnqueueDropped
	}
	q.items = append(q.items, req)
	if coalesce {
		q.byFile[key] = len(q.items) - 1
	}
	q.signal()
	return ports.EnqueueAccepted
}

func (q *MemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// DequeueBatch returns up to maxItems requests, waiting at most wait for the
// first one. It returns io.EOF once the queue is closed and drained; the
// final batch is returned together with io.EOF.
func (q *MemoryQueue) DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]ports.WriteRequest, error) {
	if maxItems <= 0 {
		maxItems = 1
	}

	var timer <-chan time.Time
	for {
		batch, done, err := q.take(maxItems)
		if done {
			return batch, err
		}
		if wait <= 0 {
			return nil, nil
		}
		if timer == nil {
			t := time.NewTimer(wait)
			defer t.Stop()
			timer = t.C
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer:
			return nil, nil
		}
	}
}

func (q *MemoryQueue) take(maxItems int) ([]ports.WriteRequest, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		if q.closed {
			return nil, true, io.EOF
		}
		return nil, false, nil
	}

	n := min(maxItems, len(q.items))
	batch := make([]ports.WriteRequest, n)
	copy(batch, q.items[:n])
	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]

	clear(q.byFile)
	for i, req := range q.items {
		if key, ok := coalesceKey(req); ok {
			q.byFile[key] = i
		}
	}
	if len(q.items) > 0 {
		q.signal()
	}

	if q.closed && len(q.items) == 0 {
		return batch, true, io.EOF
	}
	return batch, true, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.signal()
	return nil
}

func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
