package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stubindex/internal/core/config"
	"stubindex/internal/core/ports"
	"stubindex/internal/data/queue"
	"stubindex/internal/data/store"
	"stubindex/internal/engine/index"
	"stubindex/internal/engine/stub"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "index.db"), "test")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func testWriteQueueConfig(capacity, batchSize int, flushInterval time.Duration) *config.Config {
	cfg := &config.Config{}
	cfg.DB.ProjectKey = "test"
	cfg.WriteQueue = config.WriteQueue{
		MemoryCapacity:       capacity,
		BatchSize:            batchSize,
		FlushInterval:        flushInterval,
		ShutdownDrainTimeout: 2 * time.Second,
		RetryBaseDelay:       10 * time.Millisecond,
		RetryMaxDelay:        80 * time.Millisecond,
		MaxAttempts:          2,
	}
	return cfg
}

func testRecord(path, fn string) *ports.FileRecord {
	return &ports.FileRecord{
		Path:        path,
		ContentHash: "h-" + path,
		Header:      stub.FileHeader{PackageFqName: "com.example"},
		Occurrences: []index.Occurrence{
			{Index: index.PackageIndex, Key: "com.example"},
			{Index: index.FunctionShortNameIndex, Key: fn},
		},
	}
}

func TestWriteWorker_AppliesQueuedReplace(t *testing.T) {
	st := newTestStore(t)
	app := &App{Config: testWriteQueueConfig(8, 2, 20*time.Millisecond), store: st}
	if err := app.initWriteQueue(); err != nil {
		t.Fatalf("initWriteQueue failed: %v", err)
	}
	defer func() {
		_ = app.stopWriteWorker(context.Background())
		_ = st.Close()
	}()

	if err := app.enqueueWrite(ports.WriteRequest{
		Operation: ports.WriteOperationReplaceFile,
		FilePath:  "a.kt",
		File:      testRecord("a.kt", "alpha"),
	}); err != nil {
		t.Fatalf("enqueueWrite failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		files, err := st.Lookup(context.Background(), index.FunctionShortNameIndex, "alpha")
		if err == nil && len(files) == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for queued replace to reach the store")
}

func TestWriteWorker_StopDrainsPendingMemoryWrites(t *testing.T) {
	st := newTestStore(t)
	app := &App{Config: testWriteQueueConfig(8, 8, 5*time.Second), store: st}
	if err := app.initWriteQueue(); err != nil {
		t.Fatalf("initWriteQueue failed: %v", err)
	}
	defer st.Close()

	if err := app.enqueueWrite(ports.WriteRequest{
		Operation: ports.WriteOperationReplaceFile,
		FilePath:  "drain.kt",
		File:      testRecord("drain.kt", "drained"),
	}); err != nil {
		t.Fatalf("enqueueWrite failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.stopWriteWorker(ctx); err != nil {
		t.Fatalf("stopWriteWorker failed: %v", err)
	}

	files, err := st.Lookup(context.Background(), index.FunctionShortNameIndex, "drained")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(files) != 1 || files[0] != "drain.kt" {
		t.Fatalf("expected drained write to be applied, got %v", files)
	}
}

func TestFlushAppliesQueuedWrites(t *testing.T) {
	st := newTestStore(t)
	app := &App{Config: testWriteQueueConfig(8, 8, time.Hour), store: st}
	if err := app.initWriteQueue(); err != nil {
		t.Fatalf("initWriteQueue failed: %v", err)
	}
	defer func() {
		_ = app.stopWriteWorker(context.Background())
		_ = st.Close()
	}()

	for _, name := range []string{"a.kt", "b.kt"} {
		if err := app.enqueueWrite(ports.WriteRequest{
			Operation: ports.WriteOperationReplaceFile,
			FilePath:  name,
			File:      testRecord(name, "shared"),
		}); err != nil {
			t.Fatalf("enqueueWrite failed: %v", err)
		}
	}
	if err := app.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	files, err := st.Lookup(context.Background(), index.FunctionShortNameIndex, "shared")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected both writes after Flush, got %v", files)
	}
}

func TestEnqueueWrite_AppliesSynchronouslyWithoutQueue(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	app := &App{Config: testWriteQueueConfig(8, 8, time.Second), store: st}

	if err := app.enqueueWrite(ports.WriteRequest{
		Operation: ports.WriteOperationReplaceFile,
		FilePath:  "sync.kt",
		File:      testRecord("sync.kt", "direct"),
	}); err != nil {
		t.Fatalf("enqueueWrite failed: %v", err)
	}
	if err := app.enqueueWrite(ports.WriteRequest{Operation: ports.WriteOperationReplaceFile, FilePath: "empty.kt"}); err == nil {
		t.Fatal("expected replace without a record to fail")
	}

	files, err := st.Lookup(context.Background(), index.FunctionShortNameIndex, "direct")
	if err != nil || len(files) != 1 {
		t.Fatalf("expected synchronous write, got %v (err=%v)", files, err)
	}
}

func TestHandleWriteFailure_SpillsAndDropsExhaustedRows(t *testing.T) {
	spool, err := queue.OpenSQLiteSpool(filepath.Join(t.TempDir(), "spool.db"), "test", time.Second)
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	defer spool.Close()

	app := &App{Config: testWriteQueueConfig(8, 8, time.Second), writeSpool: spool}
	ctx := context.Background()
	failure := errors.New("database is busy")

	req := ports.WriteRequest{Operation: ports.WriteOperationDeleteFile, ProjectKey: "test", FilePath: "gone.kt"}
	app.handleWriteFailure(ctx, nil, []ports.WriteRequest{req}, failure)
	if n, _ := spool.PendingCount(ctx); n != 1 {
		t.Fatalf("expected failed memory write to be spilled, pending=%d", n)
	}

	rows, err := spool.DequeueBatch(ctx, 8)
	if err != nil || len(rows) != 1 {
		t.Fatalf("dequeue spooled row: rows=%v err=%v", rows, err)
	}
	app.handleWriteFailure(ctx, rows, nil, failure)
	if n, _ := spool.PendingCount(ctx); n != 1 {
		t.Fatalf("first retry must keep the row, pending=%d", n)
	}

	rows[0].Attempts = 1
	app.handleWriteFailure(ctx, rows, nil, failure)
	if n, _ := spool.PendingCount(ctx); n != 0 {
		t.Fatalf("expected row dropped after max attempts, pending=%d", n)
	}
}

func newQueuedTestApp(t *testing.T, capacity int) (*App, *store.Store, *queue.SQLiteSpool) {
	t.Helper()
	st := newTestStore(t)
	spool, err := queue.OpenSQLiteSpool(filepath.Join(t.TempDir(), "spool.db"), "test", time.Second)
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	t.Cleanup(func() {
		_ = spool.Close()
		_ = st.Close()
	})
	app := &App{
		Config:     testWriteQueueConfig(capacity, 8, time.Hour),
		store:      st,
		writeQueue: queue.NewMemoryQueue(capacity),
		writeSpool: spool,
	}
	return app, st, spool
}

func replaceRequest(path, fn string) ports.WriteRequest {
	return ports.WriteRequest{Operation: ports.WriteOperationReplaceFile, FilePath: path, File: testRecord(path, fn)}
}

func assertFunctionFiles(t *testing.T, st *store.Store, fn string, want ...string) {
	t.Helper()
	files, err := st.Lookup(context.Background(), index.FunctionShortNameIndex, fn)
	if err != nil {
		t.Fatalf("lookup %s: %v", fn, err)
	}
	if len(files) != len(want) {
		t.Fatalf("lookup %s = %v, want %v", fn, files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("lookup %s = %v, want %v", fn, files, want)
		}
	}
}

func TestFlush_QueuedWriteWinsOverOlderSpilledWrite(t *testing.T) {
	app, st, spool := newQueuedTestApp(t, 1)
	ctx := context.Background()

	if err := app.enqueueWrite(replaceRequest("b.kt", "other")); err != nil {
		t.Fatalf("enqueue b.kt: %v", err)
	}
	// Queue is full, so this write overflows to the spool.
	if err := app.enqueueWrite(replaceRequest("a.kt", "oldName")); err != nil {
		t.Fatalf("enqueue old a.kt: %v", err)
	}
	if n, _ := spool.PendingCount(ctx); n != 1 {
		t.Fatalf("expected old a.kt write spooled, pending=%d", n)
	}

	batch, err := app.writeQueue.DequeueBatch(ctx, 1, 0)
	if err != nil || len(batch) != 1 {
		t.Fatalf("dequeue b.kt: batch=%v err=%v", batch, err)
	}
	if err := app.applyWriteBatch(ctx, batch); err != nil {
		t.Fatalf("apply b.kt: %v", err)
	}

	if err := app.enqueueWrite(replaceRequest("a.kt", "newName")); err != nil {
		t.Fatalf("enqueue new a.kt: %v", err)
	}
	if err := app.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	assertFunctionFiles(t, st, "newName", "a.kt")
	assertFunctionFiles(t, st, "oldName")
	if n, _ := spool.PendingCount(ctx); n != 0 {
		t.Fatalf("expected superseded spool row removed, pending=%d", n)
	}
}

func TestFlush_DiscardsSupersededRowInBackoff(t *testing.T) {
	app, st, spool := newQueuedTestApp(t, 8)
	ctx := context.Background()

	if err := spool.Enqueue(replaceRequest("a.kt", "oldName")); err != nil {
		t.Fatalf("spool old a.kt: %v", err)
	}
	rows, err := spool.DequeueBatch(ctx, 8)
	if err != nil || len(rows) != 1 {
		t.Fatalf("dequeue spooled row: rows=%v err=%v", rows, err)
	}
	if err := spool.Nack(rows, time.Now().Add(time.Hour), "database is busy"); err != nil {
		t.Fatalf("nack: %v", err)
	}

	if err := app.enqueueWrite(replaceRequest("a.kt", "newName")); err != nil {
		t.Fatalf("enqueue new a.kt: %v", err)
	}
	if err := app.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	assertFunctionFiles(t, st, "newName", "a.kt")
	if n, _ := spool.PendingCount(ctx); n != 0 {
		t.Fatalf("expected delayed stale row discarded, pending=%d", n)
	}
}

func TestFlush_SpillsMemoryWritesWhenApplyFails(t *testing.T) {
	app, _, spool := newQueuedTestApp(t, 8)
	ctx := context.Background()

	if err := app.enqueueWrite(ports.WriteRequest{Operation: ports.WriteOperationReplaceFile, FilePath: "broken.kt"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := app.Flush(ctx); err == nil {
		t.Fatal("expected Flush to report the apply failure")
	}

	if app.writeQueue.Len() != 0 {
		t.Fatalf("expected memory queue drained, len=%d", app.writeQueue.Len())
	}
	if n, _ := spool.PendingCount(ctx); n != 1 {
		t.Fatalf("expected failed memory write spilled to spool, pending=%d", n)
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := config.WriteQueue{RetryBaseDelay: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{50, time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(cfg, tc.attempts); got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}

	if got := backoffDelay(config.WriteQueue{}, 1); got != 500*time.Millisecond {
		t.Errorf("expected default base delay, got %v", got)
	}
}
