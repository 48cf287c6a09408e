package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stubindex/internal/core/ports"
	"stubindex/internal/engine/index"
	"stubindex/internal/engine/stub"
)

func TestSQLiteSpool_PersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spool.db")

	spool, err := OpenSQLiteSpool(path, "project-a", time.Second)
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	if err := spool.Enqueue(ports.WriteRequest{Operation: ports.WriteOperationDeleteFile, FilePath: "one.kt"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := spool.Close(); err != nil {
		t.Fatalf("close spool: %v", err)
	}

	spool, err = OpenSQLiteSpool(path, "project-a", time.Second)
	if err != nil {
		t.Fatalf("reopen spool: %v", err)
	}
	defer spool.Close()

	rows, err := spool.DequeueBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Request.FilePath != "one.kt" {
		t.Fatalf("expected file path one.go, got %q", rows[0].Request.FilePath)
	}
}

func TestSQLiteSpool_AckDeletesRows(t *testing.T) {
	spool := newTestSpool(t)
	defer spool.Close()
	if err := spool.Enqueue(ports.WriteRequest{Operation: ports.WriteOperationDeleteFile, FilePath: "one.kt"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rows, err := spool.DequeueBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if err := spool.Ack([]int64{rows[0].ID}); err != nil {
		t.Fatalf("ack: %v", err)
	}
	count, err := spool.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected pending count 0, got %d", count)
	}
}

func TestSQLiteSpool_NackSchedulesRetry(t *testing.T) {
	spool := newTestSpool(t)
	defer spool.Close()

	if err := spool.Enqueue(ports.WriteRequest{Operation: ports.WriteOperationDeleteFile, FilePath: "one.kt"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rows, err := spool.DequeueBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	next := time.Now().Add(150 * time.Millisecond)
	if err := spool.Nack(rows, next, "busy"); err != nil {
		t.Fatalf("nack: %v", err)
	}

	rows, err = spool.DequeueBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dequeue after nack: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no immediately retryable rows, got %d", len(rows))
	}

	time.Sleep(180 * time.Millisecond)
	rows, err = spool.DequeueBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dequeue after retry window: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after retry window, got %d", len(rows))
	}
	if rows[0].Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", rows[0].Attempts)
	}
}

func newTestSpool(t *testing.T) *SQLiteSpool {
	t.Helper()
	dir := t.TempDir()
	spool, err := OpenSQLiteSpool(filepath.Join(dir, "spool.db"), "project-a", time.Second)
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	return spool
}

func TestSQLiteSpool_CarriesFileRecords(t *testing.T) {
	spool := newTestSpool(t)
	defer spool.Close()

	rec := &ports.FileRecord{
		Path:        "Foo.kt",
		ContentHash: "abc",
		Header:      stub.FileHeader{PackageFqName: "com.example", FacadeFqName: stub.Ref("com.example.FooKt")},
		Occurrences: []index.Occurrence{{Index: index.ClassShortNameIndex, Key: "Foo"}},
	}
	if err := spool.Enqueue(ports.WriteRequest{Operation: ports.WriteOperationReplaceFile, FilePath: rec.Path, File: rec}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rows, err := spool.DequeueBatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rows) != 1 || rows[0].Request.File == nil {
		t.Fatalf("expected one row with a file record, got %#v", rows)
	}
	got := rows[0].Request
	if got.ProjectKey != "project-a" {
		t.Fatalf("expected project key to be filled in, got %q", got.ProjectKey)
	}
	if !got.File.Header.Equal(rec.Header) {
		t.Fatalf("header mismatch: %+v", got.File.Header)
	}
	if len(got.File.Occurrences) != 1 || got.File.Occurrences[0] != rec.Occurrences[0] {
		t.Fatalf("occurrence mismatch: %#v", got.File.Occurrences)
	}
}

func TestSQLiteSpool_DropExhausted(t *testing.T) {
	spool := newTestSpool(t)
	defer spool.Close()
	ctx := context.Background()

	if err := spool.Enqueue(ports.WriteRequest{Operation: ports.WriteOperationDeleteFile, FilePath: "one.kt"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rows, err := spool.DequeueBatch(ctx, 1)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	rows[0].Attempts = 2
	if err := spool.Nack(rows, time.Now(), "locked"); err != nil {
		t.Fatalf("nack: %v", err)
	}

	dropped, err := spool.DropExhausted(ctx, 3)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("expected 1 dropped row, got %d", dropped)
	}
	count, err := spool.PendingCount(ctx)
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty spool, got %d", count)
	}
}

func TestSQLiteSpool_EnqueueReplacesOlderFileWrite(t *testing.T) {
	spool := newTestSpool(t)
	defer spool.Close()
	ctx := context.Background()

	reqs := []ports.WriteRequest{
		{Operation: ports.WriteOperationReplaceFile, FilePath: "a.kt", File: &ports.FileRecord{Path: "a.kt", ContentHash: "old"}},
		{Operation: ports.WriteOperationPruneToPaths, Paths: []string{"a.kt"}},
		{Operation: ports.WriteOperationPruneToPaths, Paths: []string{"a.kt", "b.kt"}},
		{Operation: ports.WriteOperationReplaceFile, FilePath: "a.kt", File: &ports.FileRecord{Path: "a.kt", ContentHash: "new"}},
	}
	for _, req := range reqs {
		if err := spool.Enqueue(req); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	rows, err := spool.DequeueBatch(ctx, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected the older a.kt write to be replaced, got %d rows", len(rows))
	}
	last := rows[2].Request
	if last.File == nil || last.File.ContentHash != "new" {
		t.Fatalf("expected newest a.kt write last, got %#v", last)
	}
}

func TestSQLiteSpool_DiscardSupersededKeepsNewerRows(t *testing.T) {
	spool := newTestSpool(t)
	defer spool.Close()
	ctx := context.Background()

	for _, path := range []string{"a.kt", "b.kt"} {
		if err := spool.Enqueue(ports.WriteRequest{Operation: ports.WriteOperationDeleteFile, FilePath: path}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	highWater, err := spool.HighWater(ctx)
	if err != nil {
		t.Fatalf("high water: %v", err)
	}
	if err := spool.Enqueue(ports.WriteRequest{Operation: ports.WriteOperationDeleteFile, FilePath: "c.kt"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	removed, err := spool.DiscardSuperseded(ctx, []string{"a.kt", "c.kt"}, highWater)
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only a.kt discarded, removed %d", removed)
	}

	rows, err := spool.DequeueBatch(ctx, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rows) != 2 || rows[0].Request.FilePath != "b.kt" || rows[1].Request.FilePath != "c.kt" {
		t.Fatalf("unexpected remaining rows: %#v", rows)
	}
}

func TestSQLiteSpool_HighWaterOfEmptySpool(t *testing.T) {
	spool := newTestSpool(t)
	defer spool.Close()

	highWater, err := spool.HighWater(context.Background())
	if err != nil {
		t.Fatalf("high water: %v", err)
	}
	if highWater != 0 {
		t.Fatalf("expected 0, got %d", highWater)
	}
}
