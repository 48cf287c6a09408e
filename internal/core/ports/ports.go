package ports

import (
	"context"
	"time"

	"stubindex/internal/engine/index"
	"stubindex/internal/engine/stub"
)

// StubLoader turns one source file into a stub tree.
type StubLoader interface {
	Load(path string, content []byte) (*stub.Tree, error)
	// Extensions lists the lower-cased file suffixes the loader accepts.
	Extensions() []string
}

// FileRecord is the indexed state of one file: the header persisted as a
// summary plus every occurrence emitted for it.
type FileRecord struct {
	Path        string             `json:"path"`
	ContentHash string             `json:"content_hash"`
	Header      stub.FileHeader    `json:"header"`
	Occurrences []index.Occurrence `json:"occurrences"`
}

// OccurrenceBatch groups writes into one transaction.
type OccurrenceBatch interface {
	ReplaceFile(rec FileRecord) error
	DeleteFile(path string) error
	PruneToPaths(paths []string) error
	Commit() error
	Rollback() error
}

// StoreStats summarizes the persisted index of one project.
type StoreStats struct {
	Files       int `json:"files"`
	Occurrences int `json:"occurrences"`
	Names       int `json:"names"`
}

// OccurrenceStore persists occurrences and file summaries.
type OccurrenceStore interface {
	BeginBatch(ctx context.Context) (OccurrenceBatch, error)
	ReplaceFile(ctx context.Context, rec FileRecord) error
	DeleteFile(ctx context.Context, path string) error
	PruneToPaths(ctx context.Context, paths []string) error
	Lookup(ctx context.Context, id index.ID, key string) ([]string, error)
	Keys(ctx context.Context, id index.ID, prefix string, limit int) ([]string, error)
	LoadSummary(ctx context.Context, path string) (stub.FileHeader, error)
	ContentHash(ctx context.Context, path string) (string, bool, error)
	Stats(ctx context.Context) (StoreStats, error)
	Close() error
}

// ScanRequest defines an index run for driving adapters.
type ScanRequest struct {
	Paths []string
}

// ScanResult summarizes a completed index run.
type ScanResult struct {
	RunID       string
	Files       int
	Skipped     int
	Malformed   int
	Occurrences int
	Warnings    []string
}

// IndexService is the driving port used by the CLI.
type IndexService interface {
	IndexPaths(ctx context.Context, req ScanRequest) (ScanResult, error)
	HandleChanges(ctx context.Context, paths []string) error
	Lookup(ctx context.Context, id index.ID, key string) ([]string, error)
	Keys(ctx context.Context, id index.ID, prefix string, limit int) ([]string, error)
	Summary(ctx context.Context, path string) (stub.FileHeader, error)
	Dump(path string) ([]index.Occurrence, error)
}

type WriteOperation string

const (
	WriteOperationReplaceFile  WriteOperation = "replace_file"
	WriteOperationDeleteFile   WriteOperation = "delete_file"
	WriteOperationPruneToPaths WriteOperation = "prune_to_paths"
)

// WriteRequest is one store mutation routed through the write queue.
type WriteRequest struct {
	Operation  WriteOperation `json:"operation"`
	ProjectKey string         `json:"project_key,omitempty"`
	FilePath   string         `json:"file_path,omitempty"`
	File       *FileRecord    `json:"file,omitempty"`
	Paths      []string       `json:"paths,omitempty"`
}

type EnqueueResult string

const (
	EnqueueAccepted EnqueueResult = "accepted"
	EnqueueDropped  EnqueueResult = "dropped"
)

// WriteQueuePort is the bounded in-memory write buffer.
type WriteQueuePort interface {
	Enqueue(req WriteRequest) EnqueueResult
	DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]WriteRequest, error)
	Close() error
	Len() int
}

// SpoolRow is a persisted write awaiting (re)application.
type SpoolRow struct {
	ID       int64
	Request  WriteRequest
	Attempts int
}

// WriteSpoolPort persists writes that overflowed the queue or failed to apply.
type WriteSpoolPort interface {
	Enqueue(req WriteRequest) error
	DequeueBatch(ctx context.Context, maxItems int) ([]SpoolRow, error)
	Ack(ids []int64) error
	Nack(rows []SpoolRow, nextAttemptAt time.Time, lastErr string) error
	PendingCount(ctx context.Context) (int, error)
	// HighWater is the id of the newest spooled row, zero when empty.
	HighWater(ctx context.Context) (int64, error)
	// DiscardSuperseded deletes file writes for paths with an id up to upTo.
	DiscardSuperseded(ctx context.Context, paths []string, upTo int64) (int, error)
	Close() error
}
