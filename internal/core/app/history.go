package app

import (
	"context"
	"log/slog"
	"time"

	"stubindex/internal/core/errors"
	"stubindex/internal/core/ports"
	"stubindex/internal/data/history"
)

func (a *App) recordRun(result ports.ScanResult, started time.Time) {
	if a.history == nil {
		return
	}
	err := a.history.Record(history.Run{
		RunID:       result.RunID,
		ProjectKey:  a.Config.DB.ProjectKey,
		StartedAt:   started.UTC(),
		Duration:    time.Since(started),
		Files:       result.Files,
		Skipped:     result.Skipped,
		Malformed:   result.Malformed,
		Occurrences: result.Occurrences,
		Warnings:    len(result.Warnings),
	})
	if err != nil {
		slog.Warn("failed to record index run", "run_id", result.RunID, "error", err)
	}
}

// RecentRuns lists up to limit recorded index runs, newest first.
func (a *App) RecentRuns(ctx context.Context, limit int) ([]history.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.history == nil {
		return nil, errors.New(errors.CodeNotSupported, "run history is disabled")
	}
	runs, err := a.history.Recent(a.Config.DB.ProjectKey, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "load run history")
	}
	return runs, nil
}
