package app

import (
	"context"
	"fmt"
	"time"

	"stubindex/internal/shared/util"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports the state of the store and the write pipeline.
func (a *App) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	switch {
	case a.store == nil:
		status.Status = "down"
		status.Components["store"] = "closed"
	default:
		if p, ok := a.store.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				status.Status = "down"
				status.Components["store"] = "error: " + err.Error()
				break
			}
		}
		if stats, err := a.store.Stats(ctx); err == nil {
			status.Components["store"] = fmt.Sprintf("ok (%d files, %d occurrences, %d names)", stats.Files, stats.Occurrences, stats.Names)
		} else {
			status.Status = "degraded"
			status.Components["store"] = "stats unavailable: " + err.Error()
		}
	}

	if a.writeQueue != nil {
		status.Components["write_queue"] = fmt.Sprintf("ok (%d pending)", a.writeQueue.Len())
	} else {
		status.Components["write_queue"] = "disabled"
	}
	if a.writeSpool != nil {
		if n, err := a.writeSpool.PendingCount(ctx); err == nil {
			status.Components["write_spool"] = fmt.Sprintf("ok (%d pending)", n)
		} else {
			status.Status = "degraded"
			status.Components["write_spool"] = "error: " + err.Error()
		}
	}
	status.Components["heap"] = fmt.Sprintf("%d MB", util.HeapAllocMB())
	return status
}
