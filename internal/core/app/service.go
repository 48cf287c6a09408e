package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stubindex/internal/core/ports"
	"stubindex/internal/engine/index"
	"stubindex/internal/engine/stub"
	"stubindex/internal/shared/observability"
)

type indexService struct {
	app *App
}

var _ ports.IndexService = (*indexService)(nil)

func NewIndexService(app *App) ports.IndexService {
	return &indexService{app: app}
}

func (a *App) IndexService() ports.IndexService {
	return NewIndexService(a)
}

func (s *indexService) Unwrap() *App {
	return s.app
}

func (s *indexService) IndexPaths(ctx context.Context, req ports.ScanRequest) (ports.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.ScanResult{}, err
	}
	if s.app == nil {
		return ports.ScanResult{}, fmt.Errorf("app is required")
	}
	return s.app.IndexPaths(ctx, req)
}

func (s *indexService) HandleChanges(ctx context.Context, paths []string) error {
	if s.app == nil {
		return fmt.Errorf("app is required")
	}
	return s.app.HandleChanges(ctx, paths)
}

func (s *indexService) Lookup(ctx context.Context, id index.ID, key string) ([]string, error) {
	ctx, span := observability.Tracer.Start(ctx, "indexService.Lookup", trace.WithAttributes(
		attribute.String("index", id.String()),
		attribute.String("key", key),
	))
	defer span.End()
	if s.app == nil {
		return nil, fmt.Errorf("app is required")
	}
	files, err := s.app.Lookup(ctx, id, key)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("files", len(files)))
	return files, nil
}

func (s *indexService) Keys(ctx context.Context, id index.ID, prefix string, limit int) ([]string, error) {
	ctx, span := observability.Tracer.Start(ctx, "indexService.Keys", trace.WithAttributes(
		attribute.String("index", id.String()),
		attribute.String("prefix", prefix),
	))
	defer span.End()
	if s.app == nil {
		return nil, fmt.Errorf("app is required")
	}
	keys, err := s.app.Keys(ctx, id, prefix, limit)
	if err != nil {
		span.RecordError(err)
	}
	return keys, err
}

func (s *indexService) Summary(ctx context.Context, path string) (stub.FileHeader, error) {
	ctx, span := observability.Tracer.Start(ctx, "indexService.Summary", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()
	if s.app == nil {
		return stub.FileHeader{}, fmt.Errorf("app is required")
	}
	header, err := s.app.Summary(ctx, path)
	if err != nil {
		span.RecordError(err)
	}
	return header, err
}

func (s *indexService) Dump(path string) ([]index.Occurrence, error) {
	if s.app == nil {
		return nil, fmt.Errorf("app is required")
	}
	return s.app.Dump(path)
}
