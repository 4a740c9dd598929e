package search

import (
	"context"

	"go.uber.org/zap"

	"screenplay/api/internal/logger"
	"screenplay/api/internal/screenplay"
)

// Index is a search backend that can also be written to.
type Index interface {
	Searcher
	IndexScript(record Record) error
	DeleteScript(id string) error
	IndexScripts(records []Record) error
}

// Service tries the index first and falls back to scanning the store.
type Service struct {
	index    Index
	fallback Searcher
	logger   *zap.Logger
}

// NewService creates a search service. index may be nil if Meilisearch is
// not configured.
func NewService(index Index, fallback Searcher, log *zap.Logger) *Service {
	return &Service{index: index, fallback: fallback, logger: logger.OrNop(log).Named("search")}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// IndexHealthy reports whether searches currently go to the index.
func (s *Service) IndexHealthy() bool {
	return s.indexReady()
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("index search failed, falling back to scan", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Warn("scan search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexScript pushes a script to the index without waiting for it.
func (s *Service) IndexScript(_ context.Context, script screenplay.Script) error {
	if !s.indexReady() {
		return nil
	}
	record := RecordFor(script)
	go func() {
		if err := s.index.IndexScript(record); err != nil {
			s.logger.Warn("index script", zap.String("script_id", record.ID), zap.Error(err))
		}
	}()
	return nil
}

// RemoveScript deletes a script from the index without waiting for it.
func (s *Service) RemoveScript(_ context.Context, scriptID string) error {
	if !s.indexReady() {
		return nil
	}
	go func() {
		if err := s.index.DeleteScript(scriptID); err != nil {
			s.logger.Warn("delete script from index", zap.String("script_id", scriptID), zap.Error(err))
		}
	}()
	return nil
}

// ReindexAll pushes every script to the index. A no-op while the index is
// unhealthy.
func (s *Service) ReindexAll(scripts []screenplay.Script) {
	if !s.indexReady() || len(scripts) == 0 {
		return
	}
	records := make([]Record, len(scripts))
	for i, script := range scripts {
		records[i] = RecordFor(script)
	}
	if err := s.index.IndexScripts(records); err != nil {
		s.logger.Warn("reindex scripts", zap.Int("count", len(records)), zap.Error(err))
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
