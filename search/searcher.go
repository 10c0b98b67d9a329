package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/gpthistory/core"
	"github.com/poiesic/gpthistory/storage"
)

// Searcher ranks the stored index table against queries.
type Searcher struct {
	repository storage.IndexRepository
	ranker     *Ranker
	logger     *slog.Logger
}

// NewSearcher creates a new searcher. Options configure the underlying Ranker.
func NewSearcher(repository storage.IndexRepository, embedder QueryEmbedder, opts ...Option) (*Searcher, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}

	ranker, err := NewRanker(embedder, opts...)
	if err != nil {
		return nil, err
	}

	return &Searcher{
		repository: repository,
		ranker:     ranker,
		logger:     ranker.logger,
	}, nil
}

// Ranker returns the ranker used by the searcher.
func (s *Searcher) Ranker() *Ranker {
	return s.ranker
}

// Search loads the index and returns up to topN rows scoring at or above the
// threshold, best first. Only failing to read the index is an error; ranking
// problems yield an empty result.
func (s *Searcher) Search(ctx context.Context, query string, topN int) ([]core.RankedResult, error) {
	return s.SearchWithMonitor(ctx, query, topN, nil)
}

// SearchWithMonitor is Search with monitoring.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, topN int, monitor SearchMonitor) ([]core.RankedResult, error) {
	table, err := s.repository.LoadTable(ctx)
	if err != nil {
		s.logger.Error("error loading index", "err", err)
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	s.logger.Debug("index loaded", "rows", len(table))

	return s.ranker.RankWithMonitor(ctx, table, query, topN, monitor), nil
}
