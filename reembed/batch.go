package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/gpthistory/embedding"
	"github.com/poiesic/gpthistory/storage"
)

// BatchResult counts the outcome of one processed batch.
type BatchResult struct {
	// Updated is the number of rows that received a new vector.
	Updated int
	// Kept is the number of rows left with their previous vector because
	// their embedding batch failed.
	Kept int
}

// BatchProcessor re-embeds batches of stored rows and writes the new
// vectors back.
type BatchProcessor struct {
	repo      storage.IndexRepository
	generator *embedding.Generator
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(repo storage.IndexRepository, generator *embedding.Generator) *BatchProcessor {
	return &BatchProcessor{
		repo:      repo,
		generator: generator,
	}
}

// Process generates embeddings for rows and updates them in the index.
// Embedding failures are not errors; only a failed store update is.
func (bp *BatchProcessor) Process(ctx context.Context, rows []*storage.StoredRow) (BatchResult, error) {
	var result BatchResult
	if len(rows) == 0 {
		return result, nil
	}

	texts := make([]string, len(rows))
	for i, row := range rows {
		texts[i] = row.Row.Text
	}

	vectors, report := bp.generator.GenerateEmbeddingsReport(ctx, texts)

	updates := make([]*storage.StoredRow, 0, len(rows))
	for i, row := range rows {
		if report.ChunkFailed(i) {
			result.Kept++
			continue
		}
		updated := *row
		updated.Row.Embeddings = vectors[i]
		updates = append(updates, &updated)
	}

	if len(updates) > 0 {
		if err := bp.repo.UpdateEmbeddings(ctx, updates...); err != nil {
			return result, fmt.Errorf("failed to update rows: %w", err)
		}
	}
	result.Updated = len(updates)

	return result, nil
}
