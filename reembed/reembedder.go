// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/gpthistory/embedding"
	"github.com/poiesic/gpthistory/storage"
)

// Config holds configuration for the re-embedding operation.
type Config struct {
	// BatchSize is the number of rows read and embedded together
	BatchSize int

	// ReportInterval is how often to report progress (number of rows)
	ReportInterval int

	// Model is recorded in the index metadata once every row carries a
	// vector from it. Empty leaves the metadata alone.
	Model string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: DefaultBatchSize,
	}
}

// Result summarizes a re-embedding run.
type Result struct {
	Rows    int
	Updated int
	Kept    int
}

// Reembedder orchestrates the re-embedding of every row in the index.
type Reembedder struct {
	repo      storage.IndexRepository
	generator *embedding.Generator
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *RowIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.IndexRepository, generator *embedding.Generator, config *Config, progress io.Writer) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		repo:      repo,
		generator: generator,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, generator),
		iterator:  NewRowIterator(repo, config.BatchSize),
		logger:    slog.Default().With("component", "reembed"),
	}, nil
}

// Run re-embeds every row in the index with the generator's embedder.
// Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) (*Result, error) {
	total, err := r.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	result := &Result{Rows: total}
	if total == 0 {
		fmt.Fprintf(r.progress, "No rows found in index (0 rows)\n")
		return result, nil
	}

	fmt.Fprintf(r.progress, "Starting re-embedding of %d rows (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(rows []*storage.StoredRow) error {
		batch, err := r.processor.Process(ctx, rows)
		result.Updated += batch.Updated
		result.Kept += batch.Kept
		tracker.Add(len(rows), batch.Kept)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		return nil
	})
	tracker.Finish()
	if err != nil {
		return result, err
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Re-embedding complete. Updated %d of %d rows in %v (%.1f rows/sec)\n",
		result.Updated, total, elapsed.Round(time.Second), rate(result.Updated, elapsed))

	if result.Kept > 0 {
		r.logger.Warn("some rows kept their previous vector, run reembed again to retry them", "rows", result.Kept)
		return result, nil
	}

	if r.config.Model != "" {
		meta := &storage.IndexMetadata{Model: r.config.Model, Dimensions: r.generator.Dimensions()}
		if err := r.repo.SaveMetadata(ctx, meta); err != nil {
			return result, fmt.Errorf("failed to save index metadata: %w", err)
		}
	}

	return result, nil
}
