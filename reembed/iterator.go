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

	"github.com/poiesic/gpthistory/storage"
)

const (
	// DefaultBatchSize is the default number of rows to fetch in each batch
	DefaultBatchSize = 100
)

// RowIterator pages through every row of the index in insertion order.
type RowIterator struct {
	repo      storage.IndexRepository
	batchSize int
}

// NewRowIterator creates a new row iterator.
// batchSize: number of rows to fetch in each batch (DefaultBatchSize if <= 0)
func NewRowIterator(repo storage.IndexRepository, batchSize int) *RowIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RowIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each page of rows.
// Iteration stops on first error from fn or when all rows are visited.
// Context cancellation is checked between batches.
func (it *RowIterator) ForEach(ctx context.Context, fn func([]*storage.StoredRow) error) error {
	var after uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rows, err := it.repo.GetRows(ctx, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		if err := fn(rows); err != nil {
			return err
		}

		// A short page is the last one.
		if len(rows) < it.batchSize {
			return nil
		}
		after = rows[len(rows)-1].Seq
	}
}
