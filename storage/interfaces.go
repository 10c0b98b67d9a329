package storage

import (
	"context"
	"time"

	"github.com/poiesic/gpthistory/core"
)

// StoredRow is an index row together with its position in the store.
// Seq is assigned on append and increases with insertion order.
type StoredRow struct {
	Seq uint64
	Row core.IndexRow
}

// IndexMetadata records which embedding model produced the stored vectors.
type IndexMetadata struct {
	Model      string
	Dimensions int
	UpdatedAt  time.Time
}

// IndexRepository persists the chat index table.
// Implementations must be thread-safe and support concurrent access.
type IndexRepository interface {
	// AppendRows validates and appends rows to the end of the table.
	// Either every row is stored or none is.
	// Returns the stored rows with their assigned sequence numbers.
	AppendRows(ctx context.Context, rows ...*core.IndexRow) ([]*StoredRow, error)

	// GetRows returns up to limit rows with Seq > afterSeq, in insertion order.
	// Pass afterSeq 0 to start from the beginning.
	GetRows(ctx context.Context, afterSeq uint64, limit int) ([]*StoredRow, error)

	// UpdateEmbeddings replaces the embeddings of existing rows.
	// Returns ErrNotFound if any row doesn't exist.
	UpdateEmbeddings(ctx context.Context, rows ...*StoredRow) error

	// LoadTable returns the whole table in insertion order.
	LoadTable(ctx context.Context) (core.IndexTable, error)

	// ChatIDs returns the set of distinct chat ids present in the table.
	ChatIDs(ctx context.Context) (map[string]struct{}, error)

	// DeleteChats removes every row belonging to the given chat ids and
	// returns the number of rows removed.
	DeleteChats(ctx context.Context, chatIDs ...string) (int, error)

	// Count returns the number of rows in the table.
	Count(ctx context.Context) (int, error)

	// ReplaceTable removes every row and stores table in its place.
	ReplaceTable(ctx context.Context, table core.IndexTable) error

	// SaveMetadata persists the index metadata, stamping UpdatedAt.
	SaveMetadata(ctx context.Context, meta *IndexMetadata) error

	// LoadMetadata retrieves the index metadata.
	// Returns nil, nil if none has been saved.
	LoadMetadata(ctx context.Context) (*IndexMetadata, error)

	// Close releases resources held by the repository.
	Close() error
}
