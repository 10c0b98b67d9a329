package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/gpthistory/core"
	"github.com/poiesic/gpthistory/storage"
)

// IndexRepository implements storage.IndexRepository for BadgerDB.
type IndexRepository struct {
	backend     *Backend
	seq         *badger.Sequence
	dimensions  int
	ownsBackend bool
	closed      atomic.Bool
}

var _ storage.IndexRepository = (*IndexRepository)(nil)

// Option configures an IndexRepository.
type Option func(*IndexRepository)

// WithDimensions sets the embedding length rows must have to be stored.
func WithDimensions(dim int) Option {
	return func(r *IndexRepository) {
		r.dimensions = dim
	}
}

// NewIndexRepository creates a new IndexRepository on an open backend.
// The caller remains responsible for closing the backend.
func NewIndexRepository(backend *Backend, opts ...Option) (*IndexRepository, error) {
	seq, err := backend.GetSequence(rowSeqKey)
	if err != nil {
		return nil, err
	}

	r := &IndexRepository{
		backend:    backend,
		seq:        seq,
		dimensions: core.EmbeddingDimensions,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Open opens (or creates) an index stored at path.
// Closing the returned repository also closes the database.
func Open(path string, opts ...Option) (storage.IndexRepository, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}

	repo, err := NewIndexRepository(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	repo.ownsBackend = true
	return repo, nil
}

// Close releases the row sequence, and the database when the repository owns it.
// Calls after the first are no-ops.
func (r *IndexRepository) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := r.seq.Release(); err != nil {
		errs = append(errs, err)
	}
	if r.ownsBackend {
		if err := r.backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *IndexRepository) checkOpen(ctx context.Context) error {
	if r.closed.Load() || r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return ctx.Err()
}

// nextSeq returns the next row sequence number, never 0.
func (r *IndexRepository) nextSeq() (uint64, error) {
	next, err := r.seq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if next == 0 {
		return r.seq.Next()
	}
	return next, nil
}

// AppendRows validates and appends rows to the end of the table.
func (r *IndexRepository) AppendRows(ctx context.Context, rows ...*core.IndexRow) ([]*storage.StoredRow, error) {
	if err := r.checkOpen(ctx); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := core.ValidateIndexRow(row, r.dimensions); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}

	stored := make([]*storage.StoredRow, 0, len(rows))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, row := range rows {
			seq, err := r.nextSeq()
			if err != nil {
				return err
			}

			if err := tx.Set(makeRowKey(seq), storage.MarshalIndexRow(row)); err != nil {
				return err
			}
			if err := tx.Set(makeChatIndexKey(row.ChatID, seq), []byte(row.ChatID)); err != nil {
				return err
			}
			stored = append(stored, &storage.StoredRow{Seq: seq, Row: *row})
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// GetRows returns up to limit rows with Seq > afterSeq, in insertion order.
func (r *IndexRepository) GetRows(ctx context.Context, afterSeq uint64, limit int) ([]*storage.StoredRow, error) {
	if err := r.checkOpen(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidQuery, limit)
	}
	if afterSeq == math.MaxUint64 {
		return nil, nil
	}

	var results []*storage.StoredRow
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(rowPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeRowKey(afterSeq + 1)); iter.Valid() && len(results) < limit; iter.Next() {
			item := iter.Item()
			seq := seqFromRowKey(item.Key())
			row, err := decodeItem(item)
			if err != nil {
				return fmt.Errorf("row %d: %w", seq, err)
			}
			results = append(results, &storage.StoredRow{Seq: seq, Row: *row})
		}
		return nil
	}, false)

	return results, err
}

// UpdateEmbeddings replaces the embeddings of existing rows.
// Only Embeddings is written; chat id and text stay as stored.
func (r *IndexRepository) UpdateEmbeddings(ctx context.Context, rows ...*storage.StoredRow) error {
	if err := r.checkOpen(ctx); err != nil {
		return err
	}
	for _, sr := range rows {
		if err := core.ValidateDimensions(sr.Row.Embeddings, r.dimensions); err != nil {
			return fmt.Errorf("row %d: %w", sr.Seq, err)
		}
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, sr := range rows {
			old, err := readRow(tx, sr.Seq)
			if err != nil {
				return err
			}
			if old == nil {
				return fmt.Errorf("row %d: %w", sr.Seq, storage.ErrNotFound)
			}

			old.Embeddings = sr.Row.Embeddings
			if err := tx.Set(makeRowKey(sr.Seq), storage.MarshalIndexRow(old)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// LoadTable returns the whole table in insertion order.
func (r *IndexRepository) LoadTable(ctx context.Context) (core.IndexTable, error) {
	if err := r.checkOpen(ctx); err != nil {
		return nil, err
	}

	table := core.IndexTable{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(rowPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			row, err := decodeItem(iter.Item())
			if err != nil {
				return fmt.Errorf("row %d: %w", seqFromRowKey(iter.Item().Key()), err)
			}
			table = append(table, *row)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	return table, nil
}

// ChatIDs returns the set of distinct chat ids present in the table.
func (r *IndexRepository) ChatIDs(ctx context.Context) (map[string]struct{}, error) {
	if err := r.checkOpen(ctx); err != nil {
		return nil, err
	}

	ids := make(map[string]struct{})
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chatIndexPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := iter.Item().Value(func(val []byte) error {
				ids[string(val)] = struct{}{}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// DeleteChats removes every row belonging to the given chat ids, together
// with their chat index entries, in one transaction.
func (r *IndexRepository) DeleteChats(ctx context.Context, chatIDs ...string) (int, error) {
	if err := r.checkOpen(ctx); err != nil {
		return 0, err
	}

	deleted := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var keys [][]byte
		for _, chatID := range chatIDs {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = makePartialChatIndexKey(chatID)
			iter := tx.NewIterator(opts)

			// Hashes can collide; the value holds the real chat id.
			want := []byte(chatID)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				item := iter.Item()
				match := false
				if err := item.Value(func(val []byte) error {
					match = bytes.Equal(val, want)
					return nil
				}); err != nil {
					iter.Close()
					return err
				}
				if match {
					key := item.KeyCopy(nil)
					keys = append(keys, key, makeRowKey(seqFromChatIndexKey(key)))
				}
			}
			iter.Close()
		}

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		deleted = len(keys) / 2
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Count returns the number of rows in the table.
func (r *IndexRepository) Count(ctx context.Context) (int, error) {
	if err := r.checkOpen(ctx); err != nil {
		return 0, err
	}

	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(rowPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)

	return count, err
}

// ReplaceTable removes every row and stores table in its place.
// Large tables are written through a write batch, so a failure part way
// leaves a partial table behind.
func (r *IndexRepository) ReplaceTable(ctx context.Context, table core.IndexTable) error {
	if err := r.checkOpen(ctx); err != nil {
		return err
	}
	for i := range table {
		if err := core.ValidateIndexRow(&table[i], r.dimensions); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}

	wb := r.backend.NewWriteBatch()
	defer wb.Cancel()

	if err := r.backend.DeletePrefix(wb, rowPrefix, chatIndexPrefix); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}

	for i := range table {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := &table[i]
		seq, err := r.nextSeq()
		if err != nil {
			return err
		}
		if err := wb.Set(makeRowKey(seq), storage.MarshalIndexRow(row)); err != nil {
			return err
		}
		if err := wb.Set(makeChatIndexKey(row.ChatID, seq), []byte(row.ChatID)); err != nil {
			return err
		}
	}

	return wb.Flush()
}

// SaveMetadata persists the index metadata.
func (r *IndexRepository) SaveMetadata(ctx context.Context, meta *storage.IndexMetadata) error {
	if err := r.checkOpen(ctx); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		meta.UpdatedAt = time.Now().UTC()
		if err := tx.Set([]byte(metadataKey), storage.MarshalMetadata(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadMetadata retrieves the index metadata.
// Returns nil, nil if no metadata exists.
func (r *IndexRepository) LoadMetadata(ctx context.Context) (*storage.IndexMetadata, error) {
	if err := r.checkOpen(ctx); err != nil {
		return nil, err
	}

	var meta *storage.IndexMetadata
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(metadataKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			meta, unmarshalErr = storage.UnmarshalMetadata(val)
			return unmarshalErr
		})
	}, false)

	return meta, err
}

// readRow loads a row by sequence number. Returns nil, nil if absent.
func readRow(tx *badger.Txn, seq uint64) (*core.IndexRow, error) {
	item, err := tx.Get(makeRowKey(seq))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeItem(item)
}

func decodeItem(item *badger.Item) (*core.IndexRow, error) {
	var row *core.IndexRow
	err := item.Value(func(val []byte) error {
		var err error
		row, err = storage.UnmarshalIndexRow(val)
		return err
	})
	return row, err
}
