package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/gpthistory/core"
)

// AppendByChat appends rows in transactions of at most batchSize rows.
// Consecutive rows of one chat id share a transaction; a run is only split
// when it alone holds more than batchSize rows. When an append fails, rows
// this call already stored for the chat ids in the failed transaction are
// deleted again, so no conversation is left partly indexed and the next
// run picks it up in full. It returns the number of rows left stored.
func AppendByChat(ctx context.Context, repo IndexRepository, rows []*core.IndexRow, batchSize int) (int, error) {
	if batchSize < 1 {
		return 0, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidQuery, batchSize)
	}

	stored := 0
	storedByChat := make(map[string]int)
	for _, batch := range chatBatches(rows, batchSize) {
		added, err := repo.AppendRows(ctx, batch...)
		if err == nil {
			for _, sr := range added {
				storedByChat[sr.Row.ChatID]++
			}
			stored += len(added)
			continue
		}

		var partial []string
		seen := make(map[string]struct{})
		for _, row := range batch {
			if _, ok := seen[row.ChatID]; ok || storedByChat[row.ChatID] == 0 {
				continue
			}
			seen[row.ChatID] = struct{}{}
			partial = append(partial, row.ChatID)
		}
		if len(partial) == 0 {
			return stored, err
		}

		// The caller's context may be the reason for the failure.
		removed, delErr := repo.DeleteChats(context.WithoutCancel(ctx), partial...)
		if delErr != nil {
			return stored, errors.Join(err, fmt.Errorf("failed to remove partly stored chats: %w", delErr))
		}
		return max(stored-removed, 0), err
	}
	return stored, nil
}

// chatBatches packs runs of same-chat rows into batches of at most size
// rows, splitting only runs longer than size.
func chatBatches(rows []*core.IndexRow, size int) [][]*core.IndexRow {
	var batches [][]*core.IndexRow
	var current []*core.IndexRow

	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].ChatID == rows[start].ChatID {
			end++
		}
		run := rows[start:end]
		start = end

		if len(current) > 0 && len(current)+len(run) > size {
			batches = append(batches, current)
			current = nil
		}
		for len(run) > size {
			batches = append(batches, run[:size])
			run = run[size:]
		}
		current = append(current, run...)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
