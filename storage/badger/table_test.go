package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/poiesic/gpthistory/core"
	"github.com/poiesic/gpthistory/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) storage.IndexRepository {
	t.Helper()
	repo, err := NewMemoryRepository(WithDimensions(3))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func row(chatID, text string, v ...float32) *core.IndexRow {
	return &core.IndexRow{ChatID: chatID, Text: text, Embeddings: core.Vector(v)}
}

func TestAppendAndLoadTable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	empty, err := repo.LoadTable(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	stored, err := repo.AppendRows(ctx,
		row("c1", "first", 1, 0, 0),
		row("c2", "second", 0, 1, 0),
	)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Greater(t, stored[0].Seq, uint64(0))
	assert.Greater(t, stored[1].Seq, stored[0].Seq)

	_, err = repo.AppendRows(ctx, row("c1", "third", 0, 0, 1))
	require.NoError(t, err)

	table, err := repo.LoadTable(ctx)
	require.NoError(t, err)
	require.Len(t, table, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{table[0].Text, table[1].Text, table[2].Text})
	assert.Equal(t, core.Vector{0, 0, 1}, table[2].Embeddings)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestAppendRows_ValidatesAllBeforeWriting(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AppendRows(ctx,
		row("c1", "ok", 1, 2, 3),
		row("c2", "too short", 1, 2),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidIndexRow)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = repo.AppendRows(ctx, row("", "no chat", 1, 2, 3))
	assert.ErrorIs(t, err, core.ErrEmptyChatID)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChatIDIndex(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AppendRows(ctx,
		row("alpha", "a1", 1, 0, 0),
		row("alpha", "a2", 1, 0, 0),
		row("beta", "b1", 0, 1, 0),
	)
	require.NoError(t, err)

	ids, err := repo.ChatIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"alpha": {}, "beta": {}}, ids)

	assert.NotContains(t, ids, "gamma")
}

func TestDeleteChats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AppendRows(ctx,
		row("alpha", "a1", 1, 0, 0),
		row("beta", "b1", 0, 1, 0),
		row("alpha", "a2", 1, 0, 0),
		row("gamma", "g1", 0, 0, 1),
	)
	require.NoError(t, err)

	removed, err := repo.DeleteChats(ctx, "alpha", "gamma", "missing")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	table, err := repo.LoadTable(ctx)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, "b1", table[0].Text)

	ids, err := repo.ChatIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"beta": {}}, ids)

	removed, err = repo.DeleteChats(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestGetRowsPaging(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := repo.AppendRows(ctx, row("c", fmt.Sprintf("t%d", i), float32(i), 0, 0))
		require.NoError(t, err)
	}

	var texts []string
	var after uint64
	pages := 0
	for {
		page, err := repo.GetRows(ctx, after, 3)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		pages++
		for _, sr := range page {
			texts = append(texts, sr.Row.Text)
		}
		after = page[len(page)-1].Seq
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6"}, texts)

	_, err := repo.GetRows(ctx, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestUpdateEmbeddings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	stored, err := repo.AppendRows(ctx, row("c1", "keep me", 1, 0, 0))
	require.NoError(t, err)

	update := &storage.StoredRow{
		Seq: stored[0].Seq,
		Row: core.IndexRow{ChatID: "ignored", Text: "ignored", Embeddings: core.Vector{0, 0, 1}},
	}
	require.NoError(t, repo.UpdateEmbeddings(ctx, update))

	page, err := repo.GetRows(ctx, stored[0].Seq-1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	got := page[0]
	assert.Equal(t, stored[0].Seq, got.Seq)
	assert.Equal(t, "c1", got.Row.ChatID)
	assert.Equal(t, "keep me", got.Row.Text)
	assert.Equal(t, core.Vector{0, 0, 1}, got.Row.Embeddings)

	err = repo.UpdateEmbeddings(ctx, &storage.StoredRow{Seq: 9999, Row: core.IndexRow{Embeddings: core.Vector{1, 1, 1}}})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = repo.UpdateEmbeddings(ctx, &storage.StoredRow{Seq: stored[0].Seq, Row: core.IndexRow{Embeddings: core.Vector{1}}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestReplaceTable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AppendRows(ctx, row("old", "old row", 1, 1, 1))
	require.NoError(t, err)

	replacement := core.IndexTable{
		*row("n1", "new one", 1, 0, 0),
		*row("n2", "new two", 0, 1, 0),
	}
	require.NoError(t, repo.ReplaceTable(ctx, replacement))

	table, err := repo.LoadTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, replacement, table)

	ids, err := repo.ChatIDs(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, "old")

	err = repo.ReplaceTable(ctx, core.IndexTable{*row("bad", "x", 1)})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	// Failed validation leaves the previous table alone.
	table, err = repo.LoadTable(ctx)
	require.NoError(t, err)
	assert.Len(t, table, 2)
}

func TestMetadata(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	meta, err := repo.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Nil(t, meta)

	require.NoError(t, repo.SaveMetadata(ctx, &storage.IndexMetadata{Model: "text-embedding-3-small", Dimensions: 3}))

	meta, err = repo.LoadMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "text-embedding-3-small", meta.Model)
	assert.Equal(t, 3, meta.Dimensions)
	assert.False(t, meta.UpdatedAt.IsZero())
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	ctx := context.Background()

	repo, err := Open(dir, WithDimensions(3))
	require.NoError(t, err)
	first, err := repo.AppendRows(ctx, row("c1", "persisted", 1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = Open(dir, WithDimensions(3))
	require.NoError(t, err)
	defer repo.Close()

	second, err := repo.AppendRows(ctx, row("c2", "after reopen", 3, 2, 1))
	require.NoError(t, err)
	assert.Greater(t, second[0].Seq, first[0].Seq)

	table, err := repo.LoadTable(ctx)
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "persisted", table[0].Text)
	assert.Equal(t, "after reopen", table[1].Text)
}

func TestClosedRepository(t *testing.T) {
	repo, err := NewMemoryRepository(WithDimensions(3))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = repo.LoadTable(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestCancelledContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.AppendRows(ctx, row("c1", "x", 1, 2, 3))
	assert.ErrorIs(t, err, context.Canceled)
}
