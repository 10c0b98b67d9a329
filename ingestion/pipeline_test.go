package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/gpthistory/ai/mock"
	"github.com/poiesic/gpthistory/core"
	"github.com/poiesic/gpthistory/embedding"
	"github.com/poiesic/gpthistory/storage"
	"github.com/poiesic/gpthistory/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 4

func setupPipeline(t *testing.T, m *mock.MockEmbedder, batchSize int, opts ...Option) (*Pipeline, storage.IndexRepository) {
	t.Helper()

	repo, err := badger.NewMemoryRepository(badger.WithDimensions(testDims))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	cfg := embedding.DefaultConfig()
	cfg.Dimensions = testDims
	cfg.BatchSize = batchSize
	gen, err := embedding.NewGenerator(m, cfg)
	require.NoError(t, err)
	t.Cleanup(gen.Release)

	p, err := NewPipeline(repo, gen, opts...)
	require.NoError(t, err)
	return p, repo
}

func textConversation(id string, parts ...string) core.Conversation {
	mapping := make(map[string]core.ConversationRecord, len(parts))
	for i, part := range parts {
		mapping[fmt.Sprintf("node-%02d", i)] = core.ConversationRecord{
			"message": map[string]any{
				"create_time": float64(i),
				"content": map[string]any{
					"content_type": "text",
					"parts":        []any{part},
				},
			},
		}
	}
	return core.Conversation{ID: id, Title: id, Mapping: mapping}
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(nil, nil)
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	repo, err := badger.NewMemoryRepository(badger.WithDimensions(testDims))
	require.NoError(t, err)
	defer repo.Close()

	_, err = NewPipeline(repo, nil)
	assert.ErrorIs(t, err, ErrGeneratorRequired)

	gen, err := embedding.NewGenerator(mock.NewMockEmbedder(), nil)
	require.NoError(t, err)
	_, err = NewPipeline(repo, gen, WithAppendBatchSize(0))
	assert.Error(t, err)
}

func TestIndexConversations(t *testing.T) {
	m := mock.NewMockEmbedder().WithDimensions(testDims)
	p, repo := setupPipeline(t, m, 100, WithModel("text-embedding-3-small"))
	ctx := context.Background()

	convs := []core.Conversation{
		textConversation("c1", "first question", "first answer"),
		textConversation("c2", "second question"),
	}

	result, err := p.IndexConversations(ctx, convs)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Conversations)
	assert.Equal(t, 2, result.NewConversations)
	assert.Equal(t, 3, result.Chunks)
	assert.Equal(t, 3, result.Rows)
	assert.Empty(t, result.FailedBatches)

	table, err := repo.LoadTable(ctx)
	require.NoError(t, err)
	require.Len(t, table, 3)
	assert.Equal(t, "c1", table[0].ChatID)
	assert.Equal(t, "first question", table[0].Text)
	assert.Equal(t, "first answer", table[1].Text)
	assert.Equal(t, "c2", table[2].ChatID)
	assert.Equal(t, core.Vector(mock.GenerateDeterministicVector("second question", testDims)), table[2].Embeddings)

	meta, err := repo.LoadMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "text-embedding-3-small", meta.Model)
	assert.Equal(t, testDims, meta.Dimensions)
}

func TestIndexConversations_Incremental(t *testing.T) {
	m := mock.NewMockEmbedder().WithDimensions(testDims)
	p, repo := setupPipeline(t, m, 100)
	ctx := context.Background()

	_, err := p.IndexConversations(ctx, []core.Conversation{textConversation("c1", "old")})
	require.NoError(t, err)
	calls := m.CallCount()

	result, err := p.IndexConversations(ctx, []core.Conversation{
		textConversation("c1", "old"),
		textConversation("c2", "new"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewConversations)
	assert.Equal(t, 1, result.Rows)
	assert.Equal(t, calls+1, m.CallCount())

	// Nothing new: no service calls at all.
	result, err = p.IndexConversations(ctx, []core.Conversation{textConversation("c2", "new")})
	require.NoError(t, err)
	assert.Zero(t, result.Rows)
	assert.Equal(t, calls+1, m.CallCount())

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	meta, err := repo.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Nil(t, meta, "no model configured")
}

func failingSecondBatch(texts []string) ([][]float32, error) {
	if strings.HasPrefix(texts[0], "bad") {
		return nil, errors.New("rate limited")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = mock.GenerateDeterministicVector(text, testDims)
	}
	return out, nil
}

func TestIndexConversations_FailedBatchStoresZeroVectors(t *testing.T) {
	m := mock.NewMockEmbedder().WithDimensions(testDims)
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return failingSecondBatch(texts)
	}
	p, repo := setupPipeline(t, m, 2)
	ctx := context.Background()

	result, err := p.IndexConversations(ctx, []core.Conversation{
		textConversation("c1", "good one", "good two"),
		textConversation("c2", "bad one", "bad two"),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, result.FailedBatches)
	assert.Equal(t, 4, result.Rows)
	assert.Empty(t, result.DroppedConversations)

	table, err := repo.LoadTable(ctx)
	require.NoError(t, err)
	require.Len(t, table, 4)
	assert.False(t, table[0].Embeddings.IsZero())
	assert.True(t, table[2].Embeddings.IsZero())
	assert.True(t, table[3].Embeddings.IsZero())
}

func TestIndexConversations_DropFailed(t *testing.T) {
	m := mock.NewMockEmbedder().WithDimensions(testDims)
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return failingSecondBatch(texts)
	}
	p, repo := setupPipeline(t, m, 2, WithDropFailed(true))
	ctx := context.Background()

	result, err := p.IndexConversations(ctx, []core.Conversation{
		textConversation("c1", "good one", "good two"),
		textConversation("c2", "bad one", "bad two"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, result.DroppedConversations)
	assert.Equal(t, 2, result.Rows)

	ids, err := repo.ChatIDs(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, "c2")

	// The withheld conversation is picked up on the next run.
	m.EmbedTextsFunc = nil
	result, err = p.IndexConversations(ctx, []core.Conversation{
		textConversation("c1", "good one", "good two"),
		textConversation("c2", "bad one", "bad two"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewConversations)
	assert.Equal(t, 2, result.Rows)
}

func TestIndexConversations_AppendsInBatches(t *testing.T) {
	m := mock.NewMockEmbedder().WithDimensions(testDims)
	p, repo := setupPipeline(t, m, 100, WithAppendBatchSize(2))
	ctx := context.Background()

	result, err := p.IndexConversations(ctx, []core.Conversation{
		textConversation("c1", "a", "b", "c", "d", "e"),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Rows)

	table, err := repo.LoadTable(ctx)
	require.NoError(t, err)
	texts := make([]string, len(table))
	for i, row := range table {
		texts[i] = row.Text
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, texts)
}

// flakyAppendRepo fails the failOn-th AppendRows call.
type flakyAppendRepo struct {
	storage.IndexRepository
	calls  int
	failOn int
}

func (r *flakyAppendRepo) AppendRows(ctx context.Context, rows ...*core.IndexRow) ([]*storage.StoredRow, error) {
	r.calls++
	if r.calls == r.failOn {
		return nil, errors.New("disk full")
	}
	return r.IndexRepository.AppendRows(ctx, rows...)
}

func TestIndexConversations_FailedAppendLeavesNoPartialConversation(t *testing.T) {
	m := mock.NewMockEmbedder().WithDimensions(testDims)
	p, repo := setupPipeline(t, m, 100, WithAppendBatchSize(2))
	ctx := context.Background()
	convs := []core.Conversation{textConversation("c1", "a", "b", "c")}

	flaky := &flakyAppendRepo{IndexRepository: repo, failOn: 2}
	failing, err := NewPipeline(flaky, p.generator, WithAppendBatchSize(2))
	require.NoError(t, err)

	result, err := failing.IndexConversations(ctx, convs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, result.Rows)

	table, err := repo.LoadTable(ctx)
	require.NoError(t, err)
	assert.Empty(t, table)

	result, err = p.IndexConversations(ctx, convs)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewConversations)
	assert.Equal(t, 3, result.Rows)

	table, err = repo.LoadTable(ctx)
	require.NoError(t, err)
	require.Len(t, table, 3)
	assert.Equal(t, "c", table[2].Text)
}

func TestIndexExport(t *testing.T) {
	m := mock.NewMockEmbedder().WithDimensions(testDims)
	p, repo := setupPipeline(t, m, 100)
	ctx := context.Background()

	result, err := p.IndexExport(ctx, strings.NewReader(sampleExport))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Conversations)
	assert.Equal(t, 2, result.NewConversations)
	assert.Equal(t, 3, result.Rows)

	ids, err := repo.ChatIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"conv-1": {}, "conv-2": {}}, ids)

	_, err = p.IndexExport(ctx, strings.NewReader("not json"))
	assert.ErrorIs(t, err, ErrInvalidExport)
}
