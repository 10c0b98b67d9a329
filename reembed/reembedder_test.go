package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/poiesic/gpthistory/ai/mock"
	"github.com/poiesic/gpthistory/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReembedder_Validation(t *testing.T) {
	repo := setupTestRepo(t, 0)
	gen := newTestGenerator(t, mock.NewMockEmbedder().WithDimensions(testDims), 10)

	_, err := NewReembedder(nil, gen, nil, nil)
	assert.Equal(t, ErrRepositoryRequired, err)

	_, err = NewReembedder(repo, nil, nil, nil)
	assert.Equal(t, ErrGeneratorRequired, err)

	r, err := NewReembedder(repo, gen, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, r.iterator.batchSize)
}

func TestReembedder_Run(t *testing.T) {
	repo := setupTestRepo(t, 10)
	m := mock.NewMockEmbedder().WithDimensions(testDims)
	gen := newTestGenerator(t, m, 100)

	var buf bytes.Buffer
	r, err := NewReembedder(repo, gen, &Config{BatchSize: 3, ReportInterval: 3, Model: "text-embedding-3-large"}, &buf)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{Rows: 10, Updated: 10}, result)
	assert.Equal(t, 4, m.CallCount(), "one call per page of 3")

	table, err := repo.LoadTable(context.Background())
	require.NoError(t, err)
	require.Len(t, table, 10)
	for i, row := range table {
		assert.Equal(t, core.Vector(mock.GenerateDeterministicVector(row.Text, testDims)), row.Embeddings, "row %d", i)
	}
	assert.Equal(t, "text 0", table[0].Text)
	assert.Equal(t, "chat-4", table[9].ChatID)

	output := buf.String()
	assert.Contains(t, output, "Starting re-embedding of 10 rows (batch size: 3)")
	assert.Contains(t, output, "10/10")
	assert.Contains(t, output, "Re-embedding complete. Updated 10 of 10 rows")

	meta, err := repo.LoadMetadata(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "text-embedding-3-large", meta.Model)
	assert.Equal(t, testDims, meta.Dimensions)
}

func TestReembedder_EmptyIndex(t *testing.T) {
	repo := setupTestRepo(t, 0)
	m := mock.NewMockEmbedder().WithDimensions(testDims)

	var buf bytes.Buffer
	r, err := NewReembedder(repo, newTestGenerator(t, m, 10), nil, &buf)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Rows)
	assert.Contains(t, buf.String(), "No rows found in index")
	assert.Zero(t, m.CallCount())
}

func TestReembedder_FailedBatchesSkipMetadata(t *testing.T) {
	repo := setupTestRepo(t, 4)
	m := mock.NewMockEmbedder().WithDimensions(testDims)
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("invalid api key")
	}

	var buf bytes.Buffer
	r, err := NewReembedder(repo, newTestGenerator(t, m, 10), &Config{BatchSize: 2, ReportInterval: 2, Model: "new-model"}, &buf)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{Rows: 4, Kept: 4}, result)
	assert.Contains(t, buf.String(), "4 kept previous vector")

	table, err := repo.LoadTable(context.Background())
	require.NoError(t, err)
	for _, row := range table {
		assert.Equal(t, core.Vector{1, 1, 1}, row.Embeddings)
	}

	meta, err := repo.LoadMetadata(context.Background())
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestReembedder_ContextCancelled(t *testing.T) {
	repo := setupTestRepo(t, 4)
	m := mock.NewMockEmbedder().WithDimensions(testDims)
	r, err := NewReembedder(repo, newTestGenerator(t, m, 10), &Config{BatchSize: 2, ReportInterval: 2}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
