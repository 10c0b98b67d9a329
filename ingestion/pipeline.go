package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/gpthistory/core"
	"github.com/poiesic/gpthistory/embedding"
	"github.com/poiesic/gpthistory/storage"
)

// defaultAppendBatchSize bounds the rows written per store transaction.
const defaultAppendBatchSize = 100

// Pipeline orchestrates indexing of conversation exports.
type Pipeline struct {
	repo            storage.IndexRepository
	generator       *embedding.Generator
	model           string
	dropFailed      bool
	appendBatchSize int
	logger          *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "ingestion")
		return nil
	}
}

// WithModel records the embedding model name in the index metadata after
// each run that stores rows.
func WithModel(model string) Option {
	return func(p *Pipeline) error {
		p.model = model
		return nil
	}
}

// WithDropFailed controls what happens to conversations with a chunk in a
// failed embedding batch. When true none of their rows are stored, so the
// next run picks them up again. Default is false: chunks are stored with
// zero vectors.
func WithDropFailed(drop bool) Option {
	return func(p *Pipeline) error {
		p.dropFailed = drop
		return nil
	}
}

// WithAppendBatchSize sets how many rows are written per store transaction.
// A conversation is only split across transactions when it alone has more
// rows than this.
func WithAppendBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("append batch size must be at least 1, got %d", size)
		}
		p.appendBatchSize = size
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(repo storage.IndexRepository, generator *embedding.Generator, opts ...Option) (*Pipeline, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	p := &Pipeline{
		repo:            repo,
		generator:       generator,
		appendBatchSize: defaultAppendBatchSize,
		logger:          slog.Default().With("component", "ingestion"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Result summarizes an indexing run.
type Result struct {
	// Conversations is the number of conversations in the input.
	Conversations int
	// NewConversations is the number of conversations not yet indexed.
	NewConversations int
	// Chunks is the number of text chunks extracted and embedded.
	Chunks int
	// Rows is the number of rows appended to the index.
	Rows int
	// FailedBatches lists 1-based embedding batch numbers that failed.
	FailedBatches []int
	// DroppedConversations lists chat ids withheld because of failed batches.
	DroppedConversations []string
}

// IndexExport decodes an export from r and indexes it.
func (p *Pipeline) IndexExport(ctx context.Context, r io.Reader) (*Result, error) {
	convs, err := DecodeExport(r)
	if err != nil {
		return nil, err
	}
	return p.IndexConversations(ctx, convs)
}

// IndexConversations embeds and stores every conversation not already in
// the index. Embedding failures are reported in the Result, not returned.
func (p *Pipeline) IndexConversations(ctx context.Context, convs []core.Conversation) (*Result, error) {
	existing, err := p.repo.ChatIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read indexed chat ids: %w", err)
	}

	chunks := ChunksFromConversations(convs, existing)
	result := &Result{
		Conversations: len(convs),
		Chunks:        len(chunks),
	}
	newIDs := make(map[string]struct{})
	for _, c := range chunks {
		newIDs[c.ChatID] = struct{}{}
	}
	result.NewConversations = len(newIDs)

	p.logger.Info("indexing conversations",
		"conversations", result.Conversations,
		"already_indexed", len(existing),
		"new", result.NewConversations,
		"chunks", result.Chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, report := p.generator.GenerateEmbeddingsReport(ctx, texts)
	result.FailedBatches = report.FailedBatches

	dropped := map[string]struct{}{}
	if p.dropFailed && report.Failed() {
		for i, c := range chunks {
			if _, ok := dropped[c.ChatID]; ok || !report.ChunkFailed(i) {
				continue
			}
			dropped[c.ChatID] = struct{}{}
			result.DroppedConversations = append(result.DroppedConversations, c.ChatID)
		}
	}

	rows := make([]*core.IndexRow, 0, len(chunks))
	for i, c := range chunks {
		if _, skip := dropped[c.ChatID]; skip {
			continue
		}
		rows = append(rows, &core.IndexRow{ChatID: c.ChatID, Text: c.Text, Embeddings: vectors[i]})
	}

	result.Rows, err = storage.AppendByChat(ctx, p.repo, rows, p.appendBatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to append rows: %w", err)
	}

	if len(result.DroppedConversations) > 0 {
		p.logger.Warn("conversations withheld after failed embedding batches",
			"count", len(result.DroppedConversations))
	}

	if result.Rows > 0 && p.model != "" {
		meta := &storage.IndexMetadata{Model: p.model, Dimensions: p.generator.Dimensions()}
		if err := p.repo.SaveMetadata(ctx, meta); err != nil {
			return result, fmt.Errorf("failed to save index metadata: %w", err)
		}
	}

	p.logger.Info("indexing finished", "rows", result.Rows, "failed_batches", len(result.FailedBatches))
	return result, nil
}
