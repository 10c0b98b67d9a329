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


// Package gpthistory indexes a ChatGPT conversation export and searches it
// by embedding similarity.
package gpthistory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/gpthistory/ai"
	"github.com/poiesic/gpthistory/ai/openai"
	"github.com/poiesic/gpthistory/core"
	"github.com/poiesic/gpthistory/embedding"
	"github.com/poiesic/gpthistory/ingestion"
	"github.com/poiesic/gpthistory/reembed"
	"github.com/poiesic/gpthistory/search"
	"github.com/poiesic/gpthistory/storage"
	"github.com/poiesic/gpthistory/storage/badger"
	"github.com/poiesic/gpthistory/storage/csvtable"
)

const importBatchSize = 100

// History is an open index together with the embedding service used to
// build and query it.
type History struct {
	config    *Config
	repo      storage.IndexRepository
	provider  ai.AIProvider
	generator *embedding.Generator
	logger    *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	repo     storage.IndexRepository
	logger   *slog.Logger
}

// WithProvider uses provider instead of an OpenAI provider built from the config.
// The History takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithRepository uses repo instead of opening the badger index at
// Config.IndexPath. The History takes ownership and closes it.
func WithRepository(repo storage.IndexRepository) Option {
	return func(o *options) {
		o.repo = repo
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open validates cfg, opens the index and connects the embedding provider.
// A nil cfg means DefaultConfig.
func Open(cfg *Config, opts ...Option) (*History, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	repo := o.repo
	if repo == nil {
		var err error
		repo, err = badger.Open(cfg.IndexPath, badger.WithDimensions(cfg.Embedding.Dimensions))
		if err != nil {
			return nil, err
		}
	}

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(&cfg.AI)
		if err != nil {
			repo.Close()
			return nil, err
		}
	}

	generator, err := embedding.NewGenerator(provider.Embedder(), &cfg.Embedding, embedding.WithLogger(o.logger))
	if err != nil {
		provider.Close()
		repo.Close()
		return nil, err
	}

	return &History{
		config:    cfg,
		repo:      repo,
		provider:  provider,
		generator: generator,
		logger:    o.logger,
	}, nil
}

// Close releases the worker pool, the provider and the index.
func (h *History) Close() error {
	h.generator.Release()

	var errs []error
	if err := h.provider.Close(); err != nil {
		h.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := h.repo.Close(); err != nil {
		h.logger.Error("error closing index", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Repository returns the underlying index repository.
func (h *History) Repository() storage.IndexRepository {
	return h.repo
}

// Generator returns the embedding generator.
func (h *History) Generator() *embedding.Generator {
	return h.generator
}

// NewPipeline creates an ingestion pipeline writing to this index.
// opts are applied after the ones derived from the config.
func (h *History) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{
		ingestion.WithLogger(h.logger),
		ingestion.WithModel(h.config.AI.EmbeddingModel),
		ingestion.WithDropFailed(h.config.DropFailed),
	}
	return ingestion.NewPipeline(h.repo, h.generator, append(base, opts...)...)
}

// NewSearcher creates a searcher over this index.
// opts are applied after the ones derived from the config.
func (h *History) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{
		search.WithLogger(h.logger),
		search.WithThreshold(h.config.Search.Threshold),
	}
	return search.NewSearcher(h.repo, h.generator, append(base, opts...)...)
}

// Index embeds and stores every conversation in the export at path that is
// not already indexed.
func (h *History) Index(ctx context.Context, path string) (*ingestion.Result, error) {
	h.checkModel(ctx)

	convs, err := ingestion.LoadExport(path)
	if err != nil {
		return nil, err
	}

	pipeline, err := h.NewPipeline()
	if err != nil {
		return nil, err
	}
	return pipeline.IndexConversations(ctx, convs)
}

// Search ranks the index against query. topN <= 0 uses the configured limit.
func (h *History) Search(ctx context.Context, query string, topN int) ([]core.RankedResult, error) {
	return h.SearchWithMonitor(ctx, query, topN, nil)
}

// SearchWithMonitor is Search with monitoring.
func (h *History) SearchWithMonitor(ctx context.Context, query string, topN int, monitor search.SearchMonitor) ([]core.RankedResult, error) {
	h.checkModel(ctx)

	if topN <= 0 {
		topN = h.config.Search.TopN
	}
	searcher, err := h.NewSearcher()
	if err != nil {
		return nil, err
	}
	return searcher.SearchWithMonitor(ctx, query, topN, monitor)
}

// Reembed recomputes every stored vector with the configured model and
// records the model in the index metadata. Progress goes to progress.
func (h *History) Reembed(ctx context.Context, progress io.Writer) (*reembed.Result, error) {
	cfg := &reembed.Config{
		BatchSize:      h.config.Embedding.BatchSize,
		ReportInterval: h.config.Embedding.BatchSize,
		Model:          h.config.AI.EmbeddingModel,
	}
	r, err := reembed.NewReembedder(h.repo, h.generator, cfg, progress)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// ImportCSV loads a chat_id,text,embeddings CSV index. With replace the
// current table is discarded first; otherwise only rows of chat ids not yet
// indexed are appended. It returns the number of rows stored.
func (h *History) ImportCSV(ctx context.Context, path string, replace bool) (int, error) {
	table, err := csvtable.LoadFile(path)
	if err != nil {
		return 0, err
	}

	if replace {
		if err := h.repo.ReplaceTable(ctx, table); err != nil {
			return 0, fmt.Errorf("failed to replace index: %w", err)
		}
		h.logger.Info("index replaced from csv", "path", path, "rows", len(table))
		return len(table), nil
	}

	existing, err := h.repo.ChatIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read indexed chat ids: %w", err)
	}
	rows := make([]*core.IndexRow, 0, len(table))
	for i := range table {
		if _, ok := existing[table[i].ChatID]; ok {
			continue
		}
		rows = append(rows, &table[i])
	}

	stored, err := storage.AppendByChat(ctx, h.repo, rows, importBatchSize)
	if err != nil {
		return stored, fmt.Errorf("failed to append rows: %w", err)
	}
	h.logger.Info("csv imported", "path", path, "rows", stored, "skipped", len(table)-stored)
	return stored, nil
}

// ExportCSV writes the whole index to path as a chat_id,text,embeddings CSV.
// It returns the number of rows written.
func (h *History) ExportCSV(ctx context.Context, path string) (int, error) {
	table, err := h.repo.LoadTable(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load index: %w", err)
	}
	if err := csvtable.SaveFile(path, table); err != nil {
		return 0, err
	}
	return len(table), nil
}

// checkModel warns when the index was built with another model than the
// configured one; scores across models are meaningless.
func (h *History) checkModel(ctx context.Context) {
	meta, err := h.repo.LoadMetadata(ctx)
	if err != nil {
		h.logger.Warn("could not read index metadata", "err", err)
		return
	}
	if meta == nil {
		return
	}
	if meta.Model != h.config.AI.EmbeddingModel || meta.Dimensions != h.config.Embedding.Dimensions {
		h.logger.Warn("index was built with a different embedding model, run reembed",
			"index_model", meta.Model,
			"index_dimensions", meta.Dimensions,
			"model", h.config.AI.EmbeddingModel,
			"dimensions", h.config.Embedding.Dimensions)
	}
}
