package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/gpthistory/ai"
	"github.com/poiesic/gpthistory/core"
)

// Report summarizes a batch embedding run.
type Report struct {
	// Batches is the number of service calls attempted.
	Batches int
	// FailedBatches lists the 1-based numbers of batches that were filled
	// with zero vectors.
	FailedBatches []int
	// Chunks is the number of input chunks.
	Chunks int
	// Embeddings is the number of vectors returned; always equal to Chunks.
	Embeddings int
	// BatchSize is the number of chunks per service call.
	BatchSize int
}

// Failed reports whether any batch fell back to zero vectors.
func (r Report) Failed() bool {
	return len(r.FailedBatches) > 0
}

// ChunkFailed reports whether the chunk at index i (0-based) was in a
// failed batch.
func (r Report) ChunkFailed(i int) bool {
	if r.BatchSize <= 0 || i < 0 {
		return false
	}
	return slices.Contains(r.FailedBatches, i/r.BatchSize+1)
}

// Generator produces embeddings for queries and chunk batches.
type Generator struct {
	embedder ai.Embedder
	config   Config
	pool     *ants.Pool
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger.With("component", "embedding-generator")
	}
}

// NewGenerator creates a Generator. A nil config means DefaultConfig.
// When config.Workers > 1 a worker pool is started; call Release when done.
func NewGenerator(embedder ai.Embedder, config *Config, opts ...Option) (*Generator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding config: %w", err)
	}

	g := &Generator{
		embedder: embedder,
		config:   *config,
		logger:   slog.Default().With("component", "embedding-generator"),
	}
	for _, opt := range opts {
		opt(g)
	}

	if config.Workers > 1 {
		pool, err := ants.NewPool(config.Workers)
		if err != nil {
			return nil, err
		}
		g.pool = pool
	}

	return g, nil
}

// Release stops the worker pool, if any.
// The generator should not be used after calling Release.
func (g *Generator) Release() {
	if g.pool != nil {
		g.pool.Release()
	}
}

// Dimensions returns the configured vector length.
func (g *Generator) Dimensions() int {
	return g.config.Dimensions
}

// QueryEmbedding embeds a single query string.
// Any failure is logged and yields the zero vector; it never returns an error.
func (g *Generator) QueryEmbedding(ctx context.Context, text string) (vector core.Vector) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("error generating query embedding", "err", fmt.Errorf("%w: %v", ErrEmbedderPanic, r))
			vector = core.ZeroVector(g.config.Dimensions)
		}
	}()

	var raw []float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		raw, err = g.embedder.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		return core.ValidateDimensions(raw, g.config.Dimensions)
	}, g.config.MaxAttempts, g.config.RetryDelay)
	if err != nil {
		g.logger.Error("error generating query embedding", "err", err)
		return core.ZeroVector(g.config.Dimensions)
	}

	return g.finish(raw)
}

// GenerateEmbeddings embeds chunks in batches and returns one vector per
// chunk, in chunk order. A failed batch contributes zero vectors.
func (g *Generator) GenerateEmbeddings(ctx context.Context, chunks []string) []core.Vector {
	vectors, _ := g.GenerateEmbeddingsReport(ctx, chunks)
	return vectors
}

// GenerateEmbeddingsReport is GenerateEmbeddings plus a Report of which
// batches failed.
func (g *Generator) GenerateEmbeddingsReport(ctx context.Context, chunks []string) ([]core.Vector, Report) {
	batches := SplitIntoBatches(chunks, g.config.BatchSize)
	results := make([][]core.Vector, len(batches))
	failed := make([]bool, len(batches))

	run := func(i int) {
		vectors, err := g.embedBatch(ctx, i+1, batches[i])
		if err != nil {
			g.logger.Error("error generating embeddings for batch", "batch", i+1, "size", len(batches[i]), "err", err)
			vectors = make([]core.Vector, len(batches[i]))
			for j := range vectors {
				vectors[j] = core.ZeroVector(g.config.Dimensions)
			}
			failed[i] = true
		}
		results[i] = vectors
	}

	if g.pool == nil || len(batches) < 2 {
		for i := range batches {
			run(i)
		}
	} else {
		var wg sync.WaitGroup
		for i := range batches {
			wg.Add(1)
			task := func() {
				defer wg.Done()
				run(i)
			}
			if err := g.pool.Submit(task); err != nil {
				g.logger.Warn("worker pool rejected batch, running inline", "batch", i+1, "err", err)
				task()
			}
		}
		wg.Wait()
	}

	out := make([]core.Vector, 0, len(chunks))
	report := Report{Batches: len(batches), Chunks: len(chunks), BatchSize: g.config.BatchSize}
	for i, vectors := range results {
		out = append(out, vectors...)
		if failed[i] {
			report.FailedBatches = append(report.FailedBatches, i+1)
		}
	}
	report.Embeddings = len(out)

	if len(out) > 0 {
		g.logger.Info("embedding generation finished",
			"chunks", report.Chunks,
			"embeddings", report.Embeddings,
			"failed_batches", len(report.FailedBatches))
	} else {
		g.logger.Info("No new conversations detected")
	}

	return out, report
}

// embedBatch makes one (possibly retried) service call for a batch.
// Panics in the embedder are converted to errors.
func (g *Generator) embedBatch(ctx context.Context, number int, batch []string) (vectors []core.Vector, err error) {
	defer func() {
		if r := recover(); r != nil {
			vectors = nil
			err = fmt.Errorf("%w: %v", ErrEmbedderPanic, r)
		}
	}()

	g.logger.Info("generating embeddings for batch", "batch", number, "size", len(batch))

	var raw [][]float32
	err = RetryWithBackoff(ctx, func() error {
		var err error
		raw, err = g.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			return err
		}
		if len(raw) != len(batch) {
			return fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(batch), len(raw))
		}
		for i, v := range raw {
			if err := core.ValidateDimensions(v, g.config.Dimensions); err != nil {
				return fmt.Errorf("vector %d: %w", i, err)
			}
		}
		return nil
	}, g.config.MaxAttempts, g.config.RetryDelay)
	if err != nil {
		return nil, err
	}

	vectors = make([]core.Vector, len(raw))
	for i, v := range raw {
		vectors[i] = g.finish(v)
	}
	return vectors, nil
}

func (g *Generator) finish(v []float32) core.Vector {
	if g.config.Normalize {
		return NormalizeVector(v)
	}
	return core.Vector(v)
}
