package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/poiesic/gpthistory/core"
)

const (
	// DefaultTopN is the result limit used when a caller passes topN <= 0.
	DefaultTopN = 1000

	// DefaultThreshold is the minimum dot-product score a row needs to be returned.
	DefaultThreshold = 0.3

	fallbackCount = 5
	previewLength = 100
)

// diagnosticThresholds are the score levels counted in the ranking log.
var diagnosticThresholds = []float64{0.3, 0.5, 0.8}

// QueryEmbedder turns a query into a vector. Implementations must not fail:
// a query that cannot be embedded yields a zero vector.
// *embedding.Generator satisfies this interface.
type QueryEmbedder interface {
	QueryEmbedding(ctx context.Context, text string) core.Vector
}

// Ranker scores index rows against a query by dot product.
type Ranker struct {
	embedder  QueryEmbedder
	threshold float64
	logger    *slog.Logger
}

// Option configures a Ranker.
type Option func(*Ranker) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Ranker) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "ranker")
		return nil
	}
}

// WithThreshold sets the minimum score a row needs to be returned.
// Default is DefaultThreshold.
func WithThreshold(threshold float64) Option {
	return func(r *Ranker) error {
		if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
			return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
		}
		r.threshold = threshold
		return nil
	}
}

// NewRanker creates a new ranker.
func NewRanker(embedder QueryEmbedder, opts ...Option) (*Ranker, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Ranker{
		embedder:  embedder,
		threshold: DefaultThreshold,
		logger:    slog.Default().With("component", "ranker"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Threshold returns the configured score threshold.
func (r *Ranker) Threshold() float64 {
	return r.threshold
}

// CalculateTopTitles ranks table against query and returns three aligned
// slices: chat ids, texts and scores, highest score first, at most topN long.
// It never fails; when nothing reaches the threshold, or ranking fails, all
// three slices are empty.
func (r *Ranker) CalculateTopTitles(ctx context.Context, table core.IndexTable, query string, topN int) ([]string, []string, []float64) {
	results := r.Rank(ctx, table, query, topN)

	chatIDs := make([]string, len(results))
	texts := make([]string, len(results))
	scores := make([]float64, len(results))
	for i, res := range results {
		chatIDs[i] = res.ChatID
		texts[i] = res.Text
		scores[i] = res.Score
	}
	return chatIDs, texts, scores
}

// Rank is CalculateTopTitles returning one RankedResult per row.
func (r *Ranker) Rank(ctx context.Context, table core.IndexTable, query string, topN int) []core.RankedResult {
	return r.RankWithMonitor(ctx, table, query, topN, nil)
}

// RankWithMonitor ranks with monitoring.
// The monitor receives callbacks at each stage of the ranking.
func (r *Ranker) RankWithMonitor(ctx context.Context, table core.IndexTable, query string, topN int, monitor SearchMonitor) (results []core.RankedResult) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%w: %v", ErrRankingPanic, rec)
			r.logger.Error("error calculating top results", "err", err)
			monitor.Failed(err)
			results = []core.RankedResult{}
		}
	}()

	monitor.Start(query)

	var err error
	results, err = r.rank(ctx, table, query, topN, monitor)
	if err != nil {
		r.logger.Error("error calculating top results", "err", err)
		monitor.Failed(err)
		return []core.RankedResult{}
	}

	monitor.Finish(results)
	return results
}

func (r *Ranker) rank(ctx context.Context, table core.IndexTable, query string, topN int, monitor SearchMonitor) ([]core.RankedResult, error) {
	if len(table) == 0 {
		r.logger.Info("index is empty, nothing to rank")
		return []core.RankedResult{}, nil
	}

	queryVector := r.embedder.QueryEmbedding(ctx, query)
	matrix, err := embeddingMatrix(table, len(queryVector))
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(matrix))
	for i, row := range matrix {
		scores[i] = dotProduct(queryVector, row)
	}

	stats := scoreStats(scores)
	attrs := []any{"rows", stats.Count, "min", stats.Min, "max", stats.Max, "mean", stats.Mean}
	for _, tc := range stats.AtOrAbove {
		attrs = append(attrs, fmt.Sprintf("at_or_above_%g", tc.Threshold), tc.Count)
	}
	r.logger.Info("similarity scores", attrs...)
	monitor.AfterScoring(stats)

	results := make([]core.RankedResult, 0)
	for i, score := range scores {
		if score >= r.threshold {
			results = append(results, core.RankedResult{ChatID: table[i].ChatID, Text: table[i].Text, Score: score})
		}
	}
	r.logger.Info("results above threshold", "count", len(results), "threshold", r.threshold)

	if len(results) == 0 {
		top := topScores(table, scores, fallbackCount)
		r.logger.Info("no results found above threshold, best scores regardless", "threshold", r.threshold)
		for i, res := range top {
			r.logger.Info("best score",
				"rank", i+1,
				"score", fmt.Sprintf("%.3f", res.Score),
				"chat_id", res.ChatID,
				"text", preview(res.Text)+"...")
		}
		monitor.BelowThreshold(top)
		return []core.RankedResult{}, nil
	}

	sortByScore(results)
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// embeddingMatrix collects every row's vector, requiring each to have dim
// components.
func embeddingMatrix(table core.IndexTable, dim int) ([]core.Vector, error) {
	matrix := make([]core.Vector, len(table))
	for i := range table {
		if len(table[i].Embeddings) != dim {
			return nil, fmt.Errorf("%w: row %d (chat %q) has %d components, query has %d",
				ErrShapeMismatch, i, table[i].ChatID, len(table[i].Embeddings), dim)
		}
		matrix[i] = table[i].Embeddings
	}
	return matrix, nil
}

// dotProduct accumulates in float64; vectors are not normalized, so the
// score is unbounded.
func dotProduct(a, b core.Vector) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func scoreStats(scores []float64) ScoreStats {
	stats := ScoreStats{
		Count:     len(scores),
		Min:       math.Inf(1),
		Max:       math.Inf(-1),
		AtOrAbove: make([]ThresholdCount, len(diagnosticThresholds)),
	}
	for i, th := range diagnosticThresholds {
		stats.AtOrAbove[i].Threshold = th
	}

	var sum float64
	for _, s := range scores {
		sum += s
		stats.Min = min(stats.Min, s)
		stats.Max = max(stats.Max, s)
		for i := range stats.AtOrAbove {
			if s >= stats.AtOrAbove[i].Threshold {
				stats.AtOrAbove[i].Count++
			}
		}
	}
	if len(scores) > 0 {
		stats.Mean = sum / float64(len(scores))
	} else {
		stats.Min, stats.Max = 0, 0
	}
	return stats
}

// topScores returns the n best rows regardless of threshold.
func topScores(table core.IndexTable, scores []float64, n int) []core.RankedResult {
	all := make([]core.RankedResult, len(scores))
	for i, score := range scores {
		all[i] = core.RankedResult{ChatID: table[i].ChatID, Text: table[i].Text, Score: score}
	}
	sortByScore(all)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// sortByScore orders results by score descending. Equal scores keep table order.
func sortByScore(results []core.RankedResult) {
	slices.SortStableFunc(results, func(a, b core.RankedResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength])
}
