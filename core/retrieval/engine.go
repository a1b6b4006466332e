package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/siherrmann/grounder/core/pipeline"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// Store is the read side of the chunk and embedding store.
type Store interface {
	// Nearest returns up to k chunks whose embedding of the given type scores
	// at least threshold against vector, best first.
	Nearest(ctx context.Context, vector []float32, embeddingType model.EmbeddingType, metric model.Metric, k int, threshold float64, filter model.QueryFilter) ([]*model.ScoredChunk, error)
	// KeywordSearch returns up to k chunks matching any of the terms with a lexical score in [0,1].
	KeywordSearch(ctx context.Context, terms []string, k int, filter model.QueryFilter) ([]*model.ScoredChunk, error)
}

// QueryEmbedder embeds query text for an embedding type.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string, embeddingType model.EmbeddingType) ([]float32, error)
	Types() []model.EmbeddingType
}

// Result is the outcome of one retrieval request.
type Result struct {
	Results  []*model.RetrievalResult
	Analysis model.QueryAnalysis
	Total    int // results before capping
}

// Engine executes retrieval strategies against the store.
type Engine struct {
	store      Store
	embedder   QueryEmbedder
	entities   pipeline.EntityExtractor
	config     model.RetrievalConfig
	strategies map[model.StrategyName]Strategy
	logger     *slog.Logger
}

// NewEngine creates a new retrieval engine with all strategies registered.
func NewEngine(store Store, embedder QueryEmbedder, config model.RetrievalConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    store,
		embedder: embedder,
		entities: pipeline.HeuristicEntityExtractor{},
		config:   config,
		logger:   logger,
	}
	e.strategies = map[model.StrategyName]Strategy{
		model.StrategyVectorOnly: NewVectorOnlyStrategy(e),
		model.StrategyHybrid:     NewHybridStrategy(e),
		model.StrategyMultiScale: NewMultiScaleStrategy(e),
		model.StrategyContextual: NewContextualStrategy(e),
	}
	return e
}

// SetEntityExtractor replaces the entity extractor used by query analysis.
func (e *Engine) SetEntityExtractor(extractor pipeline.EntityExtractor) {
	e.entities = extractor
}

// Strategy returns the registered strategy with the given name.
func (e *Engine) Strategy(name model.StrategyName) (Strategy, bool) {
	s, ok := e.strategies[name]
	return s, ok
}

// Normalize fills the unset fields of a query with their defaults.
func Normalize(query model.RetrievalQuery) model.RetrievalQuery {
	defaults := model.DefaultRetrievalQuery(query.Query)
	if query.Strategy == "" {
		query.Strategy = defaults.Strategy
	}
	if query.MaxResults == 0 {
		query.MaxResults = defaults.MaxResults
	}
	if query.Metric == "" {
		query.Metric = defaults.Metric
	}
	if query.EmbeddingType == "" {
		query.EmbeddingType = defaults.EmbeddingType
	}
	if query.Merge == "" {
		query.Merge = defaults.Merge
	}
	return query
}

// Retrieve validates the query, analyses it, runs the selected strategy and caps the results.
func (e *Engine) Retrieve(ctx context.Context, query model.RetrievalQuery) (*Result, error) {
	query = Normalize(query)
	if err := query.Validate(); err != nil {
		return nil, helper.NewError("validate query", err)
	}

	strategy, ok := e.strategies[query.Strategy]
	if !ok {
		return nil, helper.NewError("select strategy", fmt.Errorf("%w: unknown strategy %s", model.ErrValidation, query.Strategy))
	}

	analysis := e.Analyze(ctx, query.Query)
	results, err := strategy.Retrieve(ctx, &query, &analysis)
	if err != nil {
		return nil, helper.NewError(fmt.Sprintf("retrieve %s", query.Strategy), err)
	}

	total := len(results)
	if len(results) > query.MaxResults {
		results = results[:query.MaxResults]
	}

	e.logger.Debug("Retrieved chunks", slog.String("strategy", string(query.Strategy)), slog.Int("results", len(results)), slog.Int("total", total))
	return &Result{Results: results, Analysis: analysis, Total: total}, nil
}

// VectorRetrieve performs a nearest neighbour search for one embedding type.
func (e *Engine) VectorRetrieve(ctx context.Context, query *model.RetrievalQuery, embeddingType model.EmbeddingType, k int) ([]*model.RetrievalResult, error) {
	vector, err := e.embedder.EmbedQuery(ctx, query.Query, embeddingType)
	if err != nil {
		return nil, err
	}

	scored, err := e.store.Nearest(ctx, vector, embeddingType, query.Metric, k, query.SimilarityThreshold, query.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]*model.RetrievalResult, 0, len(scored))
	for _, sc := range scored {
		results = append(results, &model.RetrievalResult{
			Chunk:           sc.Chunk,
			Score:           sc.Score,
			SimilarityScore: sc.Score,
			EmbeddingType:   embeddingType,
			Strategy:        query.Strategy,
		})
	}
	return results, nil
}

func (e *Engine) candidates(query *model.RetrievalQuery) int {
	return max(query.MaxResults, e.config.CandidateLimit)
}

func (e *Engine) types(query *model.RetrievalQuery) []model.EmbeddingType {
	if len(query.EmbeddingTypes) > 0 {
		return query.EmbeddingTypes
	}
	return e.embedder.Types()
}

// sortResults orders by score, then similarity. Remaining ties prefer chunks
// containing the query text, then the earlier chunk, then the chunk id.
func sortResults(results []*model.RetrievalResult, query string) {
	needle := normalizedText(query)
	contains := make(map[*model.RetrievalResult]bool, len(results))
	for _, r := range results {
		contains[r] = needle != "" && strings.Contains(normalizedText(r.Chunk.Content), needle)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.SimilarityScore != b.SimilarityScore {
			return a.SimilarityScore > b.SimilarityScore
		}
		if contains[a] != contains[b] {
			return contains[a]
		}
		if a.Chunk.StartPos != b.Chunk.StartPos {
			return a.Chunk.StartPos < b.Chunk.StartPos
		}
		return a.Chunk.ID.String() < b.Chunk.ID.String()
	})
}

// normalizedText is the space separated word sequence of text, padded with
// spaces so containment matches whole words only.
func normalizedText(text string) string {
	words := helper.Words(text)
	if len(words) == 0 {
		return ""
	}
	return " " + strings.Join(words, " ") + " "
}
