package retrieval

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// Strategy defines a retrieval strategy
type Strategy interface {
	Name() model.StrategyName
	Retrieve(ctx context.Context, query *model.RetrievalQuery, analysis *model.QueryAnalysis) ([]*model.RetrievalResult, error)
}

// VectorOnlyStrategy performs pure vector similarity search
type VectorOnlyStrategy struct {
	engine *Engine
}

// NewVectorOnlyStrategy creates a new vector-only strategy
func NewVectorOnlyStrategy(engine *Engine) *VectorOnlyStrategy {
	return &VectorOnlyStrategy{engine: engine}
}

// Name returns vector_only.
func (s *VectorOnlyStrategy) Name() model.StrategyName {
	return model.StrategyVectorOnly
}

// Retrieve performs vector-only retrieval on the query's embedding type
func (s *VectorOnlyStrategy) Retrieve(ctx context.Context, query *model.RetrievalQuery, _ *model.QueryAnalysis) ([]*model.RetrievalResult, error) {
	results, err := s.engine.VectorRetrieve(ctx, query, query.EmbeddingType, s.engine.candidates(query))
	if err != nil {
		return nil, err
	}
	sortResults(results, query.Query)
	return results, nil
}

// HybridStrategy merges vector similarity with lexical keyword matches
type HybridStrategy struct {
	engine *Engine
}

// NewHybridStrategy creates a new hybrid strategy
func NewHybridStrategy(engine *Engine) *HybridStrategy {
	return &HybridStrategy{engine: engine}
}

// Name returns hybrid.
func (s *HybridStrategy) Name() model.StrategyName {
	return model.StrategyHybrid
}

// Retrieve combines both result lists by (1-w)*vector + w*keyword. Chunks
// found only by keyword must reach the similarity threshold on the combined score.
func (s *HybridStrategy) Retrieve(ctx context.Context, query *model.RetrievalQuery, analysis *model.QueryAnalysis) ([]*model.RetrievalResult, error) {
	k := s.engine.candidates(query)
	weight := s.engine.config.KeywordWeight

	vectorResults, err := s.engine.VectorRetrieve(ctx, query, query.EmbeddingType, k)
	if err != nil {
		return nil, err
	}

	var keywordResults []*model.ScoredChunk
	if len(analysis.Terms) > 0 {
		keywordResults, err = s.engine.store.KeywordSearch(ctx, analysis.Terms, k, query.Filter)
		if err != nil {
			return nil, err
		}
	}

	resultMap := make(map[uuid.UUID]*model.RetrievalResult, len(vectorResults)+len(keywordResults))
	for _, result := range vectorResults {
		result.Score = (1 - weight) * result.SimilarityScore
		resultMap[result.Chunk.ID] = result
	}
	for _, kw := range keywordResults {
		if existing, ok := resultMap[kw.Chunk.ID]; ok {
			existing.KeywordScore = kw.Score
			existing.Score += weight * kw.Score
			continue
		}
		score := weight * kw.Score
		if score < query.SimilarityThreshold {
			continue
		}
		resultMap[kw.Chunk.ID] = &model.RetrievalResult{
			Chunk:         kw.Chunk,
			Score:         score,
			KeywordScore:  kw.Score,
			EmbeddingType: model.EmbeddingTypeKeyword,
			Strategy:      model.StrategyHybrid,
		}
	}

	results := make([]*model.RetrievalResult, 0, len(resultMap))
	for _, result := range resultMap {
		results = append(results, result)
	}
	sortResults(results, query.Query)
	return results, nil
}

// MultiScaleStrategy searches several embedding types and merges per chunk
type MultiScaleStrategy struct {
	engine *Engine
}

// NewMultiScaleStrategy creates a new multi-scale strategy
func NewMultiScaleStrategy(engine *Engine) *MultiScaleStrategy {
	return &MultiScaleStrategy{engine: engine}
}

// Name returns multi_scale.
func (s *MultiScaleStrategy) Name() model.StrategyName {
	return model.StrategyMultiScale
}

// Retrieve runs a vector search per embedding type and merges by max or
// weighted average over the types that matched. The reported embedding
// type is the best scoring one.
func (s *MultiScaleStrategy) Retrieve(ctx context.Context, query *model.RetrievalQuery, _ *model.QueryAnalysis) ([]*model.RetrievalResult, error) {
	k := s.engine.candidates(query)

	type merged struct {
		result    *model.RetrievalResult
		weighted  float64
		weightSum float64
	}
	mergeMap := make(map[uuid.UUID]*merged)
	var order []uuid.UUID

	for _, embeddingType := range s.engine.types(query) {
		results, err := s.engine.VectorRetrieve(ctx, query, embeddingType, k)
		if err != nil {
			return nil, err
		}
		weight := s.typeWeight(embeddingType)
		for _, result := range results {
			m, ok := mergeMap[result.Chunk.ID]
			if !ok {
				m = &merged{result: result}
				mergeMap[result.Chunk.ID] = m
				order = append(order, result.Chunk.ID)
			} else if result.SimilarityScore > m.result.SimilarityScore {
				m.result.SimilarityScore = result.SimilarityScore
				m.result.EmbeddingType = embeddingType
			}
			m.weighted += weight * result.SimilarityScore
			m.weightSum += weight
		}
	}

	results := make([]*model.RetrievalResult, 0, len(order))
	for _, id := range order {
		m := mergeMap[id]
		m.result.Strategy = model.StrategyMultiScale
		if query.Merge == model.MergeWeightedAverage && m.weightSum > 0 {
			m.result.Score = m.weighted / m.weightSum
		} else {
			m.result.Score = m.result.SimilarityScore
		}
		results = append(results, m.result)
	}
	sortResults(results, query.Query)
	return results, nil
}

func (s *MultiScaleStrategy) typeWeight(embeddingType model.EmbeddingType) float64 {
	if w, ok := s.engine.config.TypeWeights[embeddingType]; ok && w > 0 {
		return w
	}
	return 1
}

// ContextualStrategy re-ranks vector results by query intent
type ContextualStrategy struct {
	engine *Engine
}

// NewContextualStrategy creates a new contextual strategy
func NewContextualStrategy(engine *Engine) *ContextualStrategy {
	return &ContextualStrategy{engine: engine}
}

// Name returns contextual.
func (s *ContextualStrategy) Name() model.StrategyName {
	return model.StrategyContextual
}

var (
	definitionPattern = regexp.MustCompile(`(?i)\b(is|are) (a|an|the)\b|\brefers to\b|\bmeans\b|\bdefined as\b`)
	procedurePattern  = regexp.MustCompile(`(?im)^\s*(\d+[.)]|step\s+\d+)|\b(first|then|next|finally|run|install|configure)\b`)
	listPattern       = regexp.MustCompile(`(?m)^\s*([-*•]|\d+[.)])\s+`)
	comparePattern    = regexp.MustCompile(`(?i)\b(versus|vs\.?|compared|whereas|unlike|difference|than)\b`)
	procedureHeading  = regexp.MustCompile(`(?i)\b(how|install|installation|setup|guide|steps|procedure|configur\w*)\b`)
)

// Retrieve boosts chunks whose heading or content matches the detected
// intent and whose heading shares terms with the query.
func (s *ContextualStrategy) Retrieve(ctx context.Context, query *model.RetrievalQuery, analysis *model.QueryAnalysis) ([]*model.RetrievalResult, error) {
	results, err := s.engine.VectorRetrieve(ctx, query, query.EmbeddingType, s.engine.candidates(query))
	if err != nil {
		return nil, err
	}

	boost := s.engine.config.IntentBoost
	terms := make(map[string]struct{}, len(analysis.Terms))
	for _, t := range analysis.Terms {
		terms[t] = struct{}{}
	}

	for _, result := range results {
		score := result.SimilarityScore
		if IntentMatches(analysis.Intent, result.Chunk) {
			score += boost
		}
		if result.Chunk.Heading != "" && len(terms) > 0 {
			score += boost / 2 * helper.Overlap(helper.WordSet(result.Chunk.Heading, 2), terms)
		}
		result.Score = math.Min(1, score)
	}
	sortResults(results, query.Query)
	return results, nil
}

// IntentMatches reports whether a chunk looks like an answer of the given intent.
func IntentMatches(intent model.Intent, chunk *model.Chunk) bool {
	switch intent {
	case model.IntentDefinition:
		return definitionPattern.MatchString(chunk.Content) &&
			(chunk.Scale == model.ScaleSentence || chunk.Scale == model.ScaleParagraph)
	case model.IntentProcedure:
		return procedureHeading.MatchString(chunk.Heading) || len(procedurePattern.FindAllString(chunk.Content, -1)) >= 2
	case model.IntentList:
		return len(listPattern.FindAllString(chunk.Content, -1)) >= 2 || strings.Count(chunk.Content, ",") >= 3
	case model.IntentComparison:
		return comparePattern.MatchString(chunk.Content)
	default:
		return false
	}
}
