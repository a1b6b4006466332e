package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
)

// StrategyName names a retrieval strategy.
type StrategyName string

const (
	StrategyVectorOnly StrategyName = "vector_only"
	StrategyHybrid     StrategyName = "hybrid"
	StrategyMultiScale StrategyName = "multi_scale"
	StrategyContextual StrategyName = "contextual"
)

// MergeMode selects how multi-scale scores are combined per chunk.
type MergeMode string

const (
	MergeMax             MergeMode = "max"
	MergeWeightedAverage MergeMode = "weighted_average"
)

// QueryFilter restricts the chunks a query may return.
type QueryFilter struct {
	SourceIDs   []string    `json:"source_ids,omitempty"`
	DocumentIDs []uuid.UUID `json:"document_ids,omitempty"`
	Scales      []Scale     `json:"scales,omitempty"`
	MinQuality  float64     `json:"min_quality,omitempty" validate:"gte=0,lte=1"`
}

// RetrievalQuery represents a single retrieval request.
type RetrievalQuery struct {
	Query               string          `json:"query" validate:"required,haswords,max=4096"`
	Strategy            StrategyName    `json:"strategy" validate:"omitempty,oneof=vector_only hybrid multi_scale contextual"`
	MaxResults          int             `json:"max_results" validate:"gte=1,lte=200"`
	SimilarityThreshold float64         `json:"similarity_threshold" validate:"gte=-1,lte=1"`
	Metric              Metric          `json:"metric" validate:"omitempty,oneof=cosine euclidean dot_product"`
	EmbeddingType       EmbeddingType   `json:"embedding_type,omitempty" validate:"omitempty,oneof=content contextual hierarchical semantic"`
	EmbeddingTypes      []EmbeddingType `json:"embedding_types,omitempty" validate:"omitempty,dive,oneof=content contextual hierarchical semantic"`
	Merge               MergeMode       `json:"merge,omitempty" validate:"omitempty,oneof=max weighted_average"`
	Filter              QueryFilter     `json:"filter"`
}

// DefaultRetrievalQuery returns a vector-only cosine query over content embeddings.
func DefaultRetrievalQuery(query string) RetrievalQuery {
	return RetrievalQuery{
		Query:               query,
		Strategy:            StrategyVectorOnly,
		MaxResults:          5,
		SimilarityThreshold: 0.3,
		Metric:              MetricCosine,
		EmbeddingType:       EmbeddingTypeContent,
		Merge:               MergeMax,
	}
}

// Intent is the detected question type of a query.
type Intent string

const (
	IntentDefinition Intent = "definition"
	IntentProcedure  Intent = "procedure"
	IntentList       Intent = "list"
	IntentComparison Intent = "comparison"
	IntentGeneral    Intent = "general"
)

// QueryAnalysis describes a query independently of the results.
type QueryAnalysis struct {
	Intent    Intent   `json:"intent"`
	Terms     []string `json:"terms"`
	Entities  []string `json:"entities,omitempty"`
	WordCount int      `json:"word_count"`
	Clarity   float64  `json:"clarity"`
}

// Validate checks the struct tags of the query.
func (q RetrievalQuery) Validate() error {
	if err := helper.Validate(q); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
