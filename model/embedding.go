package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
)

// EmbeddingType is one of the vector representations computed per chunk.
type EmbeddingType string

const (
	EmbeddingTypeContent      EmbeddingType = "content"
	EmbeddingTypeContextual   EmbeddingType = "contextual"
	EmbeddingTypeHierarchical EmbeddingType = "hierarchical"
	EmbeddingTypeSemantic     EmbeddingType = "semantic"

	// EmbeddingTypeKeyword marks retrieval results matched only by keyword
	// search. No embedding of this type is stored and Valid rejects it.
	EmbeddingTypeKeyword EmbeddingType = "keyword"
)

// EmbeddingTypes lists all embedding types.
var EmbeddingTypes = []EmbeddingType{
	EmbeddingTypeContent,
	EmbeddingTypeContextual,
	EmbeddingTypeHierarchical,
	EmbeddingTypeSemantic,
}

// Valid reports whether t is a known embedding type.
func (t EmbeddingType) Valid() bool {
	switch t {
	case EmbeddingTypeContent, EmbeddingTypeContextual, EmbeddingTypeHierarchical, EmbeddingTypeSemantic:
		return true
	}
	return false
}

// Embedding is keyed by (ChunkID, Type). Embeddings are never updated;
// changed content produces a new chunk id.
type Embedding struct {
	ChunkID   uuid.UUID     `json:"chunk_id"`
	Type      EmbeddingType `json:"embedding_type"`
	Model     string        `json:"model"`
	Vector    []float32     `json:"vector"`
	CreatedAt time.Time     `json:"created_at"`
}

// Dimension returns the vector length.
func (e *Embedding) Dimension() int {
	return len(e.Vector)
}

// Metric selects how vectors are compared.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dot_product"
)

// Similarity compares two vectors; higher is more similar.
// Euclidean distance d is mapped to 1/(1+d).
func (m Metric) Similarity(a, b []float32) float64 {
	switch m {
	case MetricEuclidean:
		return 1 / (1 + helper.EuclideanDistance(a, b))
	case MetricDotProduct:
		return helper.DotProduct(a, b)
	default:
		return helper.CosineSimilarity(a, b)
	}
}
