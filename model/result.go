package model

import (
	"time"

	"github.com/google/uuid"
)

// RetrievalResult represents a chunk retrieved by a query
type RetrievalResult struct {
	Chunk           *Chunk        `json:"chunk"`
	Score           float64       `json:"score"`            // Final ranking score
	SimilarityScore float64       `json:"similarity_score"` // Raw vector similarity
	KeywordScore    float64       `json:"keyword_score,omitempty"`
	EmbeddingType   EmbeddingType `json:"embedding_type"`
	Strategy        StrategyName  `json:"strategy"`
	ExpandedFrom    *uuid.UUID    `json:"expanded_from,omitempty"` // Set for chunks added as context of another result
}

// AssembledContext is the final ordered context after expansion,
// redundancy reduction and reordering.
type AssembledContext struct {
	Results      []*RetrievalResult `json:"results"`
	Expanded     int                `json:"expanded"`
	Deduplicated int                `json:"deduplicated"`
	TotalTokens  int                `json:"total_tokens"`
}

// ResponseMetadata describes how a query response was produced.
type ResponseMetadata struct {
	Strategy            StrategyName  `json:"strategy"`
	Metric              Metric        `json:"metric"`
	TotalResults        int           `json:"total_results"`
	RetrievedResults    int           `json:"retrieved_results"`
	Expanded            int           `json:"expanded"`
	Deduplicated        int           `json:"deduplicated"`
	TotalTokens         int           `json:"total_tokens"`
	SimilarityThreshold float64       `json:"similarity_threshold"`
	ProcessingTime      time.Duration `json:"processing_time"`
}

// QueryResponse is returned for every retrieval request, including empty ones.
type QueryResponse struct {
	Chunks        []*RetrievalResult    `json:"chunks"`
	Metadata      ResponseMetadata      `json:"metadata"`
	QueryAnalysis QueryAnalysis         `json:"query_analysis"`
	Confidence    *ConfidenceAssessment `json:"confidence"`
	Citations     []*Citation           `json:"citations,omitempty"`
	Fallback      *FallbackResponse     `json:"fallback,omitempty"`
}
