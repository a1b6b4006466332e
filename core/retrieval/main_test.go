package retrieval

import (
	"context"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/model"
)

type stubStore struct {
	nearest map[model.EmbeddingType][]*model.ScoredChunk
	keyword []*model.ScoredChunk
	terms   []string
}

func (s *stubStore) Nearest(_ context.Context, _ []float32, embeddingType model.EmbeddingType, _ model.Metric, k int, threshold float64, _ model.QueryFilter) ([]*model.ScoredChunk, error) {
	var out []*model.ScoredChunk
	for _, sc := range s.nearest[embeddingType] {
		if sc.Score >= threshold {
			out = append(out, &model.ScoredChunk{Chunk: sc.Chunk, Score: sc.Score})
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *stubStore) KeywordSearch(_ context.Context, terms []string, k int, _ model.QueryFilter) ([]*model.ScoredChunk, error) {
	s.terms = terms
	out := s.keyword
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

type stubEmbedder struct {
	types []model.EmbeddingType
}

func (e stubEmbedder) EmbedQuery(context.Context, string, model.EmbeddingType) ([]float32, error) {
	return []float32{1}, nil
}

func (e stubEmbedder) Types() []model.EmbeddingType {
	if len(e.types) == 0 {
		return []model.EmbeddingType{model.EmbeddingTypeContent}
	}
	return e.types
}

func testChunk(scale model.Scale, heading, content string) *model.Chunk {
	return &model.Chunk{
		ID:           uuid.New(),
		DocumentID:   uuid.New(),
		SourceID:     "handbook",
		Scale:        scale,
		Heading:      heading,
		Content:      content,
		QualityScore: 0.8,
	}
}

func scored(chunk *model.Chunk, score float64) *model.ScoredChunk {
	return &model.ScoredChunk{Chunk: chunk, Score: score}
}
