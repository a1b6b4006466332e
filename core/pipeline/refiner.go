package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// WordJaccardSimilarity compares sentences by the Jaccard similarity of
// their words longer than two characters.
func WordJaccardSimilarity() SimilarityFunc {
	return func(_ context.Context, a, b string) (float64, error) {
		return helper.WordJaccard(a, b, 2), nil
	}
}

// EmbeddingSimilarity compares sentences by the cosine similarity of their provider embeddings.
func EmbeddingSimilarity(provider Provider, modelName string) SimilarityFunc {
	return func(ctx context.Context, a, b string) (float64, error) {
		va, err := provider.Embed(ctx, a, modelName)
		if err != nil {
			return 0, err
		}
		vb, err := provider.Embed(ctx, b, modelName)
		if err != nil {
			return 0, err
		}
		return helper.CosineSimilarity(va, vb), nil
	}
}

// Refiner subdivides chunks where adjacent sentence similarity drops below a threshold.
type Refiner struct {
	similarity SimilarityFunc
	threshold  float64
	minChars   int
	counter    TokenCounter
	logger     *slog.Logger
}

// NewRefiner creates a refiner. A nil similarity uses word Jaccard.
func NewRefiner(similarity SimilarityFunc, threshold float64, minChars int, counter TokenCounter, logger *slog.Logger) *Refiner {
	if similarity == nil {
		similarity = WordJaccardSimilarity()
	}
	if counter == nil {
		counter = ApproximateCounter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refiner{
		similarity: similarity,
		threshold:  threshold,
		minChars:   minChars,
		counter:    counter,
		logger:     logger,
	}
}

// Refine returns the sub-chunks of chunk, or the chunk itself when it has
// at most two sentences, no boundary is found, every sub-span falls below
// the character floor, or the similarity function fails.
func (r *Refiner) Refine(ctx context.Context, chunk *model.Chunk) (result []*model.Chunk) {
	original := []*model.Chunk{chunk}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Boundary refinement panicked, keeping original chunk", slog.String("chunk_id", chunk.ID.String()), slog.String("panic", fmt.Sprint(rec)))
			result = original
		}
	}()

	if chunk.Scale != model.ScaleParagraph && chunk.Scale != model.ScaleSentence {
		return original
	}
	spans := helper.SentenceSpans(chunk.Content)
	if len(spans) <= 2 {
		return original
	}

	// A boundary before sentence i+1 is never placed at the final sentence.
	segments := [][2]int{{0, 0}}
	for i := 0; i < len(spans)-1; i++ {
		a := chunk.Content[spans[i].Start:spans[i].End]
		b := chunk.Content[spans[i+1].Start:spans[i+1].End]
		sim, err := r.similarity(ctx, a, b)
		if err != nil {
			r.logger.Warn("Boundary refinement failed, keeping original chunk", slog.String("chunk_id", chunk.ID.String()), slog.String("error", err.Error()))
			return original
		}
		if sim < r.threshold && i+1 < len(spans)-1 {
			segments[len(segments)-1][1] = i
			segments = append(segments, [2]int{i + 1, 0})
		}
	}
	segments[len(segments)-1][1] = len(spans) - 1
	if len(segments) == 1 {
		return original
	}

	var subs []*model.Chunk
	for _, seg := range segments {
		start, end := spans[seg[0]].Start, spans[seg[1]].End
		content := strings.TrimSpace(chunk.Content[start:end])
		if utf8.RuneCountInString(content) <= r.minChars {
			continue
		}
		metadata := chunk.Metadata.Clone()
		if metadata == nil {
			metadata = model.Metadata{}
		}
		metadata["refined_from"] = chunk.ID.String()
		metadata["chunking_method"] = "semantic_boundary"

		sub := *chunk
		sub.ID = uuid.New()
		sub.Content = content
		sub.TokenCount = r.counter.Count(content)
		sub.StartPos = chunk.StartPos + start
		sub.EndPos = chunk.StartPos + end
		sub.HierarchyPath = append([]string(nil), chunk.HierarchyPath...)
		sub.ParentID = nil
		sub.ChildIDs = nil
		sub.SiblingIDs = nil
		sub.Refined = true
		sub.Metadata = metadata
		sub.CreatedAt = time.Now()
		subs = append(subs, &sub)
	}

	if len(subs) == 0 {
		return original
	}
	return subs
}
