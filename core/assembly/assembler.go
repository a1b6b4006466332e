package assembly

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// ChunkLookup loads chunks by id for context expansion.
type ChunkLookup interface {
	Chunks(ctx context.Context, ids []uuid.UUID) ([]*model.Chunk, error)
}

// Assembler turns ranked retrieval results into the final context.
type Assembler struct {
	store  ChunkLookup
	config model.AssemblyConfig
	logger *slog.Logger
}

// NewAssembler creates a new context assembler. A nil store disables expansion.
func NewAssembler(store ChunkLookup, config model.AssemblyConfig, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{store: store, config: config, logger: logger}
}

// Assemble expands, deduplicates, budgets and reorders results.
// Results must be ranked best first. Expansion failures are logged and
// the unexpanded results are used.
func (a *Assembler) Assemble(ctx context.Context, results []*model.RetrievalResult) (*model.AssembledContext, error) {
	assembled := &model.AssembledContext{}
	if len(results) == 0 {
		assembled.Results = []*model.RetrievalResult{}
		return assembled, nil
	}

	selected := append([]*model.RetrievalResult(nil), results...)
	if a.config.Expand && a.config.MaxExpansion > 0 && a.store != nil {
		expanded, err := a.Expand(ctx, results)
		if err != nil {
			if ctx.Err() != nil {
				return nil, helper.NewError("expand context", ctx.Err())
			}
			a.logger.Warn("Context expansion failed, using retrieved chunks only", slog.String("error", err.Error()))
		} else {
			selected = append(selected, expanded...)
			assembled.Expanded = len(expanded)
		}
	}

	rankByScore(selected)
	selected, assembled.Deduplicated = Deduplicate(selected, a.config.RedundancyCeiling)
	if a.config.MaxTokens > 0 {
		selected = Budget(selected, a.config.MaxTokens)
	}
	if a.config.InterleaveSources {
		selected = InterleaveBySource(selected)
	}
	if a.config.MitigateLostMiddle {
		selected = ReorderLostInMiddle(selected)
	}

	for _, r := range selected {
		assembled.TotalTokens += r.Chunk.TokenCount
	}
	assembled.Results = selected

	a.logger.Debug("Assembled context",
		slog.Int("results", len(selected)),
		slog.Int("expanded", assembled.Expanded),
		slog.Int("deduplicated", assembled.Deduplicated),
		slog.Int("tokens", assembled.TotalTokens),
	)
	return assembled, nil
}

// Expand returns up to MaxExpansion context chunks per result: the parent
// first, then the siblings closest in position. Chunks already present
// are never added twice. Each expansion scores the discounted score of
// the result it came from.
func (a *Assembler) Expand(ctx context.Context, results []*model.RetrievalResult) ([]*model.RetrievalResult, error) {
	present := make(map[uuid.UUID]bool, len(results))
	var ids []uuid.UUID
	for _, r := range results {
		present[r.Chunk.ID] = true
	}
	for _, r := range results {
		if r.Chunk.ParentID != nil && !present[*r.Chunk.ParentID] {
			ids = append(ids, *r.Chunk.ParentID)
		}
		for _, id := range r.Chunk.SiblingIDs {
			if !present[id] {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks, err := a.store.Chunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*model.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	var expanded []*model.RetrievalResult
	for _, r := range results {
		if r.ExpandedFrom != nil {
			continue
		}
		var candidates []*model.Chunk
		if r.Chunk.ParentID != nil {
			if parent, ok := byID[*r.Chunk.ParentID]; ok {
				candidates = append(candidates, parent)
			}
		}
		var siblings []*model.Chunk
		for _, id := range r.Chunk.SiblingIDs {
			if sibling, ok := byID[id]; ok {
				siblings = append(siblings, sibling)
			}
		}
		sort.SliceStable(siblings, func(i, j int) bool {
			return distance(r.Chunk, siblings[i]) < distance(r.Chunk, siblings[j])
		})
		candidates = append(candidates, siblings...)

		added := 0
		for _, c := range candidates {
			if added >= a.config.MaxExpansion {
				break
			}
			if present[c.ID] {
				continue
			}
			present[c.ID] = true
			from := r.Chunk.ID
			expanded = append(expanded, &model.RetrievalResult{
				Chunk:         c,
				Score:         r.Score * a.config.ExpansionDiscount,
				EmbeddingType: r.EmbeddingType,
				Strategy:      r.Strategy,
				ExpandedFrom:  &from,
			})
			added++
		}
	}
	return expanded, nil
}

// Deduplicate drops every result whose word-set Jaccard similarity with a
// higher ranked kept result exceeds ceiling. It returns the kept results
// and the number dropped.
func Deduplicate(results []*model.RetrievalResult, ceiling float64) ([]*model.RetrievalResult, int) {
	kept := make([]*model.RetrievalResult, 0, len(results))
	keptWords := make([]map[string]struct{}, 0, len(results))
	seen := make(map[uuid.UUID]bool, len(results))
	dropped := 0

	for _, r := range results {
		if seen[r.Chunk.ID] {
			dropped++
			continue
		}
		words := helper.WordSet(r.Chunk.Content, 2)
		redundant := false
		for _, other := range keptWords {
			if helper.Jaccard(words, other) > ceiling {
				redundant = true
				break
			}
		}
		if redundant {
			dropped++
			continue
		}
		seen[r.Chunk.ID] = true
		kept = append(kept, r)
		keptWords = append(keptWords, words)
	}
	return kept, dropped
}

// Budget keeps results in rank order while they fit into maxTokens.
// The best result is always kept.
func Budget(results []*model.RetrievalResult, maxTokens int) []*model.RetrievalResult {
	var kept []*model.RetrievalResult
	total := 0
	for i, r := range results {
		if i > 0 && total+r.Chunk.TokenCount > maxTokens {
			continue
		}
		total += r.Chunk.TokenCount
		kept = append(kept, r)
	}
	return kept
}

// InterleaveBySource alternates between sources in order of their best
// result, keeping each source's internal ranking.
func InterleaveBySource(results []*model.RetrievalResult) []*model.RetrievalResult {
	var sources []string
	groups := make(map[string][]*model.RetrievalResult)
	for _, r := range results {
		if _, ok := groups[r.Chunk.SourceID]; !ok {
			sources = append(sources, r.Chunk.SourceID)
		}
		groups[r.Chunk.SourceID] = append(groups[r.Chunk.SourceID], r)
	}

	interleaved := make([]*model.RetrievalResult, 0, len(results))
	for len(interleaved) < len(results) {
		for _, source := range sources {
			if group := groups[source]; len(group) > 0 {
				interleaved = append(interleaved, group[0])
				groups[source] = group[1:]
			}
		}
	}
	return interleaved
}

// ReorderLostInMiddle places the ranked results alternately at the front and
// the back so the weakest end up in the middle: ranks 1,3,5,... from the
// start and ...,6,4,2 towards the end.
func ReorderLostInMiddle(results []*model.RetrievalResult) []*model.RetrievalResult {
	reordered := make([]*model.RetrievalResult, len(results))
	front, back := 0, len(results)-1
	for i, r := range results {
		if i%2 == 0 {
			reordered[front] = r
			front++
		} else {
			reordered[back] = r
			back--
		}
	}
	return reordered
}

func rankByScore(results []*model.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func distance(a, b *model.Chunk) float64 {
	return math.Abs(float64(a.StartPos - b.StartPos))
}
