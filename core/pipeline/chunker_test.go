package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *model.Document {
	doc := &model.Document{
		ID:       uuid.New(),
		SourceID: "handbook",
		Version:  1,
		Title:    "Operations Handbook",
		Content:  helper.SampleHandbook(),
	}
	doc.ComputeStats()
	return doc
}

func TestChunkerChunk(t *testing.T) {
	config := model.DefaultConfig().Chunking
	chunker := NewChunker(config, nil, nil)
	doc := sampleDocument()

	set, stats := chunker.Chunk(context.Background(), doc, nil)
	require.NotNil(t, set)

	t.Run("Valid call produces every scale", func(t *testing.T) {
		assert.GreaterOrEqual(t, len(set.ByScale(model.ScaleDocument)), 1)
		assert.GreaterOrEqual(t, len(set.ByScale(model.ScaleSection)), 3)

		paragraphsPerSection := make(map[string]int)
		for _, c := range set.ByScale(model.ScaleParagraph) {
			paragraphsPerSection[c.TopLevelAncestor()]++
		}
		for _, heading := range helper.SampleHandbookHeadings {
			assert.GreaterOrEqual(t, paragraphsPerSection[heading], 1, heading)
		}
		assert.Equal(t, set.Len(), stats.Created)
		assert.Equal(t, len(set.ByScale(model.ScaleSentence)), stats.ByScale[model.ScaleSentence])
	})

	t.Run("Token counts stay within the scale bands", func(t *testing.T) {
		for _, c := range set.Chunks {
			band := config.Band(c.Scale)
			assert.GreaterOrEqual(t, c.TokenCount, band.Min, c.Content)
			assert.LessOrEqual(t, c.TokenCount, band.Max, c.Content)
			assert.Equal(t, doc.Content[c.StartPos:c.EndPos], c.Content)
		}
	})

	t.Run("Average quality is above the floor", func(t *testing.T) {
		total := 0.0
		for _, c := range set.Chunks {
			total += c.QualityScore
			assert.GreaterOrEqual(t, c.QualityScore, config.MinQuality)
		}
		assert.Greater(t, total/float64(set.Len()), 0.4)
	})

	t.Run("Parents are one scale coarser and enclose the child", func(t *testing.T) {
		for _, c := range set.Chunks {
			parent, ok := set.Parent(c)
			if c.Scale == model.ScaleDocument {
				assert.False(t, ok)
				continue
			}
			require.True(t, ok, "chunk %s at %s has no parent", c.ID, c.Scale)
			coarser, _ := c.Scale.Coarser()
			assert.Equal(t, coarser, parent.Scale)
			assert.Greater(t, ParentChildScore(parent, c, len(doc.Content)), 0.0)
			assert.LessOrEqual(t, parent.StartPos, c.StartPos)
			assert.GreaterOrEqual(t, parent.EndPos, c.EndPos)
			assert.Contains(t, parent.ChildIDs, c.ID)
		}
	})

	t.Run("No chunk is its own ancestor", func(t *testing.T) {
		for _, c := range set.Chunks {
			seen := map[uuid.UUID]bool{c.ID: true}
			current := c
			for {
				parent, ok := set.Parent(current)
				if !ok {
					break
				}
				require.False(t, seen[parent.ID])
				require.Greater(t, parent.Scale.Rank(), current.Scale.Rank())
				seen[parent.ID] = true
				current = parent
			}
		}
	})

	t.Run("Siblings share scale and top level ancestor", func(t *testing.T) {
		for _, c := range set.ByScale(model.ScaleParagraph) {
			siblings := set.Siblings(c)
			assert.Len(t, siblings, 3)
			for _, s := range siblings {
				assert.Equal(t, c.Scale, s.Scale)
				assert.Equal(t, c.TopLevelAncestor(), s.TopLevelAncestor())
				assert.NotEqual(t, c.ID, s.ID)
			}
		}
	})

	t.Run("Chunk indexes follow the sorted order", func(t *testing.T) {
		for i, c := range set.Chunks {
			assert.Equal(t, i, c.ChunkIndex)
			assert.Equal(t, doc.ID, c.DocumentID)
			assert.Equal(t, "handbook", c.SourceID)
			require.NotNil(t, c.Page)
			assert.Equal(t, 1, *c.Page)
		}
	})
}

func TestChunkerSplitsOversizedNodes(t *testing.T) {
	config := model.DefaultConfig().Chunking
	config.Bands[model.ScaleParagraph] = model.TokenBand{Min: 10, Max: 60}
	chunker := NewChunker(config, nil, nil)
	doc := sampleDocument()

	set, _ := chunker.Build(doc, ParseStructure(doc.Content))

	t.Run("Oversized paragraphs become packed sentence groups", func(t *testing.T) {
		paragraphs := set.ByScale(model.ScaleParagraph)
		assert.Greater(t, len(paragraphs), 12)
		for _, c := range paragraphs {
			assert.LessOrEqual(t, c.TokenCount, 60)
			assert.GreaterOrEqual(t, c.TokenCount, 10)
			assert.True(t, strings.HasSuffix(c.Content, "."))
			assert.Equal(t, true, c.Metadata["split"])
		}
	})

	t.Run("Oversized sentences are split by words", func(t *testing.T) {
		long := strings.Repeat("word ", 150) + "end."
		pieces := chunker.splitWords(long, helper.Span{Start: 0, End: len(long)}, 60)
		require.Greater(t, len(pieces), 1)
		for _, p := range pieces {
			assert.LessOrEqual(t, chunker.counter.Count(long[p.Start:p.End]), 60)
		}
		assert.Equal(t, len(long), pieces[len(pieces)-1].End)
	})
}

func TestChunkerDropsShortNodes(t *testing.T) {
	chunker := NewChunker(model.DefaultConfig().Chunking, nil, nil)
	doc := &model.Document{
		ID:       uuid.New(),
		SourceID: "short",
		Version:  1,
		Content:  "Tiny.\n\nThis paragraph has enough words to pass the paragraph minimum of ten tokens easily.",
	}

	set, stats := chunker.Build(doc, ParseStructure(doc.Content))
	for _, c := range set.Chunks {
		assert.NotEqual(t, "Tiny.", c.Content)
	}
	assert.Greater(t, stats.Rejected, 0)
}

func TestChunkerWithRefinement(t *testing.T) {
	config := model.DefaultConfig().Chunking
	config.MinQuality = 0
	chunker := NewChunker(config, nil, nil)
	refiner := NewRefiner(nil, 0.3, 50, nil, nil)

	content := "## Operations\n\n" + refinableParagraph
	doc := &model.Document{ID: uuid.New(), SourceID: "ops", Version: 1, Content: content}

	set, stats := chunker.Chunk(context.Background(), doc, refiner)
	assert.Equal(t, 1, stats.Refined)

	refined := 0
	for _, c := range set.ByScale(model.ScaleParagraph) {
		if c.Refined {
			refined++
			assert.Greater(t, len(c.Content), 50)
			assert.Equal(t, doc.Content[c.StartPos:c.EndPos], c.Content)
		}
	}
	assert.Equal(t, 2, refined)
}
