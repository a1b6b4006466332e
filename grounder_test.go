package grounder

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/core/graph"
	"github.com/siherrmann/grounder/database/memory"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() model.Config {
	config := model.DefaultConfig()
	config.Embedding.Model = "hashing-64"
	config.Embedding.Dimension = 64
	config.Embedding.Types = model.EmbeddingTypes
	config.Embedding.MaxRetries = 0
	config.Embedding.RetryBackoff = time.Millisecond
	return config
}

func newTestGrounder(t *testing.T) *Grounder {
	t.Helper()
	logger := helper.NewLogger(io.Discard, slog.LevelError)
	g, err := NewGrounderWithStore(memory.NewStore(), nil, testConfig(), logger)
	require.NoError(t, err, "Expected NewGrounderWithStore to not return an error")
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func handbook(sourceID string, version int) *model.Document {
	return &model.Document{
		SourceID: sourceID,
		Version:  version,
		Title:    "Operations Handbook",
		Content:  helper.SampleHandbook(),
	}
}

func TestNewGrounderWithStore(t *testing.T) {
	t.Run("Valid call NewGrounderWithStore", func(t *testing.T) {
		g := newTestGrounder(t)
		assert.NotNil(t, g.Engine)
		assert.NotNil(t, g.Orchestrator)
		assert.Nil(t, g.Refiner, "Expected refinement to be disabled by default")
	})

	t.Run("Refiner is built when enabled", func(t *testing.T) {
		config := testConfig()
		config.Chunking.Refine = true
		g, err := NewGrounderWithStore(memory.NewStore(), nil, config, helper.NewLogger(io.Discard, slog.LevelError))
		require.NoError(t, err)
		assert.NotNil(t, g.Refiner)
	})

	t.Run("Invalid config", func(t *testing.T) {
		config := testConfig()
		config.Embedding.Dimension = 0
		_, err := NewGrounderWithStore(memory.NewStore(), nil, config, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestIngestHandbook(t *testing.T) {
	g := newTestGrounder(t)
	ctx := context.Background()

	result, err := g.IngestDocument(ctx, handbook("ops-handbook", 1))
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.JobID)
	assert.Greater(t, result.Chunks.AverageQuality, 0.4)

	job, err := g.Job(ctx, *result.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.GreaterOrEqual(t, job.Stats.ChunksByScale[model.ScaleDocument], 1)
	assert.GreaterOrEqual(t, job.Stats.ChunksByScale[model.ScaleSection], 3)

	chunks, err := g.Store.ChunksByDocument(ctx, result.Document.ID)
	require.NoError(t, err)

	paragraphsPerSection := map[string]int{}
	for _, c := range chunks {
		band := g.Config().Chunking.Band(c.Scale)
		assert.True(t, band.Contains(c.TokenCount), "chunk %s of scale %s has %d tokens", c.ID, c.Scale, c.TokenCount)
		if c.Scale == model.ScaleParagraph {
			paragraphsPerSection[c.TopLevelAncestor()]++
		}
	}
	for _, heading := range helper.SampleHandbookHeadings {
		assert.GreaterOrEqual(t, paragraphsPerSection[heading], 1, "section %q has no paragraph chunk", heading)
	}

	stats, err := g.SourceStats(ctx, "ops-handbook")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, result.Chunks.Stored, stats.Chunks)
}

func TestIngestBatchWithMalformedDocument(t *testing.T) {
	g := newTestGrounder(t)
	ctx := context.Background()

	good := handbook("batch-good", 1)
	empty := &model.Document{SourceID: "batch-empty", Version: 1, Title: "Empty"}

	batch := g.IngestBatch(ctx, []*model.Document{good, empty})
	assert.False(t, batch.Success)
	assert.Equal(t, 2, batch.TotalDocuments)
	assert.Equal(t, 1, batch.SuccessCount)
	assert.Equal(t, 1, batch.FailureCount)
	require.Len(t, batch.Results, 2)
	assert.True(t, batch.Results[0].Success)
	assert.False(t, batch.Results[1].Success)

	chunks, err := g.Store.ChunksByDocument(ctx, batch.Results[0].Document.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, batch.Results[0].Chunks.Stored, "Expected the first document to be unaffected")
}

func TestQuery(t *testing.T) {
	g := newTestGrounder(t)
	ctx := context.Background()

	_, err := g.IngestDocument(ctx, handbook("ops-handbook", 1))
	require.NoError(t, err)

	for _, strategy := range []model.StrategyName{model.StrategyVectorOnly, model.StrategyHybrid, model.StrategyMultiScale, model.StrategyContextual} {
		t.Run("Self retrieval with "+string(strategy), func(t *testing.T) {
			sentence := helper.SampleHandbookSentence(1, 2, 3)
			response, err := g.Query(ctx, model.RetrievalQuery{
				Query:               sentence,
				Strategy:            strategy,
				MaxResults:          10,
				SimilarityThreshold: 0,
			})
			require.NoError(t, err)
			require.NotEmpty(t, response.Chunks)

			found := false
			for _, r := range response.Chunks {
				if strings.Contains(r.Chunk.Content, sentence) {
					found = true
				}
			}
			assert.True(t, found, "Expected the verbatim sentence to be retrieved")
			assert.Equal(t, strategy, response.Metadata.Strategy)
			assert.Len(t, response.Citations, len(response.Chunks))
			require.NotNil(t, response.Confidence)
		})
	}

	t.Run("Every handbook sentence retrieves itself", func(t *testing.T) {
		for s := range helper.SampleHandbookHeadings {
			for p := 0; p < 4; p++ {
				for i := 0; i < 5; i++ {
					sentence := helper.SampleHandbookSentence(s, p, i)
					response, err := g.Query(ctx, model.RetrievalQuery{
						Query:               sentence,
						Strategy:            model.StrategyVectorOnly,
						MaxResults:          5,
						SimilarityThreshold: 0,
					})
					require.NoError(t, err)

					found := false
					for _, r := range response.Chunks {
						if strings.Contains(r.Chunk.Content, sentence) {
							found = true
						}
					}
					assert.True(t, found, "Expected sentence %d.%d.%d to be in the assembled context", s, p, i)
				}
			}
		}
	})

	t.Run("Unrelated query above a high threshold falls back", func(t *testing.T) {
		response, err := g.Query(ctx, model.RetrievalQuery{
			Query:               "What is the capital of France?",
			MaxResults:          5,
			SimilarityThreshold: 0.99,
		})
		require.NoError(t, err, "Expected an empty result to not be an error")
		assert.Empty(t, response.Chunks)
		require.NotNil(t, response.Fallback)
		assert.Equal(t, model.FallbackNoRelevantSources, response.Fallback.Strategy)
		assert.NotEmpty(t, response.Fallback.Suggestions)
		assert.Equal(t, model.ConfidenceLow, response.Confidence.Level)
	})

	t.Run("Invalid query", func(t *testing.T) {
		_, err := g.Query(ctx, model.RetrievalQuery{Query: ""})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	wordless := []struct {
		name  string
		query string
	}{
		{"Question marks", "???"},
		{"Whitespace", "   "},
		{"Ellipsis", "..."},
		{"Punctuation and newlines", "!\n-\t;"},
	}
	for _, tt := range wordless {
		t.Run("Query without words: "+tt.name, func(t *testing.T) {
			response, err := g.Query(ctx, model.RetrievalQuery{Query: tt.query})
			assert.Nil(t, response)
			assert.ErrorIs(t, err, model.ErrValidation)
			assert.NotErrorIs(t, err, model.ErrProvider, "Expected the query to be rejected before embedding")
		})
	}
}

func TestAssessAnswer(t *testing.T) {
	g := newTestGrounder(t)
	ctx := context.Background()

	_, err := g.IngestDocument(ctx, handbook("ops-handbook", 1))
	require.NoError(t, err)

	sentence := helper.SampleHandbookSentence(2, 1, 0)
	response, err := g.Query(ctx, model.RetrievalQuery{Query: sentence, MaxResults: 5, SimilarityThreshold: 0})
	require.NoError(t, err)
	require.NotEmpty(t, response.Chunks)

	t.Run("Citation of an absent source is invalid", func(t *testing.T) {
		answer := "The responder escalates every outage within minutes [Source: unknown-manual, p. 4]."
		assessment := g.AssessAnswer(response, answer, true)

		require.Len(t, assessment.Citations.Citations, 1)
		assert.False(t, assessment.Citations.Citations[0].Valid)
		assert.Equal(t, 0.0, assessment.Citations.Quality)
		require.NotNil(t, assessment.Confidence.Components.Content)
		assert.Equal(t, 0.0, *assessment.Confidence.Components.Content)
	})

	t.Run("Numbered citation of retrieved content is valid", func(t *testing.T) {
		first := helper.SplitSentences(response.Chunks[0].Chunk.Content)[0]
		answer := strings.TrimSuffix(first, ".") + " [1]."
		assessment := g.AssessAnswer(response, answer, true)

		require.Len(t, assessment.Citations.Citations, 1)
		assert.True(t, assessment.Citations.Citations[0].Valid)
		assert.Equal(t, 1.0, assessment.Citations.Quality)
		assert.Equal(t, "ops-handbook", assessment.Citations.Citations[0].SourceID)
		assert.NotEmpty(t, assessment.Citations.Bibliography)
	})

	t.Run("Better citations never lower confidence", func(t *testing.T) {
		first := helper.SplitSentences(response.Chunks[0].Chunk.Content)[0]
		valid := g.AssessAnswer(response, strings.TrimSuffix(first, ".")+" [1].", true)
		invalid := g.AssessAnswer(response, strings.TrimSuffix(first, ".")+" [Source: unknown-manual, p. 4].", true)
		assert.GreaterOrEqual(t, valid.Confidence.Score, invalid.Confidence.Score)
	})
}

func TestJobs(t *testing.T) {
	g := newTestGrounder(t)
	ctx := context.Background()

	t.Run("Unknown job", func(t *testing.T) {
		_, err := g.Job(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Cancel unknown job", func(t *testing.T) {
		err := g.CancelJob(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestNavigate(t *testing.T) {
	g := newTestGrounder(t)
	ctx := context.Background()

	result, err := g.IngestDocument(ctx, handbook("nav-handbook", 1))
	require.NoError(t, err)
	chunks, err := g.Store.ChunksByDocument(ctx, result.Document.ID)
	require.NoError(t, err)

	var root, leaf *model.Chunk
	for _, c := range chunks {
		if c.Scale == model.ScaleDocument && root == nil {
			root = c
		}
		if c.Scale == model.ScaleParagraph && c.ParentID != nil && leaf == nil {
			leaf = c
		}
	}
	require.NotNil(t, root, "Expected a document scale chunk")
	require.NotNil(t, leaf, "Expected a linked paragraph chunk")

	t.Run("Ancestors climb toward the document", func(t *testing.T) {
		ancestors, err := g.Ancestors(ctx, leaf.ID)
		require.NoError(t, err)
		require.NotEmpty(t, ancestors)
		assert.Equal(t, *leaf.ParentID, ancestors[0].ID)

		rank := leaf.Scale.Rank()
		for _, a := range ancestors {
			assert.Greater(t, a.Scale.Rank(), rank, "Expected every ancestor to be coarser")
			rank = a.Scale.Rank()
		}
	})

	t.Run("Navigate children of the document chunk", func(t *testing.T) {
		results, err := g.Navigate(ctx, root.ID, 1, graph.RelationChild)
		require.NoError(t, err)
		assert.Equal(t, root.ID, results[0].Chunk.ID)
		assert.Len(t, results, len(root.ChildIDs)+1)
		for _, r := range results[1:] {
			assert.Equal(t, graph.RelationChild, r.Relation)
			assert.Equal(t, 1, r.Distance)
		}
	})

	t.Run("Navigate from unknown chunk", func(t *testing.T) {
		_, err := g.Navigate(ctx, uuid.New(), 2)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}
