package retrieval

import (
	"context"
	"testing"

	"github.com/siherrmann/grounder/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorOnlyStrategyRetrieve(t *testing.T) {
	a := testChunk(model.ScaleParagraph, "", "Install the agent.")
	b := testChunk(model.ScaleParagraph, "", "Restart the agent.")
	store := &stubStore{nearest: map[model.EmbeddingType][]*model.ScoredChunk{
		model.EmbeddingTypeContextual: {scored(b, 0.7), scored(a, 0.9)},
	}}
	engine := NewEngine(store, stubEmbedder{}, model.DefaultConfig().Retrieval, nil)
	strategy := NewVectorOnlyStrategy(engine)

	t.Run("Vector-only retrieve on the query's embedding type", func(t *testing.T) {
		query := Normalize(model.RetrievalQuery{Query: "agent", EmbeddingType: model.EmbeddingTypeContextual, SimilarityThreshold: 0.3})
		analysis := engine.Analyze(context.Background(), query.Query)

		results, err := strategy.Retrieve(context.Background(), &query, &analysis)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, a.ID, results[0].Chunk.ID)
		assert.Equal(t, 0.9, results[0].Score)
		assert.Equal(t, model.EmbeddingTypeContextual, results[0].EmbeddingType)
		assert.Equal(t, model.StrategyVectorOnly, results[0].Strategy)
	})

	t.Run("Threshold drops low similarities", func(t *testing.T) {
		query := Normalize(model.RetrievalQuery{Query: "agent", EmbeddingType: model.EmbeddingTypeContextual, SimilarityThreshold: 0.8})
		results, err := strategy.Retrieve(context.Background(), &query, &model.QueryAnalysis{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, a.ID, results[0].Chunk.ID)
	})
}

func TestSortResultsTies(t *testing.T) {
	rotated := testChunk(model.ScaleSentence, "", "Agent the install.")
	rotated.StartPos = 40
	exact := testChunk(model.ScaleSentence, "", "Then install the agent.")
	exact.StartPos = 80
	earlier := testChunk(model.ScaleSentence, "", "The install agent.")
	earlier.StartPos = 0
	store := &stubStore{nearest: map[model.EmbeddingType][]*model.ScoredChunk{
		model.EmbeddingTypeContent: {scored(rotated, 1), scored(earlier, 1), scored(exact, 1)},
	}}
	engine := NewEngine(store, stubEmbedder{}, model.DefaultConfig().Retrieval, nil)

	t.Run("Tied scores prefer the chunk containing the query, then the earlier chunk", func(t *testing.T) {
		query := Normalize(model.RetrievalQuery{Query: "Install the  AGENT", MaxResults: 3})
		results, err := NewVectorOnlyStrategy(engine).Retrieve(context.Background(), &query, &model.QueryAnalysis{})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, exact.ID, results[0].Chunk.ID)
		assert.Equal(t, earlier.ID, results[1].Chunk.ID)
		assert.Equal(t, rotated.ID, results[2].Chunk.ID)
	})

	t.Run("Tied candidates beyond max results are considered", func(t *testing.T) {
		result, err := engine.Retrieve(context.Background(), model.RetrievalQuery{Query: "install the agent", MaxResults: 1})
		require.NoError(t, err)
		require.Len(t, result.Results, 1)
		assert.Equal(t, exact.ID, result.Results[0].Chunk.ID)
		assert.Equal(t, 3, result.Total)
	})

	t.Run("Partial word matches do not count as containment", func(t *testing.T) {
		results := []*model.RetrievalResult{
			{Chunk: testChunk(model.ScaleSentence, "", "Reinstall the agents."), Score: 1},
			{Chunk: testChunk(model.ScaleSentence, "", "Agents install the agent."), Score: 1},
		}
		results[0].Chunk.StartPos = 0
		results[1].Chunk.StartPos = 10
		sortResults(results, "install the agent")
		assert.Equal(t, "Agents install the agent.", results[0].Chunk.Content)
	})
}

func TestHybridStrategyRetrieve(t *testing.T) {
	a := testChunk(model.ScaleParagraph, "", "Install the agent package.")
	b := testChunk(model.ScaleParagraph, "", "Restart the service.")
	c := testChunk(model.ScaleParagraph, "", "The agent package is signed.")
	d := testChunk(model.ScaleParagraph, "", "Package mirrors.")
	store := &stubStore{
		nearest: map[model.EmbeddingType][]*model.ScoredChunk{
			model.EmbeddingTypeContent: {scored(a, 0.8), scored(b, 0.6)},
		},
		keyword: []*model.ScoredChunk{scored(a, 1), scored(c, 1), scored(d, 0.5)},
	}
	engine := NewEngine(store, stubEmbedder{}, model.DefaultConfig().Retrieval, nil)
	strategy := NewHybridStrategy(engine)

	t.Run("Hybrid retrieve combines vector and keyword scores", func(t *testing.T) {
		query := Normalize(model.RetrievalQuery{Query: "install agent package", Strategy: model.StrategyHybrid, SimilarityThreshold: 0.3})
		analysis := engine.Analyze(context.Background(), query.Query)

		results, err := strategy.Retrieve(context.Background(), &query, &analysis)
		require.NoError(t, err)
		assert.Equal(t, []string{"install", "agent", "package"}, store.terms)

		require.Len(t, results, 3)
		assert.Equal(t, a.ID, results[0].Chunk.ID)
		assert.InDelta(t, 0.7*0.8+0.3*1, results[0].Score, 1e-9)
		assert.Equal(t, 1.0, results[0].KeywordScore)
		assert.Equal(t, b.ID, results[1].Chunk.ID)
		assert.InDelta(t, 0.7*0.6, results[1].Score, 1e-9)
		assert.Equal(t, c.ID, results[2].Chunk.ID, "keyword-only hit at the threshold is kept")
		assert.InDelta(t, 0.3, results[2].Score, 1e-9)
		assert.Zero(t, results[2].SimilarityScore)

		assert.Equal(t, model.EmbeddingTypeContent, results[0].EmbeddingType)
		assert.Equal(t, model.EmbeddingTypeContent, results[1].EmbeddingType)
		assert.Equal(t, model.EmbeddingTypeKeyword, results[2].EmbeddingType, "keyword-only hit is labelled lexical")
	})
}

func TestMultiScaleStrategyRetrieve(t *testing.T) {
	a := testChunk(model.ScaleSection, "Installation", "Install the agent.")
	b := testChunk(model.ScaleSentence, "Installation", "Configure the token.")
	store := &stubStore{nearest: map[model.EmbeddingType][]*model.ScoredChunk{
		model.EmbeddingTypeContent:    {scored(a, 0.9)},
		model.EmbeddingTypeContextual: {scored(b, 0.95), scored(a, 0.5)},
	}}
	engine := NewEngine(store, stubEmbedder{}, model.DefaultConfig().Retrieval, nil)
	strategy := NewMultiScaleStrategy(engine)
	types := []model.EmbeddingType{model.EmbeddingTypeContent, model.EmbeddingTypeContextual}

	t.Run("Max merge keeps the best similarity and its type", func(t *testing.T) {
		query := Normalize(model.RetrievalQuery{Query: "agent", EmbeddingTypes: types, Merge: model.MergeMax, SimilarityThreshold: 0.3})
		results, err := strategy.Retrieve(context.Background(), &query, &model.QueryAnalysis{})
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, b.ID, results[0].Chunk.ID)
		assert.Equal(t, 0.95, results[0].Score)
		assert.Equal(t, model.EmbeddingTypeContextual, results[0].EmbeddingType)
		assert.Equal(t, a.ID, results[1].Chunk.ID)
		assert.Equal(t, 0.9, results[1].Score)
		assert.Equal(t, model.EmbeddingTypeContent, results[1].EmbeddingType)
		assert.Equal(t, model.StrategyMultiScale, results[1].Strategy)
	})

	t.Run("Weighted average uses the type weights of matched types", func(t *testing.T) {
		query := Normalize(model.RetrievalQuery{Query: "agent", EmbeddingTypes: types, Merge: model.MergeWeightedAverage, SimilarityThreshold: 0.3})
		results, err := strategy.Retrieve(context.Background(), &query, &model.QueryAnalysis{})
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, b.ID, results[0].Chunk.ID)
		assert.InDelta(t, 0.95, results[0].Score, 1e-9)
		assert.InDelta(t, (1*0.9+0.8*0.5)/1.8, results[1].Score, 1e-9)
	})

	t.Run("Embedder types are used when the query names none", func(t *testing.T) {
		engine := NewEngine(store, stubEmbedder{types: types}, model.DefaultConfig().Retrieval, nil)
		query := Normalize(model.RetrievalQuery{Query: "agent", SimilarityThreshold: 0.3})
		results, err := NewMultiScaleStrategy(engine).Retrieve(context.Background(), &query, &model.QueryAnalysis{})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
}

func TestContextualStrategyRetrieve(t *testing.T) {
	install := testChunk(model.ScaleSection, "Installation Guide", "Copy the binary to every node.")
	storage := testChunk(model.ScaleParagraph, "Storage", "Replicas store copies.")
	store := &stubStore{nearest: map[model.EmbeddingType][]*model.ScoredChunk{
		model.EmbeddingTypeContent: {scored(storage, 0.65), scored(install, 0.6)},
	}}
	engine := NewEngine(store, stubEmbedder{}, model.DefaultConfig().Retrieval, nil)
	strategy := NewContextualStrategy(engine)

	t.Run("Procedure intent boosts guide sections", func(t *testing.T) {
		query := Normalize(model.RetrievalQuery{Query: "How do I install the agent?", Strategy: model.StrategyContextual, SimilarityThreshold: 0.3})
		analysis := engine.Analyze(context.Background(), query.Query)
		require.Equal(t, model.IntentProcedure, analysis.Intent)

		results, err := strategy.Retrieve(context.Background(), &query, &analysis)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, install.ID, results[0].Chunk.ID)
		assert.InDelta(t, 0.75, results[0].Score, 1e-9)
		assert.Equal(t, 0.6, results[0].SimilarityScore)
		assert.InDelta(t, 0.65, results[1].Score, 1e-9)
	})

	t.Run("Heading term overlap adds half the boost", func(t *testing.T) {
		query := Normalize(model.RetrievalQuery{Query: "storage replicas", SimilarityThreshold: 0.3})
		analysis := engine.Analyze(context.Background(), query.Query)
		require.Equal(t, model.IntentGeneral, analysis.Intent)

		results, err := strategy.Retrieve(context.Background(), &query, &analysis)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, storage.ID, results[0].Chunk.ID)
		assert.InDelta(t, 0.65+0.075, results[0].Score, 1e-9)
	})
}

func TestIntentMatches(t *testing.T) {
	definition := testChunk(model.ScaleSentence, "", "An incident is an unplanned interruption.")
	list := testChunk(model.ScaleParagraph, "", "- disks\n- replicas\n- snapshots")
	comparison := testChunk(model.ScaleParagraph, "", "Replicas are faster than snapshots.")

	assert.True(t, IntentMatches(model.IntentDefinition, definition))
	assert.True(t, IntentMatches(model.IntentList, list))
	assert.True(t, IntentMatches(model.IntentComparison, comparison))
	assert.False(t, IntentMatches(model.IntentGeneral, definition))
	assert.False(t, IntentMatches(model.IntentList, definition))
}
