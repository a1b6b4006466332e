package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	t.Run("Split on terminal punctuation", func(t *testing.T) {
		sentences := SplitSentences("Question one? Statement two. Exclamation three!")
		assert.Equal(t, []string{"Question one?", "Statement two.", "Exclamation three!"}, sentences)
	})

	t.Run("Abbreviations do not end a sentence", func(t *testing.T) {
		sentences := SplitSentences("Use a tool, e.g. a hammer. Then stop.")
		require.Len(t, sentences, 2)
		assert.Equal(t, "Use a tool, e.g. a hammer.", sentences[0])
	})

	t.Run("Decimal numbers do not end a sentence", func(t *testing.T) {
		sentences := SplitSentences("The ratio is 1.33 on average. It is cheap.")
		require.Len(t, sentences, 2)
		assert.Equal(t, "The ratio is 1.33 on average.", sentences[0])
	})

	t.Run("Blank line ends a sentence", func(t *testing.T) {
		sentences := SplitSentences("Heading without period\n\nBody text here.")
		assert.Equal(t, []string{"Heading without period", "Body text here."}, sentences)
	})

	t.Run("Empty and whitespace text", func(t *testing.T) {
		assert.Empty(t, SplitSentences(""))
		assert.Empty(t, SplitSentences("  \n\t "))
	})

	t.Run("Spans point into the original text", func(t *testing.T) {
		text := "  First one.  Second one."
		spans := SentenceSpans(text)
		require.Len(t, spans, 2)
		assert.Equal(t, "First one.", text[spans[0].Start:spans[0].End])
		assert.Equal(t, "Second one.", text[spans[1].Start:spans[1].End])
	})
}

func TestWordSets(t *testing.T) {
	t.Run("WordSet drops short words", func(t *testing.T) {
		set := WordSet("An ox is in the barn", 2)
		assert.Contains(t, set, "the")
		assert.Contains(t, set, "barn")
		assert.NotContains(t, set, "ox")
		assert.NotContains(t, set, "is")
	})

	t.Run("Jaccard of identical and disjoint sets", func(t *testing.T) {
		a := WordSet("vector search engine", 2)
		b := WordSet("vector search engine", 2)
		c := WordSet("banana apple orange", 2)
		assert.Equal(t, 1.0, Jaccard(a, b))
		assert.Equal(t, 0.0, Jaccard(a, c))
		assert.Equal(t, 0.0, Jaccard(map[string]struct{}{}, map[string]struct{}{}))
	})

	t.Run("Partial overlap", func(t *testing.T) {
		assert.InDelta(t, 0.5, WordJaccard("alpha beta gamma", "beta gamma delta", 2), 0.0001)
		assert.InDelta(t, 1.0, Overlap(WordSet("beta gamma", 2), WordSet("alpha beta gamma", 2)), 0.0001)
	})

	t.Run("Keywords skip stopwords and duplicates", func(t *testing.T) {
		assert.Equal(t, []string{"configure", "retry", "policy"}, Keywords("How do I configure the retry policy? Retry!"))
	})
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash("a", "b"), ContentHash("a", "b"))
	assert.NotEqual(t, ContentHash("ab", ""), ContentHash("a", "b"), "Expected separator to disambiguate parts")
}

func TestVectorMath(t *testing.T) {
	t.Run("Cosine similarity", func(t *testing.T) {
		assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 0.0001)
		assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
		assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
		assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
	})

	t.Run("Euclidean distance and dot product", func(t *testing.T) {
		assert.InDelta(t, 5.0, EuclideanDistance([]float32{0, 0}, []float32{3, 4}), 0.0001)
		assert.InDelta(t, 11.0, DotProduct([]float32{1, 2}, []float32{3, 4}), 0.0001)
	})

	t.Run("Normalize", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		assert.InDelta(t, 0.6, v[0], 0.0001)
		assert.InDelta(t, 0.8, v[1], 0.0001)
	})

	t.Run("Finite vectors", func(t *testing.T) {
		zero := float32(0)
		assert.True(t, IsFiniteVector([]float32{0.1, -2}))
		assert.False(t, IsFiniteVector(nil))
		assert.False(t, IsFiniteVector([]float32{1, zero / zero}))
	})
}

func TestValidate(t *testing.T) {
	type request struct {
		Query string `validate:"required"`
		Limit int    `validate:"gte=0,lte=10"`
	}

	assert.NoError(t, Validate(request{Query: "q", Limit: 3}))

	err := Validate(request{Limit: 11})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Query failed on required")
	assert.Contains(t, err.Error(), "Limit failed on lte=10")
}
