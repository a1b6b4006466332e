package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Run("Default config is valid", func(t *testing.T) {
		config := DefaultConfig()
		require.NoError(t, config.Validate())
		assert.Equal(t, 0.3, config.Chunking.ParentThreshold)
		assert.Equal(t, 3, config.Assembly.MaxExpansion)
		assert.Equal(t, 0.8, config.Assembly.RedundancyCeiling)
		assert.False(t, config.Chunking.Refine)
	})

	t.Run("Confidence weights sum to one", func(t *testing.T) {
		w := DefaultConfig().Confidence.Weights
		assert.InDelta(t, 1.0, w.Retrieval+w.Content+w.Context+w.Generation, 1e-9)
	})

	t.Run("Band falls back to defaults for missing scales", func(t *testing.T) {
		config := DefaultConfig()
		config.Chunking.Bands = map[Scale]TokenBand{}
		assert.Equal(t, TokenBand{Min: 10, Max: 400}, config.Chunking.Band(ScaleParagraph))
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("Invalid band is rejected", func(t *testing.T) {
		config := DefaultConfig()
		config.Chunking.Bands[ScaleSection] = TokenBand{Min: 100, Max: 10}
		err := config.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Unknown embedding type is rejected", func(t *testing.T) {
		config := DefaultConfig()
		config.Embedding.Types = []EmbeddingType{"colour"}
		assert.ErrorIs(t, config.Validate(), ErrValidation)
	})

	t.Run("All zero weights are rejected", func(t *testing.T) {
		config := DefaultConfig()
		config.Confidence.Weights = ConfidenceWeights{}
		assert.ErrorIs(t, config.Validate(), ErrValidation)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("Valid call overlays defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "grounder.yaml")
		content := `
chunking:
  refine: true
  bands:
    sentence: {min: 3, max: 60}
embedding:
  dimension: 128
  types: [content, semantic]
  cache_ttl: 5m
ingestion:
  workers: 2
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		config, err := LoadConfig(path)
		require.NoError(t, err)
		assert.True(t, config.Chunking.Refine)
		assert.Equal(t, TokenBand{Min: 3, Max: 60}, config.Chunking.Band(ScaleSentence))
		assert.Equal(t, TokenBand{Min: 20, Max: 1500}, config.Chunking.Band(ScaleSection))
		assert.Equal(t, 128, config.Embedding.Dimension)
		assert.Equal(t, []EmbeddingType{EmbeddingTypeContent, EmbeddingTypeSemantic}, config.Embedding.Types)
		assert.Equal(t, 5*time.Minute, config.Embedding.CacheTTL)
		assert.Equal(t, 2, config.Ingestion.Workers)
		assert.Equal(t, 0.4, config.Confidence.Weights.Retrieval)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("Invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "grounder.yaml")
		require.NoError(t, os.WriteFile(path, []byte("ingestion:\n  workers: 0\n"), 0o600))
		_, err := LoadConfig(path)
		assert.ErrorIs(t, err, ErrValidation)
	})
}
